package skiplist

import "errors"

var (
	ErrRecordExists = errors.New("skiplist: record with this key already exists")
)
