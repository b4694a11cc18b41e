package table

import "errors"

var (
	ErrEmptyMemtable = errors.New("table: nothing to flush")
)
