package dberrors

import "errors"

var (
	ErrClosed          = errors.New("kvcore: closed")
	ErrInvalidArgument = errors.New("kvcore: invalid argument")
)
