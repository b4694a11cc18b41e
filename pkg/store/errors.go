package store

import (
	"fmt"

	"kvcore/pkg/dberrors"
)

var (
	ErrEmptyKey = fmt.Errorf("%w: empty key", dberrors.ErrInvalidArgument)
)
