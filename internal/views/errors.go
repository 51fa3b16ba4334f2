package views

import (
	"errors"
	"fmt"
)

// ErrInvalidProductID is returned for a zero or unparsable product identifier.
var ErrInvalidProductID = errors.New("invalid product id")

// ErrRejected matches every *RejectedError.
var ErrRejected = errors.New("view rejected")

// RejectReason tells why a view was not counted.
type RejectReason string

const (
	RejectAdmin     RejectReason = "admin"
	RejectDuplicate RejectReason = "duplicate"
)

// RejectedError is a policy outcome, not a failure: the view was valid but
// must not be counted.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("view rejected: %s", e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// StorageError wraps a failed read or write of the view stores.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
