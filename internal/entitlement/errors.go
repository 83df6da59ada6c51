package entitlement

import (
	"context"
	"errors"
	"fmt"

	"reelpass/pkg/domain"
	pkgerrors "reelpass/pkg/errors"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrPurchaseNotUsable   = errors.New("purchase not usable")
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	ErrAlreadyStarted      = errors.New("playback already started")
	ErrPersistence         = errors.New("persistence error")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrMovieNotPurchasable = errors.New("movie not available for purchase")

	ErrPurchaseNotFound = pkgerrors.ErrPurchaseNotFound
	ErrDeviceNotFound   = pkgerrors.ErrDeviceNotFound
	ErrMovieNotFound    = pkgerrors.ErrMovieNotFound
)

// NotUsableError reports the state that made a purchase unusable.
type NotUsableError struct {
	Usability domain.Usability
}

func (e *NotUsableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPurchaseNotUsable, e.Usability)
}

func (e *NotUsableError) Is(target error) bool {
	return target == ErrPurchaseNotUsable
}

// DeviceLimitError carries the counts needed to drive a "remove a device" flow.
type DeviceLimitError struct {
	Count int
	Max   int
}

func (e *DeviceLimitError) Error() string {
	return fmt.Sprintf("%s: %d of %d devices active", ErrDeviceLimitExceeded, e.Count, e.Max)
}

func (e *DeviceLimitError) Is(target error) bool {
	return target == ErrDeviceLimitExceeded
}

// PersistenceError wraps any store failure, including timeouts. The outcome
// of the failed operation is unknown to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Timeout reports whether the store call ran out of time.
func (e *PersistenceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// storeErr passes not-found sentinels through and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrPurchaseNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrMovieNotFound):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
