package e25x

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceBusy    = errors.New("e25x: write or erase in progress")
	ErrOutOfRange    = errors.New("e25x: access beyond device capacity")
	ErrWriteTimeout  = errors.New("e25x: timeout waiting for write completion")
	ErrWrongIdentity = errors.New("e25x: wrong manufacturer id")
	ErrHeld          = errors.New("e25x: device is on hold")
	ErrBusClaimed    = errors.New("e25x: bus already owned by another device")
	ErrClosed        = errors.New("e25x: device closed")
)

// TransportError wraps a failure of the SPI channel.
type TransportError struct {
	Op  Instruction
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("e25x: %s transfer failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SignalError wraps a failure to drive one of the control lines.
type SignalError struct {
	Signal string
	Assert bool
	Err    error
}

func (e *SignalError) Error() string {
	op := "deassert"
	if e.Assert {
		op = "assert"
	}
	return fmt.Sprintf("e25x: could not %s %s: %v", op, e.Signal, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// IdentityError is returned by New when the RDID byte is not ManufacturerID.
type IdentityError struct {
	Expected byte
	Actual   byte
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("e25x: wrong manufacturer id: expected %#02x, got %#02x", e.Expected, e.Actual)
}

func (e *IdentityError) Is(target error) bool { return target == ErrWrongIdentity }
