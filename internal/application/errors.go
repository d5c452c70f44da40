package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique resource attribute is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrRoomInactive is returned when a reservation targets a deactivated room.
	ErrRoomInactive = errors.New("application: room is inactive")
	// ErrLockTimeout is returned when a room's slot lock could not be acquired in time.
	ErrLockTimeout = errors.New("application: slot lock timeout")
	// ErrInvalidState is returned when a lifecycle transition is not allowed
	// from the reservation's current status.
	ErrInvalidState = errors.New("application: invalid reservation state")
	// ErrInvalidToken is returned when a confirmation token does not match.
	ErrInvalidToken = errors.New("application: invalid confirmation token")
)

// ConflictError reports that a requested slot overlaps existing reservations.
type ConflictError struct {
	RoomID    string
	Date      string
	Conflicts []ConflictDetail
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("room %s is already reserved on %s", c.RoomID, c.Date)
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
