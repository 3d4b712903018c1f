package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports malformed input. It is returned before any mutation happens.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "invalid input"
	}
	return err.Err.Error()
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (err NotFoundError) Error() string {
	if err.ID == "" {
		return err.Entity + " not found"
	}
	return fmt.Sprintf("%s %q not found", err.Entity, err.ID)
}

// InvalidStateError is returned when an operation is not allowed in the entity's current state.
type InvalidStateError struct {
	Entity string
	State  string
	Op     string
}

func NewInvalidStateError(entity, state, op string) error {
	return &InvalidStateError{Entity: entity, State: state, Op: op}
}

func (err InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", err.Op, err.Entity, err.State)
}

type CapacityExceededError struct {
	GroupID    string
	MaxMembers int
}

func NewCapacityExceededError(groupID string, maxMembers int) error {
	return &CapacityExceededError{GroupID: groupID, MaxMembers: maxMembers}
}

func (err CapacityExceededError) Error() string {
	return fmt.Sprintf("group %q is full (max %d members)", err.GroupID, err.MaxMembers)
}

type DuplicateMemberError struct {
	GroupID string
	Key     string
}

func NewDuplicateMemberError(groupID, key string) error {
	return &DuplicateMemberError{GroupID: groupID, Key: key}
}

func (err DuplicateMemberError) Error() string {
	return fmt.Sprintf("%q is already a member of group %q", err.Key, err.GroupID)
}

// GoneError is returned when operating on a soft-deleted entity.
type GoneError struct {
	Entity string
	ID     string
}

func NewGoneError(entity, id string) error {
	return &GoneError{Entity: entity, ID: id}
}

func (err GoneError) Error() string {
	return fmt.Sprintf("%s %q has been deleted", err.Entity, err.ID)
}

// UpstreamUnavailableError wraps failures of external collaborators (directory, file storage).
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func NewUpstreamUnavailableError(service string, err error) error {
	return &UpstreamUnavailableError{Service: service, Err: err}
}

func (err UpstreamUnavailableError) Error() string {
	if err.Err == nil {
		return err.Service + " unavailable"
	}
	return fmt.Sprintf("%s unavailable: %v", err.Service, err.Err)
}

func (err UpstreamUnavailableError) Unwrap() error { return err.Err }

type ForbiddenError struct {
	Action string
}

func NewForbiddenError(action string) error {
	return &ForbiddenError{Action: action}
}

func (err ForbiddenError) Error() string {
	return "not allowed to " + err.Action
}

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidStateError)
	return ok
}

func IsCapacityExceeded(err error) bool {
	_, ok := errors.Cause(err).(*CapacityExceededError)
	return ok
}

func IsDuplicateMember(err error) bool {
	_, ok := errors.Cause(err).(*DuplicateMemberError)
	return ok
}

func IsGone(err error) bool {
	_, ok := errors.Cause(err).(*GoneError)
	return ok
}

func IsUpstreamUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*UpstreamUnavailableError)
	return ok
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
