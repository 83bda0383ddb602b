package activity

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidGroupID indicates that a group identifier is empty or exceeds storage bounds.
	ErrInvalidGroupID = errors.New("activity: invalid group id")
	// ErrInvalidTrxID indicates that a transaction identifier is empty or exceeds storage bounds.
	ErrInvalidTrxID = errors.New("activity: invalid trx id")
	// ErrInvalidObjectID indicates that a post or comment identifier is empty or exceeds storage bounds.
	ErrInvalidObjectID = errors.New("activity: invalid object id")
	// ErrInvalidPublisher indicates that a publisher key is empty or exceeds storage bounds.
	ErrInvalidPublisher = errors.New("activity: invalid publisher")
)

// GroupID represents a validated group identifier.
type GroupID string

// NewGroupID validates raw input and returns a GroupID.
func NewGroupID(rawInput string) (GroupID, error) {
	value, err := validateIdentifier(rawInput, ErrInvalidGroupID)
	return GroupID(value), err
}

// String returns the underlying identifier.
func (id GroupID) String() string {
	return string(id)
}

// ObjectID represents a validated post or comment identifier.
type ObjectID string

// NewObjectID validates raw input and returns an ObjectID.
func NewObjectID(rawInput string) (ObjectID, error) {
	value, err := validateIdentifier(rawInput, ErrInvalidObjectID)
	return ObjectID(value), err
}

// String returns the underlying identifier.
func (id ObjectID) String() string {
	return string(id)
}

// Publisher represents a validated sender public key.
type Publisher string

// NewPublisher validates raw input and returns a Publisher.
func NewPublisher(rawInput string) (Publisher, error) {
	value, err := validateIdentifier(rawInput, ErrInvalidPublisher)
	return Publisher(value), err
}

// String returns the underlying key.
func (p Publisher) String() string {
	return string(p)
}

// ValidateTrxID checks a raw transaction identifier.
func ValidateTrxID(rawInput string) (string, error) {
	return validateIdentifier(rawInput, ErrInvalidTrxID)
}

func validateIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}
