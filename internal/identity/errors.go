package identity

import "errors"

var (
	// ErrEmptyName is returned when a device name is empty.
	ErrEmptyName = errors.New("identity: empty device name")

	// ErrLeadingDigit is returned when a device name starts with a digit.
	ErrLeadingDigit = errors.New("identity: device name starts with a digit")

	// ErrNumberOutOfRange is returned when a trailing volume number overflows int32.
	ErrNumberOutOfRange = errors.New("identity: volume number out of range")

	// ErrMalformedDevlink is returned when a partition link lacks a -partN suffix.
	ErrMalformedDevlink = errors.New("identity: malformed partition device link")

	// ErrNoFilesystem is returned when volume probe output names no filesystem type.
	ErrNoFilesystem = errors.New("identity: no filesystem type found")
)
