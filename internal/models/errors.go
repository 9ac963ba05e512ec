package models

import "errors"

// Validation rejections.
var (
	ErrInvalidDatasetName   = errors.New("invalid dataset name")
	ErrDatasetExists        = errors.New("dataset already exists")
	ErrLastDataset          = errors.New("cannot delete the last dataset")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrNoActiveCaller       = errors.New("an active caller is required")
	ErrInvalidCallerName    = errors.New("invalid caller name")
	ErrAppointmentInPast    = errors.New("appointment time is in the past")
	ErrAppointmentSent      = errors.New("appointment reminder already sent")
	ErrInvalidActionToken   = errors.New("invalid action token")
	ErrEmptyNote            = errors.New("empty note")
)

// Not-found conditions, usually raised by stale action tokens.
var (
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrRecordNotFound      = errors.New("record not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrCallerNotFound      = errors.New("caller not found")
)

// IsNotFound reports whether err is one of the not-found conditions.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrCallerNotFound)
}
