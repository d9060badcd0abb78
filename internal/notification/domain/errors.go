package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("notification job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's
	// no longer in PENDING status
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when a job payload is malformed or missing
	// the variant its channel requires
	ErrInvalidPayload = errors.New("invalid notification payload")

	// ErrBulkJobNotFound is returned when a bulk job cannot be found
	ErrBulkJobNotFound = errors.New("bulk notification job not found")

	// ErrTemplateNotFound is returned when a template cannot be found
	ErrTemplateNotFound = errors.New("notification template not found")

	// ErrTemplateInactive is returned when a bulk send references a template
	// that has been deactivated
	ErrTemplateInactive = errors.New("notification template is inactive")
)
