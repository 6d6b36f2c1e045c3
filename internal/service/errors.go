package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrMissingFields           = errors.New("username and password are required")
	ErrUsernameTooShort        = errors.New("username too short")
	ErrPasswordTooShort        = errors.New("password too short")
	ErrPasswordTooLong         = errors.New("password too long")
	ErrUsernameTaken           = errors.New("username already exists")
	ErrInvalidRegistrationCode = errors.New("invalid registration code")
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrForbidden               = errors.New("forbidden")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrInvalidFormat           = errors.New("invalid file format")
	ErrShuttingDown            = errors.New("service is shutting down")
)

// Specific causes. Each still matches its general sentinel through errors.Is.
var (
	ErrFieldsRequired  = fmt.Errorf("%w: all fields are required", ErrValidation)
	ErrInvalidTCID     = fmt.Errorf("%w: tc id must be 11 digits", ErrValidation)
	ErrQueryRequired   = fmt.Errorf("%w: search query is required", ErrValidation)
	ErrDuplicateTCID   = fmt.Errorf("%w: a patient with this tc id already exists", ErrConflict)
	ErrViewForbidden   = fmt.Errorf("%w: not allowed to view this patient", ErrForbidden)
	ErrUpdateForbidden = fmt.Errorf("%w: not allowed to update this patient", ErrForbidden)
	ErrPatientNotFound = fmt.Errorf("%w: patient", ErrNotFound)
	ErrJobNotFound     = fmt.Errorf("%w: backup job", ErrNotFound)
	ErrLogFileNotFound = fmt.Errorf("%w: log file", ErrNotFound)
)
