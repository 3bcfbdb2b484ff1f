package attendance

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password and wrong
	// role alike.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	// ErrInvalidOrExpiredOTP covers wrong, expired and missing codes alike.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")

	ErrNotAssigned       = errors.New("teacher is not assigned to this class")
	ErrNotEnrolled       = errors.New("student is not enrolled in a class")
	ErrUserExists        = errors.New("user already exists")
	ErrClassCodeExists   = errors.New("class code already exists")
	ErrClassCodeRequired = errors.New("class code is required for students")
	ErrInvalidClassCode  = errors.New("invalid class code")
	ErrDeptRequired      = errors.New("department is required for teachers")
	ErrInvalidRole       = errors.New("invalid role")
	ErrMissingFields     = errors.New("missing required fields")
	ErrTeacherNotFound   = errors.New("teacher not found")
	ErrClassNotFound     = errors.New("class not found")
	ErrInvalidSchedule   = errors.New("invalid schedule entry")

	// ErrDuplicateKey is returned by the repository for unique constraint
	// violations; the service translates it into a specific error.
	ErrDuplicateKey = errors.New("duplicate key")
)
