package app

import "errors"

var (
	// ErrNotPDF rejects uploads whose declared content type is not PDF.
	ErrNotPDF = errors.New("only PDF file is allowed")
	// ErrDuplicateUser indicates the username or email is already registered.
	ErrDuplicateUser = errors.New("username or email already exists")
	// ErrInvalidCredentials covers unknown usernames and password mismatches.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrIngestionFailed is returned when upstream could not process a file.
	ErrIngestionFailed = errors.New("unable to read files possibly due to issues like corruption or unsupported formats")
)
