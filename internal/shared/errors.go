package shared

import "errors"

// Sentinels shared by the auth, users and session layers. Handlers translate
// them into HTTP statuses; compare with errors.Is.
var (
	ErrNotFound           = errors.New("shared: record not found")
	ErrInvalidCredentials = errors.New("shared: invalid email or password")
	ErrCSRFTokenMissing   = errors.New("shared: csrf token missing")
	ErrCSRFTokenMismatch  = errors.New("shared: csrf token does not match session")
)
