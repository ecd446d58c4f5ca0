package domain

// AuthCode identifies an authentication or authorization failure. Provider
// codes are translated into these at the boundary.
type AuthCode string

const (
	CodeUserNotFound        AuthCode = "user-not-found"
	CodeWrongPassword       AuthCode = "wrong-password"
	CodeInvalidCredential   AuthCode = "invalid-credential"
	CodeTooManyRequests     AuthCode = "too-many-requests"
	CodeInvalidEmail        AuthCode = "invalid-email"
	CodeNetwork             AuthCode = "network-request-failed"
	CodeConfiguration       AuthCode = "api-key-not-valid"
	CodePopupClosed         AuthCode = "popup-closed-by-user"
	CodePopupBlocked        AuthCode = "popup-blocked"
	CodePopupPending        AuthCode = "cancelled-popup-request"
	CodeMissingEmail        AuthCode = "missing-email"
	CodeInvalidStudentEmail AuthCode = "invalid-student-email"
	CodeNotRegistered       AuthCode = "driver-not-registered"
	CodeNotADriver          AuthCode = "not-a-driver"
	CodeStateMismatch       AuthCode = "oauth-state-mismatch"
	CodeUnknown             AuthCode = "unknown"
)

var authMessages = map[AuthCode]string{
	CodeUserNotFound:        "Driver email not found. Please check your email address or contact administrator.",
	CodeWrongPassword:       "Invalid email or password. Please check your credentials and try again.",
	CodeInvalidCredential:   "Invalid email or password. Please check your credentials and try again.",
	CodeTooManyRequests:     "Too many failed attempts. Please try again later or reset your password.",
	CodeInvalidEmail:        "Invalid email format. Please enter a valid email address.",
	CodeNetwork:             "Network error. Please check your internet connection and try again.",
	CodeConfiguration:       "Sign-in is not configured correctly. Please contact the administrator.",
	CodePopupClosed:         "Sign-in was cancelled. Please try again.",
	CodePopupBlocked:        "Pop-up was blocked by your browser. Allow pop-ups for this site, refresh the page and try signing in again.",
	CodePopupPending:        "Another sign-in attempt is in progress. Please wait and try again.",
	CodeMissingEmail:        "No email found in the selected account.",
	CodeInvalidStudentEmail: "Please use your official institute email in the format: btechXXXXX.YY@bitmesra.ac.in",
	CodeNotRegistered:       "Driver account not found in database. Please contact administrator to set up your driver profile.",
	CodeNotADriver:          "This account is not registered as a driver. Please use the correct driver credentials.",
	CodeStateMismatch:       "Your sign-in request expired. Please try signing in again.",
	CodeUnknown:             "Sign-in failed. Please try again.",
}

// AuthError is a typed authentication failure with user-facing text.
type AuthError struct {
	Code    AuthCode
	Message string
}

// NewAuthError builds the error for code with its canonical message.
func NewAuthError(code AuthCode) *AuthError {
	msg, ok := authMessages[code]
	if !ok {
		code, msg = CodeUnknown, authMessages[CodeUnknown]
	}
	return &AuthError{Code: code, Message: msg}
}

func (e *AuthError) Error() string { return e.Message }

// Is matches any AuthError with the same code, so sentinels work with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// Authorization reports whether the failure is a role mismatch that ends the
// session rather than a retryable credential problem.
func (e *AuthError) Authorization() bool {
	switch e.Code {
	case CodeNotRegistered, CodeNotADriver, CodeInvalidStudentEmail:
		return true
	}
	return false
}

var (
	ErrNotADriver          = NewAuthError(CodeNotADriver)
	ErrNotRegistered       = NewAuthError(CodeNotRegistered)
	ErrInvalidStudentEmail = NewAuthError(CodeInvalidStudentEmail)
	ErrInvalidCredentials  = NewAuthError(CodeInvalidCredential)
	ErrStateMismatch       = NewAuthError(CodeStateMismatch)
)
