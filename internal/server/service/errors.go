package service

import (
	"errors"
)

// Kind classifies a service error so the HTTP layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindLimit
	KindTooLarge
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindLimit:
		return "limit"
	case KindTooLarge:
		return "too_large"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a typed service failure whose message is safe to show to clients.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Validation returns an ad-hoc validation error.
func Validation(msg string) error {
	return newError(KindValidation, msg)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Sentinel errors for the service layer.
var (
	ErrDuplicateEmail     = newError(KindConflict, "user already exists")
	ErrEmailInUse         = newError(KindConflict, "email already in use")
	ErrInvalidOTP         = newError(KindValidation, "invalid or expired OTP")
	ErrAlreadyVerified    = newError(KindValidation, "user already verified")
	ErrInvalidResetToken  = newError(KindValidation, "invalid or expired reset token")
	ErrInvalidCredentials = newError(KindAuthentication, "invalid credentials")
	ErrUnverifiedAccount  = newError(KindAuthentication, "please verify your email first, a new OTP has been sent")
	ErrAccountNotVerified = newError(KindAuthentication, "please verify your email before accessing this route")
	ErrNotAuthenticated   = newError(KindAuthentication, "not authorized to access this route")
	ErrForbidden          = newError(KindAuthorization, "not allowed to access this route")
	ErrUserNotFound       = newError(KindNotFound, "user not found")

	// Both token failures deny access with the same message.
	ErrTokenInvalid = newError(KindAuthentication, "not authorized to access this route")
	ErrTokenExpired = newError(KindAuthentication, "not authorized to access this route")

	ErrAPIKeyRequired  = newError(KindAuthentication, "API key is required")
	ErrInvalidKey      = newError(KindAuthentication, "invalid or expired API key")
	ErrKeyLimitReached = newError(KindLimit, "maximum API key limit reached")
	ErrKeyNotFound     = newError(KindNotFound, "API key not found")

	ErrNoFileProvided      = newError(KindValidation, "please upload a file")
	ErrFileTooLarge        = newError(KindTooLarge, "file exceeds maximum allowed size")
	ErrQuotaExceeded       = newError(KindLimit, "monthly upload limit reached")
	ErrUploadNotFound      = newError(KindNotFound, "upload not found")
	ErrUpstreamUnavailable = newError(KindUpstream, "image host is unavailable")
	ErrUpstreamRejected    = newError(KindUpstream, "image host rejected the file")

	ErrInvalidRole     = newError(KindValidation, "invalid role")
	ErrSelfDemotion    = newError(KindValidation, "cannot change your own role to user")
	ErrSelfDeletion    = newError(KindValidation, "cannot delete your own account")
	ErrInvalidStatus   = newError(KindValidation, "invalid status")
	ErrContactNotFound = newError(KindNotFound, "contact message not found")

	// ErrAuditWrite is returned when a mutation succeeded but its audit
	// record could not be written. The mutation is not rolled back.
	ErrAuditWrite = newError(KindInternal, "action applied but the audit log could not be written")
)
