package shared

import (
	"fmt"
	"time"
)

// DomainError is the base error type for all domain errors
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// Session-related errors

// SessionExpiredError indicates the game server returned the expired-session
// page and re-authentication did not recover the request.
type SessionExpiredError struct {
	*DomainError
}

func NewSessionExpiredError(message string) *SessionExpiredError {
	return &SessionExpiredError{DomainError: &DomainError{Message: message}}
}

// StaleTokenError indicates the server rejected the action-request token
// (WRONG_REQUEST_ID response).
type StaleTokenError struct {
	*DomainError
}

func NewStaleTokenError() *StaleTokenError {
	return &StaleTokenError{DomainError: &DomainError{Message: "server rejected action-request token"}}
}

// MaintenanceError indicates the game server is inside a backup window;
// retryable after a long sleep.
type MaintenanceError struct {
	*DomainError
}

func NewMaintenanceError() *MaintenanceError {
	return &MaintenanceError{DomainError: &DomainError{Message: "server maintenance in progress"}}
}

// NetworkTransientError wraps a connection or timeout failure on a game request.
type NetworkTransientError struct {
	*DomainError
	Cause error
}

func NewNetworkTransientError(cause error) *NetworkTransientError {
	return &NetworkTransientError{
		DomainError: &DomainError{Message: fmt.Sprintf("network error: %v", cause)},
		Cause:       cause,
	}
}

func (e *NetworkTransientError) Unwrap() error { return e.Cause }

// Login errors

// LoginFailKind enumerates the ways a login phase can fail.
type LoginFailKind string

const (
	LoginFailBadCredentials    LoginFailKind = "BAD_CREDENTIALS"
	LoginFailAntiBotBlocked    LoginFailKind = "ANTI_BOT_BLOCKED"
	LoginFailEnvironmentIDs    LoginFailKind = "ENVIRONMENT_IDS_MISSING"
	LoginFailOtpRequired       LoginFailKind = "OTP_REQUIRED"
	LoginFailCaptchaUnsolvable LoginFailKind = "CAPTCHA_UNSOLVABLE"
	LoginFailTokenMissing      LoginFailKind = "TOKEN_MISSING"
	LoginFailWorldNotFound     LoginFailKind = "WORLD_NOT_FOUND"
	LoginFailHandoffRejected   LoginFailKind = "HANDOFF_REJECTED"
	LoginFailAlreadyExpired    LoginFailKind = "ALREADY_EXPIRED"
)

// LoginFailedError indicates a login phase failed; the whole machine is
// retried up to the configured attempt budget.
type LoginFailedError struct {
	*DomainError
	Kind LoginFailKind
}

func NewLoginFailedError(kind LoginFailKind, message string) *LoginFailedError {
	return &LoginFailedError{
		DomainError: &DomainError{Message: fmt.Sprintf("login failed (%s): %s", kind, message)},
		Kind:        kind,
	}
}

// VacationModeError is terminal: the account is in vacation mode and no login
// retry can succeed until the user leaves it in the browser.
type VacationModeError struct {
	*DomainError
}

func NewVacationModeError() *VacationModeError {
	return &VacationModeError{DomainError: &DomainError{Message: "account is in vacation mode"}}
}

// Lock errors

// LockTimeoutError indicates the shared fleet lock could not be obtained
// within the caller-supplied timeout.
type LockTimeoutError struct {
	*DomainError
	Timeout time.Duration
}

func NewLockTimeoutError(timeout time.Duration) *LockTimeoutError {
	return &LockTimeoutError{
		DomainError: &DomainError{Message: fmt.Sprintf("fleet lock not acquired within %s", timeout)},
		Timeout:     timeout,
	}
}

// Transport errors

// RouteResponseError indicates the game returned something the transport
// engine does not understand for a dispatch.
type RouteResponseError struct {
	*DomainError
	Body string
}

func NewRouteResponseError(body string) *RouteResponseError {
	return &RouteResponseError{
		DomainError: &DomainError{Message: "unexpected transport response"},
		Body:        body,
	}
}

// WaitBudgetExceededError indicates a route waited longer than the cumulative
// fleet-availability budget and was aborted.
type WaitBudgetExceededError struct {
	*DomainError
	Budget time.Duration
}

func NewWaitBudgetExceededError(budget time.Duration) *WaitBudgetExceededError {
	return &WaitBudgetExceededError{
		DomainError: &DomainError{Message: fmt.Sprintf("fleet wait budget of %s exceeded", budget)},
		Budget:      budget,
	}
}

// Worker errors

// ModuleCrashError wraps an uncaught failure in a worker's background loop.
type ModuleCrashError struct {
	*DomainError
	Module string
	Cause  error
}

func NewModuleCrashError(module string, cause error) *ModuleCrashError {
	return &ModuleCrashError{
		DomainError: &DomainError{Message: fmt.Sprintf("module %s crashed: %v", module, cause)},
		Module:      module,
		Cause:       cause,
	}
}

func (e *ModuleCrashError) Unwrap() error { return e.Cause }

// Validation error

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
