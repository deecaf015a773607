package game

import "strings"

// Response body markers. These belong to the external protocol: the game
// answers with HTML pages or JSON-ish arrays, and the only way to classify
// them is by content. Markers must be unique to the page they identify; a
// logged-in page carries a logout link, so that alone proves nothing.
const (
	// expiredMarker appears only on the relogin page served once the
	// server-side session died
	expiredMarker = `name="sessionHasExpired"`

	// expiredPageMarker is the body id of the logged-out shell
	expiredPageMarker = `id="loggedOutPage"`

	// maintenanceMarker appears while the server runs its backup window
	maintenanceMarker = "Backup in progress"

	// staleTokenMarker is the server's rejection of an out-of-date
	// action-request token
	staleTokenMarker = "WRONG_REQUEST_ID"

	// vacationMarker appears on the city view while vacation mode is active
	vacationMarker = "umod_vacation"
)

// IsExpired recognizes the expired-session page
func IsExpired(body string) bool {
	return strings.Contains(body, expiredMarker) || strings.Contains(body, expiredPageMarker)
}

// IsMaintenance recognizes the backup-in-progress page
func IsMaintenance(body string) bool {
	return strings.Contains(body, maintenanceMarker)
}

// IsStaleToken recognizes the wrong-request-id rejection
func IsStaleToken(body string) bool {
	return strings.Contains(body, staleTokenMarker)
}

// IsVacation recognizes the vacation-mode page
func IsVacation(body string) bool {
	return strings.Contains(body, vacationMarker)
}
