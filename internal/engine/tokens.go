package engine

import "github.com/google/uuid"

// mintToken returns a fresh UUID for one of the table's five
// zombie-prevention tokens (currentTurnId, showdownId, winByFoldId,
// nextHandId, autoCloseToken), §4.4/§9. Re-minting on every legitimate state transition,
// rather than cancelling the previous task, is what makes a late or
// duplicate delivery a cheap no-op instead of requiring queue surgery.
func mintToken() string {
	return uuid.NewString()
}
