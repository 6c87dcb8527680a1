package aggregates

import "strings"

// RequireCASSuccess converts a failed compare-and-set into a typed conflict
// error. Stores report a guard miss as (false, nil); every write path funnels
// that through here so a lost race always surfaces as CodeConflict.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
