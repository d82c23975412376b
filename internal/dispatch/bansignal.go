package dispatch

import (
	"regexp"
	"time"
)

// banSignalPattern matches 403 body text that indicates a permanent,
// account-level ban rather than a transient forbidden response.
var banSignalPattern = regexp.MustCompile(`(?i)(organization (has been |is )?disabled|account (has been |is )?disabled|too many active sessions|only authorized for use with)`)

// forbiddenPause is the temporary cooldown for a 403 that isn't a ban
// signal — long enough to stop hammering a backend that's rejecting a
// request for reasons unrelated to the credential itself.
const forbiddenPause = 10 * time.Minute

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
