// Package dispatch implements the retry/fallback orchestrator (spec §4.7):
// model-family routing, the attempt-budgeted select/call/classify loop, and
// response aggregation for non-streaming callers.
package dispatch

import "strings"

// Family identifies which wire backend a model routes to.
type Family string

const (
	FamilyCursorBinary    Family = "cursorbinary"
	FamilyChatCompletions Family = "chatcompletions"
	FamilyCloudCode       Family = "cloudcode"
	FamilyResponses       Family = "responses"
)

// RouteFamily prefix-matches model against the declared routing table
// (spec §4.7.1). Unknown models report ok=false, surfaced by callers as a
// 400 ContractViolation.
func RouteFamily(model string) (Family, bool) {
	switch {
	case strings.HasPrefix(model, "cu/"), strings.HasPrefix(model, "cursor/"):
		return FamilyCursorBinary, true
	case strings.HasPrefix(model, "gh/"), strings.HasPrefix(model, "github/"):
		return FamilyChatCompletions, true
	case strings.HasPrefix(model, "claude-"), strings.HasPrefix(model, "gemini-"):
		return FamilyCloudCode, true
	case strings.HasPrefix(model, "gpt-5"), strings.Contains(model, "codex"):
		return FamilyResponses, true
	default:
		return "", false
	}
}
