package linear

import (
	"regexp"
	"strings"
)

// ticketIDPattern matches tracker identifiers like HERD-42: an upper-case
// team key, a dash, a number. Anything else is a local-only ticket id and
// never synced.
var ticketIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)

// IsTicketID reports whether s looks like a Linear issue identifier.
func IsTicketID(s string) bool {
	return ticketIDPattern.MatchString(s)
}

// stateNames maps the runtime's ticket statuses to Linear workflow state
// names. Statuses outside this map have no tracker equivalent.
var stateNames = map[string]string{
	"backlog":     "Backlog",
	"todo":        "Todo",
	"in_progress": "In Progress",
	"in_review":   "In Review",
	"blocked":     "Blocked",
	"done":        "Done",
	"cancelled":   "Canceled",
}

// StateName translates a runtime status into a Linear state name.
func StateName(status string) (string, bool) {
	name, ok := stateNames[strings.ToLower(status)]
	return name, ok
}

// CanonicalStatus translates a Linear state name back into the runtime's
// status vocabulary. Unknown names come back lower-snake so they at least
// round-trip.
func CanonicalStatus(stateName string) string {
	lower := strings.ToLower(stateName)
	for status, name := range stateNames {
		if strings.ToLower(name) == lower {
			return status
		}
	}
	return strings.ReplaceAll(lower, " ", "_")
}

// priorityValues maps label priorities to Linear's 0-4 scale.
var priorityValues = map[string]int{
	"urgent": 1,
	"high":   2,
	"medium": 3,
	"low":    4,
}
