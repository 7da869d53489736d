// Package tier classifies agent codes into the four coordination tiers.
//
// The tier controls two things: the context-pane budget an agent gets on
// checkin, and which message types the bus will hand it. Mechanical agents
// receive directives only and never compete for @anyone work.
package tier

import "sort"

// Tier is the coordination tier of an agent code.
type Tier string

// Tier values.
const (
	Leader     Tier = "leader"
	Senior     Tier = "senior"
	Mechanical Tier = "mechanical"
	Execution  Tier = "execution"
)

// Message type names accepted on the bus. Declared here so the tier filter
// and the bus agree without importing each other.
const (
	TypeDirective = "directive"
	TypeInform    = "inform"
	TypeFlag      = "flag"
)

// ContextBudget returns the checkin context-pane budget in approximate
// tokens (one token ~ 4 characters). Mechanical agents get no pane.
func (t Tier) ContextBudget() int {
	switch t {
	case Leader:
		return 500
	case Senior:
		return 300
	case Mechanical:
		return 0
	default:
		return 200
	}
}

// AllowsMessageType reports whether agents of this tier receive messages of
// the given type. Mechanical agents see directives only; every other tier
// sees all three types.
func (t Tier) AllowsMessageType(msgType string) bool {
	if t == Mechanical {
		return msgType == TypeDirective
	}
	switch msgType {
	case TypeDirective, TypeInform, TypeFlag:
		return true
	}
	return false
}

// Role describes one registered agent code.
type Role struct {
	Code        string // agent code used in addresses, e.g. "mason"
	Name        string // role name accepted by spawn, e.g. "backend"
	Tier        Tier
	Description string
}

// Roster is the set of registered agent codes and their tiers. Codes not in
// the roster classify as execution tier.
type Roster struct {
	byCode map[string]Role
	byName map[string]string // role name -> code
}

// NewRoster builds an empty roster.
func NewRoster() *Roster {
	return &Roster{
		byCode: make(map[string]Role),
		byName: make(map[string]string),
	}
}

// Add registers a role, overwriting any previous registration of the code.
func (r *Roster) Add(role Role) {
	r.byCode[role.Code] = role
	if role.Name != "" {
		r.byName[role.Name] = role.Code
	}
}

// Classify returns the tier for an agent code. Unknown codes are execution
// tier ("everything else" in the partition).
func (r *Roster) Classify(agent string) Tier {
	if role, ok := r.byCode[agent]; ok {
		return role.Tier
	}
	return Execution
}

// IsLeader reports whether the agent code is in the leader set.
func (r *Roster) IsLeader(agent string) bool {
	return r.Classify(agent) == Leader
}

// IsMechanical reports whether the agent code is in the mechanical set.
func (r *Roster) IsMechanical(agent string) bool {
	return r.Classify(agent) == Mechanical
}

// ResolveCode maps a role name or agent code to the agent code. The second
// return is false when the name is neither a registered role nor a code.
func (r *Roster) ResolveCode(roleOrCode string) (string, bool) {
	if _, ok := r.byCode[roleOrCode]; ok {
		return roleOrCode, true
	}
	if code, ok := r.byName[roleOrCode]; ok {
		return code, true
	}
	return "", false
}

// Lookup returns the registered role for a code.
func (r *Roster) Lookup(code string) (Role, bool) {
	role, ok := r.byCode[code]
	return role, ok
}

// Known returns all registered agent codes, sorted.
func (r *Roster) Known() []string {
	codes := make([]string, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
