// Package address parses and renders bus destination addresses.
//
// Seven grammars are recognized:
//
//	name                 direct to any instance of an agent
//	name@team            direct, scoped to a team
//	name.inst@team       direct to one instance
//	@anyone              first eligible reader consumes
//	@anyone@team         first eligible reader on the team consumes
//	@everyone            every reader sees it once
//	@everyone@team       every reader on the team sees it once
//
// The grammar is permissive: unrecognized shapes parse as a bare agent with
// no team, never an error.
package address

import "strings"

// Broadcast tokens.
const (
	Anyone   = "@anyone"
	Everyone = "@everyone"
)

// Address is a parsed bus destination.
type Address struct {
	Agent    string
	Instance string
	Team     string
}

// Parse splits an address string into its (agent, instance, team) parts.
func Parse(addr string) Address {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Address{}
	}

	// Broadcast forms keep their leading token verbatim; any @team suffix
	// is a scope, not part of the token.
	if strings.HasPrefix(addr, "@") {
		for _, token := range []string{Anyone, Everyone} {
			if addr == token {
				return Address{Agent: token}
			}
			if strings.HasPrefix(addr, token+"@") {
				return Address{Agent: token, Team: addr[len(token)+1:]}
			}
		}
		// Unknown @-token: treat the whole string as an agent code.
		return Address{Agent: addr}
	}

	local := addr
	team := ""
	if i := strings.Index(addr, "@"); i >= 0 {
		local, team = addr[:i], addr[i+1:]
	}

	agent := local
	instance := ""
	if i := strings.Index(local, "."); i >= 0 {
		agent, instance = local[:i], local[i+1:]
	}

	return Address{Agent: agent, Instance: instance, Team: team}
}

// Render reproduces the canonical string form of the address.
func (a Address) Render() string {
	var b strings.Builder
	b.WriteString(a.Agent)
	if a.Instance != "" {
		b.WriteString(".")
		b.WriteString(a.Instance)
	}
	if a.Team != "" {
		b.WriteString("@")
		b.WriteString(a.Team)
	}
	return b.String()
}

// IsBroadcast reports whether the address targets @anyone or @everyone.
func (a Address) IsBroadcast() bool {
	return a.Agent == Anyone || a.Agent == Everyone
}

// IsAnyone reports whether the address is a consume-once broadcast.
func (a Address) IsAnyone() bool { return a.Agent == Anyone }

// IsEveryone reports whether the address is a read-by-all broadcast.
func (a Address) IsEveryone() bool { return a.Agent == Everyone }
