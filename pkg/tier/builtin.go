package tier

// DefaultRoster returns the built-in herd roster. Additional roles can be
// registered on top from configuration.
func DefaultRoster() *Roster {
	r := NewRoster()
	for _, role := range builtinRoles() {
		r.Add(role)
	}
	return r
}

func builtinRoles() []Role {
	return []Role{
		{Code: "steve", Name: "coordinator", Tier: Leader, Description: "Herd coordinator; assigns work and arbitrates"},
		{Code: "leonardo", Name: "architect", Tier: Leader, Description: "System architect; owns cross-cutting decisions"},
		{Code: "wardenstein", Name: "reviewer", Tier: Senior, Description: "Code reviewer; gatekeeps merges"},
		{Code: "scribe", Name: "documenter", Tier: Senior, Description: "Documentation writer"},
		{Code: "tufte", Name: "design", Tier: Senior, Description: "Information design and UX"},
		{Code: "rook", Name: "mechanic", Tier: Mechanical, Description: "Mechanical chore runner; directives only"},
		{Code: "vigil", Name: "monitor", Tier: Mechanical, Description: "Watchdog; directives only"},
		{Code: "mason", Name: "backend", Tier: Execution, Description: "Backend builder"},
		{Code: "fresco", Name: "frontend", Tier: Execution, Description: "Frontend builder"},
	}
}
