package tools

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/herd-sh/herd/pkg/models"
)

var titleCaser = cases.Title(language.English)

// assembleBriefing builds the context payload handed to a ticket-bound
// spawn: who the agent is, how this project works, what the ticket wants,
// and where to do the work. Missing source files degrade to placeholders so
// a half-configured project still produces a usable payload.
func (h *Handlers) assembleBriefing(code string, ticket *models.Ticket, worktree, branch string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Briefing: %s\n\n", titleCaser.String(code))

	b.WriteString(h.roleSection(code))
	b.WriteString("\n\n")
	b.WriteString(h.craftSection(code))
	b.WriteString("\n\n")
	b.WriteString(h.guidelinesSection())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "## Ticket %s: %s\n\n", ticket.ID, ticket.Title)
	if ticket.Description != "" {
		b.WriteString(ticket.Description)
		b.WriteString("\n\n")
	}
	if ticket.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n\n", ticket.Priority)
	}

	fmt.Fprintf(&b, "Work in %s on branch %s.\n", worktree, branch)
	b.WriteString("Never push to main. Never merge your own pull request.\n")

	if tok := h.Config.Slack.Token; tok != "" {
		fmt.Fprintf(&b, "\nNotification token: %s\n", tok)
	}
	return b.String()
}

// roleSection reads the agent's role-definition file.
func (h *Handlers) roleSection(code string) string {
	if h.Config.Spawn.RolesDir == "" {
		return placeholder("role definition for " + code)
	}
	return readOrPlaceholder(h.Config.RolePath(code), "role definition for "+code)
}

// craftSection extracts the agent's slice of the shared craft-standards
// document: the heading mentioning the code or its role name, through the
// next heading of the same or higher level.
func (h *Handlers) craftSection(code string) string {
	path := h.Config.Spawn.CraftStandardsPath
	if path == "" {
		return placeholder("craft standards for " + code)
	}
	src, err := os.ReadFile(path) // #nosec G304 -- operator-configured path
	if err != nil {
		return placeholder("craft standards for " + code)
	}

	names := []string{code}
	if role, ok := h.Roster.Lookup(code); ok && role.Name != "" {
		names = append(names, role.Name)
	}
	if s := sliceSection(src, names); s != "" {
		return s
	}
	return placeholder("craft standards section for " + code)
}

// guidelinesSection reads the project guidelines file.
func (h *Handlers) guidelinesSection() string {
	if h.Config.Spawn.GuidelinesPath == "" {
		return placeholder("project guidelines")
	}
	return readOrPlaceholder(h.Config.Spawn.GuidelinesPath, "project guidelines")
}

func readOrPlaceholder(path, what string) string {
	src, err := os.ReadFile(path) // #nosec G304 -- operator-configured path
	if err != nil {
		return placeholder(what)
	}
	return strings.TrimSpace(string(src))
}

func placeholder(what string) string {
	return fmt.Sprintf("(%s not available)", what)
}

// sliceSection returns the raw markdown of the first section whose heading
// mentions any of the names, case-insensitively. The slice runs from the
// heading line to the next heading of the same or higher level.
func sliceSection(src []byte, names []string) string {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	start, end := -1, len(src)
	level := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		if start == -1 {
			if headingMentions(heading, src, names) {
				level = heading.Level
				start = lineStart(src, heading.Lines().At(0).Start)
			}
			continue
		}
		if heading.Level <= level {
			end = lineStart(src, heading.Lines().At(0).Start)
			break
		}
	}
	if start == -1 {
		return ""
	}
	return strings.TrimSpace(string(src[start:end]))
}

// headingMentions reports whether the heading's text contains any name,
// ignoring case.
func headingMentions(h *ast.Heading, src []byte, names []string) bool {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
	}
	got := strings.ToLower(sb.String())
	for _, name := range names {
		if name != "" && strings.Contains(got, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// lineStart walks back from an offset to the start of its line.
func lineStart(src []byte, off int) int {
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}
