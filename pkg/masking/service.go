// Package masking scrubs credentials from text before it leaves the
// process: notification posts, thread replies, and anything else bound
// for an external surface. Built-in patterns cover the common token
// shapes; operators add custom patterns through configuration.
package masking

import (
	"fmt"
	"log/slog"
	"regexp"
)

// Service applies data masking to outbound text. Created once at
// application startup. Thread-safe and stateless aside from compiled
// patterns.
type Service struct {
	patterns    []*CompiledPattern
	codeMaskers []Masker
}

// NewService creates a masking service with the built-in patterns
// compiled and the structural maskers registered.
func NewService() *Service {
	s := &Service{}

	for _, p := range builtinPatterns {
		compiled, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", p.name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        p.name,
			Regex:       compiled,
			Replacement: p.replacement,
			Description: p.description,
		})
	}

	s.codeMaskers = append(s.codeMaskers, &EnvBlockMasker{})
	return s
}

// AddPattern compiles and appends one custom pattern. Custom patterns run
// after the built-ins.
func (s *Service) AddPattern(name, pattern, replacement string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile masking pattern %q: %w", name, err)
	}
	s.patterns = append(s.patterns, &CompiledPattern{
		Name:        name,
		Regex:       compiled,
		Replacement: replacement,
	})
	return nil
}

// Mask applies structural maskers first, then the regex patterns. It is
// fail-open: masking never blocks a post, it only rewrites it.
func (s *Service) Mask(text string) string {
	if s == nil || text == "" {
		return text
	}

	masked := text
	for _, m := range s.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
