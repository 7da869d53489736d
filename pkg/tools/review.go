package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/models"
)

// finding is one normalized review finding.
type finding struct {
	Severity    string
	Category    string
	File        string
	Description string
}

func (f finding) advisory() bool { return f.Severity == "advisory" }

// parseFindings normalizes the findings argument. Objects carry severity,
// category, description (or message) and file; bare strings become blocking
// findings.
func parseFindings(raw []any) []finding {
	out := make([]finding, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, finding{Severity: "blocking", Description: v})
		case map[string]any:
			f := finding{
				Severity:    stringArg(v, "severity"),
				Category:    stringArg(v, "category"),
				File:        stringArg(v, "file"),
				Description: stringArg(v, "description"),
			}
			if f.Description == "" {
				f.Description = stringArg(v, "message")
			}
			if f.Severity == "" {
				f.Severity = "blocking"
			}
			out = append(out, f)
		}
	}
	return out
}

var validVerdicts = map[string]bool{
	models.VerdictPass:             true,
	models.VerdictFail:             true,
	models.VerdictPassWithAdvisory: true,
}

// review records a verdict on a pull request: the review entity, one event
// per finding, a submitted event, and parallel posts to the code host and
// the notification channel. posted is true only when both posts landed.
func (h *Handlers) review(ctx context.Context, args map[string]any) (map[string]any, error) {
	prNumber := intArg(args, "pr_number", 0)
	if prNumber <= 0 {
		return errResult("pr_number is required"), nil
	}
	verdict := stringArg(args, "verdict")
	if !validVerdicts[verdict] {
		return errResult("verdict must be pass, fail, or pass_with_advisory"), nil
	}
	ticketID := stringArg(args, "ticket_id")
	findings := parseFindings(sliceArg(args, "findings"))
	caller := identity.Resolve(stringArg(args, "caller"))

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	h.Adapters.WriteLock.Lock()
	defer h.Adapters.WriteLock.Unlock()

	rounds, err := h.Ops.ReviewRoundCount(ctx, prNumber)
	if err != nil {
		return errResult("%v", err), nil
	}
	round := rounds + 1
	reviewID := uuid.New().String()

	rec := &models.Review{
		ID:            reviewID,
		PRNumber:      prNumber,
		TicketID:      ticketID,
		Reviewer:      caller.Agent,
		Verdict:       verdict,
		Round:         round,
		FindingsCount: len(findings),
	}
	if _, err := st.Save(ctx, rec); err != nil {
		return errResult("saving review failed: %v", err), nil
	}

	for _, f := range findings {
		if err := st.Append(ctx, models.Event{
			ID:       uuid.New().String(),
			EntityID: reviewID,
			Category: models.CategoryReview,
			Kind:     models.KindReviewFinding,
			Payload: map[string]any{
				"pr_number":   prNumber,
				"severity":    f.Severity,
				"category":    f.Category,
				"file":        f.File,
				"description": f.Description,
			},
		}); err != nil {
			return errResult("recording finding failed: %v", err), nil
		}
	}
	if err := st.Append(ctx, models.Event{
		ID:       uuid.New().String(),
		EntityID: reviewID,
		Category: models.CategoryReview,
		Kind:     models.KindReviewSubmit,
		Payload: map[string]any{
			"pr_number": prNumber,
			"ticket":    ticketID,
			"verdict":   verdict,
			"round":     round,
			"findings":  len(findings),
			"reviewer":  caller.Agent,
		},
	}); err != nil {
		return errResult("recording review failed: %v", err), nil
	}

	body := reviewBody(prNumber, round, verdict, caller.Agent, findings)
	summary := reviewSummary(prNumber, round, verdict, ticketID, findings)

	// Both posts are independent; each failure is reported on its own.
	var wg sync.WaitGroup
	var ghErr, slackErr error
	if h.Adapters.Repo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ghErr = h.Adapters.Repo.AddPRComment(ctx, strconv.Itoa(prNumber), body)
		}()
	} else {
		ghErr = fmt.Errorf("repo not configured")
	}
	if h.Adapters.Notify != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, slackErr = h.Adapters.Notify.Post(ctx, summary, h.Config.Slack.Channel, "", "")
		}()
	} else {
		slackErr = fmt.Errorf("notify not configured")
	}
	wg.Wait()

	result := map[string]any{
		"review_id":      reviewID,
		"pr_number":      prNumber,
		"verdict":        verdict,
		"review_round":   round,
		"findings_count": len(findings),
		"github_posted":  ghErr == nil,
		"slack_posted":   slackErr == nil,
		"posted":         ghErr == nil && slackErr == nil,
	}
	if ghErr != nil {
		result["github_error"] = ghErr.Error()
	}
	if slackErr != nil {
		result["slack_error"] = slackErr.Error()
	}
	return result, nil
}

// reviewBody renders the markdown comment posted on the pull request.
func reviewBody(pr, round int, verdict, reviewer string, findings []finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Review: PR #%d (round %d) — %s\n", pr, round, strings.ToUpper(verdict))

	var blocking, advisory []finding
	for _, f := range findings {
		if f.advisory() {
			advisory = append(advisory, f)
		} else {
			blocking = append(blocking, f)
		}
	}
	writeFindings(&b, "Blocking", blocking)
	writeFindings(&b, "Advisory", advisory)

	fmt.Fprintf(&b, "\nReviewed by %s.\n", reviewer)
	return b.String()
}

func writeFindings(b *strings.Builder, title string, fs []finding) {
	if len(fs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", title)
	for _, f := range fs {
		b.WriteString("- ")
		if f.Category != "" {
			fmt.Fprintf(b, "[%s] ", f.Category)
		}
		b.WriteString(f.Description)
		if f.File != "" {
			fmt.Fprintf(b, " (%s)", f.File)
		}
		b.WriteString("\n")
	}
}

// reviewSummary renders the one-line channel notification.
func reviewSummary(pr, round int, verdict, ticketID string, findings []finding) string {
	blocking := 0
	for _, f := range findings {
		if !f.advisory() {
			blocking++
		}
	}
	s := fmt.Sprintf("Review: PR #%d round %d — %s. %d blocking, %d advisory.",
		pr, round, verdict, blocking, len(findings)-blocking)
	if ticketID != "" {
		s += " (" + ticketID + ")"
	}
	return s
}
