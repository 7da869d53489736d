package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

// transcript lines can carry large tool results; the scanner needs room.
const maxTranscriptLine = 10 * 1024 * 1024

// usageBlock is the token accounting attached to assistant messages.
// Cache-creation counts appear under two spellings across CLI versions.
type usageBlock struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheCreateInputTokens   int64 `json:"cache_create_input_tokens"`
}

func (u *usageBlock) cacheCreate() int64 {
	return u.CacheCreationInputTokens + u.CacheCreateInputTokens
}

// transcriptLine is the slice of a session transcript entry harvest reads.
// Usage lives under message.usage in current transcripts; older ones put it
// at the top level.
type transcriptLine struct {
	Message struct {
		Role  string      `json:"role"`
		Model string      `json:"model"`
		Usage *usageBlock `json:"usage"`
	} `json:"message"`
	Usage *usageBlock `json:"usage"`
}

// tokenTotals accumulates usage for one model.
type tokenTotals struct {
	input, output, cacheRead, cacheCreate int64
}

// claudeProjectDir maps a project path to its per-project transcript
// directory: every path separator and dot becomes a dash.
func claudeProjectDir(base, projectPath string) string {
	encoded := strings.NewReplacer("/", "-", ".", "-").Replace(projectPath)
	return filepath.Join(base, encoded)
}

// harvestTokens aggregates token usage from the session transcripts of one
// project into token events, priced from the Model entities. Malformed
// transcript lines are skipped without complaint.
func (h *Handlers) harvestTokens(ctx context.Context, args map[string]any) (map[string]any, error) {
	instanceCode := stringArg(args, "agent_instance_code")
	projectPath := stringArg(args, "project_path")
	if instanceCode == "" || projectPath == "" {
		return errResult("agent_instance_code and project_path are required"), nil
	}

	st, err := h.Adapters.NeedStore()
	if err != nil {
		return errResult("%v", err), nil
	}

	base := h.Config.Harvest.ClaudeProjectsDir
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errResult("locating home directory failed: %v", err), nil
		}
		base = filepath.Join(home, ".claude", "projects")
	}
	dir := claudeProjectDir(base, projectPath)

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return errResult("listing transcripts failed: %v", err), nil
	}
	if len(files) == 0 {
		return errResult("no session transcripts under %s", dir), nil
	}

	totals := map[string]*tokenTotals{}
	for _, f := range files {
		if err := harvestFile(f, totals); err != nil {
			h.logger.Warn("Transcript unreadable, skipping", "file", f, "error", err)
		}
	}
	if len(totals) == 0 {
		return errResult("no assistant usage found under %s", dir), nil
	}

	// Attribute spend to the agent name when the instance is known.
	agentName := instanceCode
	if ent, err := st.Get(ctx, models.TypeAgent, instanceCode); err == nil {
		if a, ok := ent.(*models.Agent); ok && a.Name != "" {
			agentName = a.Name
		}
	}

	modelNames := make([]string, 0, len(totals))
	for m := range totals {
		modelNames = append(modelNames, m)
	}
	sort.Strings(modelNames)

	written := 0
	var totalCost float64
	for _, model := range modelNames {
		t := totals[model]
		cost := h.priceUsage(ctx, st, model, t)
		totalCost += cost

		if err := st.Append(ctx, models.Event{
			ID:       uuid.New().String(),
			EntityID: instanceCode,
			Category: models.CategoryToken,
			Kind:     models.KindTokenUsage,
			Payload: map[string]any{
				"agent":               agentName,
				"model":               model,
				"input_tokens":        t.input,
				"output_tokens":       t.output,
				"cache_read_tokens":   t.cacheRead,
				"cache_create_tokens": t.cacheCreate,
				"cost_usd":            cost,
			},
		}); err != nil {
			return errResult("recording usage for %s failed: %v", model, err), nil
		}
		written++
	}

	return map[string]any{
		"records_written":   written,
		"total_cost_usd":    totalCost,
		"models_processed":  len(modelNames),
		"session_directory": dir,
	}, nil
}

// harvestFile folds one transcript's assistant usage into totals.
func harvestFile(path string, totals map[string]*tokenTotals) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from the glob above
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxTranscriptLine)
	for sc.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue // malformed line, skip
		}
		if line.Message.Role != "assistant" {
			continue
		}
		usage := line.Message.Usage
		if usage == nil {
			usage = line.Usage
		}
		if usage == nil {
			continue
		}
		model := line.Message.Model
		if model == "" {
			model = "unknown"
		}

		t := totals[model]
		if t == nil {
			t = &tokenTotals{}
			totals[model] = t
		}
		t.input += usage.InputTokens
		t.output += usage.OutputTokens
		t.cacheRead += usage.CacheReadInputTokens
		t.cacheCreate += usage.cacheCreate()
	}
	if err := sc.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return err
	}
	return nil
}

// priceUsage converts token totals to dollars via the model's price card.
// Unknown models price at zero; the tokens still land in the event.
func (h *Handlers) priceUsage(ctx context.Context, st adapters.Store, model string, t *tokenTotals) float64 {
	ent, err := st.Get(ctx, models.TypeModel, model)
	if err != nil {
		h.logger.Debug("no price card for model", "model", model)
		return 0
	}
	card, ok := ent.(*models.Model)
	if !ok {
		return 0
	}
	const million = 1_000_000
	return float64(t.input)*card.InputPrice/million +
		float64(t.output)*card.OutputPrice/million +
		float64(t.cacheRead)*card.CacheReadPrice/million +
		float64(t.cacheCreate)*card.CacheWritePrice/million
}
