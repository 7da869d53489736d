// Package runtime assembles the coordination surfaces into one
// process-lifetime value. cmd/herd builds a single Runtime and hands it to
// the transport; nothing in the tree is a package-level singleton.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/bus"
	"github.com/herd-sh/herd/pkg/checkin"
	"github.com/herd-sh/herd/pkg/claude"
	"github.com/herd-sh/herd/pkg/cleanup"
	"github.com/herd-sh/herd/pkg/config"
	"github.com/herd-sh/herd/pkg/database"
	"github.com/herd-sh/herd/pkg/events"
	"github.com/herd-sh/herd/pkg/graph"
	"github.com/herd-sh/herd/pkg/identity"
	"github.com/herd-sh/herd/pkg/linear"
	"github.com/herd-sh/herd/pkg/masking"
	"github.com/herd-sh/herd/pkg/memory"
	"github.com/herd-sh/herd/pkg/models"
	"github.com/herd-sh/herd/pkg/repo"
	"github.com/herd-sh/herd/pkg/session"
	"github.com/herd-sh/herd/pkg/slack"
	"github.com/herd-sh/herd/pkg/store"
	"github.com/herd-sh/herd/pkg/tier"
	"github.com/herd-sh/herd/pkg/tools"
)

// Runtime owns every process-lifetime surface the transport serves.
type Runtime struct {
	Config   *config.Config
	Roster   *tier.Roster
	Bus      *bus.Bus
	Checkins *checkin.Registry
	Adapters *adapters.Registry
	Ops      *store.Ops
	Memory   *memory.Store
	Graph    *graph.Graph
	Events   *events.Manager
	Sessions *session.Manager
	Tools    *tools.Registry
	Janitor  *cleanup.Service

	db *database.Client
}

// New wires the runtime from a validated config: roster, identity
// environment, bus, stores, external adapters, tool registry, session
// manager and janitor. The janitor starts immediately; Close stops it.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	roster := buildRoster(cfg)
	exportIdentity(cfg.Identity)

	b, err := bus.Open(cfg.BusPath(), roster)
	if err != nil {
		return nil, fmt.Errorf("opening bus: %w", err)
	}

	db, err := database.NewClient(ctx, database.DefaultConfig(cfg.StorePath()))
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	st := store.New(db)
	if err := seedModels(ctx, st); err != nil {
		_ = b.Close()
		_ = db.Close()
		return nil, fmt.Errorf("seeding model pricing: %w", err)
	}

	var embedder memory.Embedder
	if cfg.Memory.EmbedEndpoint != "" {
		embedder = memory.NewHTTPEmbedder(cfg.Memory.EmbedEndpoint, cfg.Memory.EmbedAPIKey, cfg.Memory.EmbedModel)
	}
	mem := memory.New(cfg.MemoryPath(), embedder)
	g := graph.New(cfg.GraphPath())

	masker := masking.NewService()
	reg := &adapters.Registry{
		Store: st,
		Agent: claude.NewSpawner(cfg.Spawn.ClaudePath, cfg.Spawn.DefaultModel),
	}
	// Typed nils must not reach the interface slots; an unconfigured
	// adapter stays nil so NeedX reports it.
	if t := linear.NewTickets(cfg.Linear.APIKey, cfg.Linear.TeamKey); t != nil {
		reg.Tickets = t
	}
	if n := slack.NewNotifier(slack.NotifierConfig{Token: cfg.Slack.Token, Channel: cfg.Slack.Channel}, masker); n != nil {
		reg.Notify = n
	}
	var gh *repo.GitHub
	if cfg.GitHub.Repo != "" {
		gh = repo.NewGitHub(cfg.GitHub.Token, cfg.GitHub.Repo)
	}
	reg.Repo = repo.NewAdapter(repo.NewGit(cfg.ProjectPath, cfg.GitHub.BaseBranch), gh)

	checkins := checkin.NewRegistry()
	ev := events.NewManager()
	ops := store.NewOps(st)

	handlers := tools.New(tools.Handlers{
		Config:   cfg,
		Roster:   roster,
		Bus:      b,
		Checkins: checkins,
		Adapters: reg,
		Ops:      ops,
		Memory:   mem,
		Graph:    g,
		Events:   ev,
	})

	sessions := session.NewManager(
		claude.NewRunner(cfg.Spawn.ClaudePath, cfg.Spawn.DefaultModel),
		session.Options{
			SystemPrompt: cfg.Session.SystemPrompt,
			WorkDir:      cfg.ProjectPath,
			IdleTimeout:  cfg.Session.IdleTimeout.Std(),
		},
	)

	janitor := cleanup.NewService(cfg.Cleanup, b, checkins)
	janitor.Start(ctx)

	return &Runtime{
		Config:   cfg,
		Roster:   roster,
		Bus:      b,
		Checkins: checkins,
		Adapters: reg,
		Ops:      ops,
		Memory:   mem,
		Graph:    g,
		Events:   ev,
		Sessions: sessions,
		Tools:    tools.NewRegistry(handlers),
		Janitor:  janitor,
		db:       db,
	}, nil
}

// Close stops the janitor and session manager, then releases every store.
func (r *Runtime) Close() error {
	r.Janitor.Stop()
	r.Sessions.Close()

	var errs []error
	if err := r.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing bus: %w", err))
	}
	if err := r.Memory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing memory: %w", err))
	}
	if err := r.Graph.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing graph: %w", err))
	}
	if err := r.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

var tierByName = map[string]tier.Tier{
	"leader":     tier.Leader,
	"senior":     tier.Senior,
	"mechanical": tier.Mechanical,
	"execution":  tier.Execution,
}

// buildRoster starts from the built-in agent table and layers on the
// config's roster extensions. Config validation has already vetted the
// tier names.
func buildRoster(cfg *config.Config) *tier.Roster {
	r := tier.DefaultRoster()
	for _, role := range cfg.Roster {
		r.Add(tier.Role{
			Code:        role.Code,
			Name:        role.Name,
			Tier:        tierByName[role.Tier],
			Description: role.Description,
		})
	}
	return r
}

// exportIdentity writes configured identity values into the process
// environment so per-call resolution and spawned instances inherit them.
func exportIdentity(id config.IdentityConfig) {
	for key, val := range map[string]string{
		identity.EnvAgentName:  id.AgentName,
		identity.EnvInstanceID: id.InstanceID,
		identity.EnvTeam:       id.Team,
		identity.EnvOrg:        id.Org,
		identity.EnvHost:       id.Host,
	} {
		if val == "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			slog.Warn("Could not export identity variable", "key", key, "error", err)
		}
	}
}

// defaultModels are the pricing rows seeded when absent, in dollars per
// million tokens.
func defaultModels() []*models.Model {
	return []*models.Model{
		{ID: "opus", DisplayName: "Claude Opus", InputPrice: 15, OutputPrice: 75, CacheReadPrice: 1.5, CacheWritePrice: 18.75},
		{ID: "sonnet", DisplayName: "Claude Sonnet", InputPrice: 3, OutputPrice: 15, CacheReadPrice: 0.3, CacheWritePrice: 3.75},
		{ID: "haiku", DisplayName: "Claude Haiku", InputPrice: 0.8, OutputPrice: 4, CacheReadPrice: 0.08, CacheWritePrice: 1},
	}
}

// seedModels inserts the default price cards that are not already present.
// Existing rows are never overwritten; operators may retune prices.
func seedModels(ctx context.Context, st adapters.Store) error {
	for _, m := range defaultModels() {
		_, err := st.Get(ctx, models.TypeModel, m.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, adapters.ErrNotFound) {
			return err
		}
		if _, err := st.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
