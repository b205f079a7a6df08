package agent

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/protocol"
	"github.com/paddockai/paddock/pkg/registry"
	"github.com/paddockai/paddock/pkg/tools"
)

// Summary is the public projection of an agent.
type Summary struct {
	Path        string `json:"path"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry owns every loaded agent, keyed by path. It is safe for
// concurrent use; writes happen only during load, reload, and
// shutdown.
type Registry struct {
	agents *registry.Keyed[*Agent]
	deps   Dependencies
}

func NewRegistry(deps Dependencies) *Registry {
	r := &Registry{
		agents: registry.NewKeyed[*Agent](),
		deps:   deps,
	}
	// Delegation tools resolve target agents through the registry at
	// invocation time; the registry is never owned by a tool.
	r.deps.Lookup = func(path string) (tools.Delegate, error) {
		return r.Get(path)
	}
	return r
}

// LoadAll loads every *.json agent config under dir. A missing
// directory yields an empty registry; an invalid file or a duplicate
// path fails the whole load.
func (r *Registry) LoadAll(dir string) error {
	staged, err := r.stage(dir)
	if err != nil {
		return err
	}

	for path, agent := range staged {
		if err := r.agents.Put(path, agent); err != nil {
			return protocol.WrapError(protocol.ErrAgentConfig,
				fmt.Sprintf("duplicate agent path '%s'", path), err)
		}
	}

	slog.Info("Loaded agents", "dir", dir, "count", r.agents.Len())
	return nil
}

// stage builds the agent set for dir without touching the live
// collection, so a failed load leaves the current agents serving.
func (r *Registry) stage(dir string) (map[string]*Agent, error) {
	configs, err := config.LoadAgentDir(dir)
	if err != nil {
		return nil, protocol.WrapError(protocol.ErrAgentConfig, "failed to load agent configs", err)
	}

	staged := make(map[string]*Agent, len(configs))
	for _, cfg := range configs {
		if _, exists := staged[cfg.Path]; exists {
			return nil, protocol.NewError(protocol.ErrAgentConfig,
				fmt.Sprintf("duplicate agent path '%s'", cfg.Path))
		}
		staged[cfg.Path] = New(cfg, r.deps)
	}
	return staged, nil
}

// Get returns the agent registered at path.
func (r *Registry) Get(path string) (*Agent, error) {
	agent, ok := r.agents.Get(path)
	if !ok {
		return nil, protocol.NewError(protocol.ErrAgentNotFound,
			fmt.Sprintf("agent not found: %s", path))
	}
	return agent, nil
}

// GetConfig returns the validated config of the agent at path.
func (r *Registry) GetConfig(path string) (*config.AgentConfig, error) {
	agent, err := r.Get(path)
	if err != nil {
		return nil, err
	}
	return agent.Config(), nil
}

func (r *Registry) Has(path string) bool {
	_, ok := r.agents.Get(path)
	return ok
}

// List returns the discovery projection of every agent, ordered by
// path.
func (r *Registry) List() []Summary {
	agents := r.agents.Values()
	summaries := make([]Summary, 0, len(agents))
	for _, agent := range agents {
		cfg := agent.Config()
		summaries = append(summaries, Summary{
			Path:        cfg.Path,
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
		})
	}
	return summaries
}

// Configs returns every agent config, ordered by path.
func (r *Registry) Configs() []*config.AgentConfig {
	agents := r.agents.Values()
	configs := make([]*config.AgentConfig, 0, len(agents))
	for _, agent := range agents {
		configs = append(configs, agent.Config())
	}
	return configs
}

func (r *Registry) Count() int {
	return r.agents.Len()
}

// ShutdownAll shuts every agent down in parallel. Individual failures
// are logged and swallowed; the registry is cleared only after every
// agent has been attempted.
func (r *Registry) ShutdownAll(ctx context.Context) {
	shutdownAgents(ctx, r.agents.Values())
	r.agents.Clear()
}

// Reload stages the directory's configs and swaps them in only once
// the whole load succeeds; the previous agents keep serving when the
// reload fails, and are shut down after the swap when it works. Used
// by the config watcher.
func (r *Registry) Reload(ctx context.Context, dir string) error {
	staged, err := r.stage(dir)
	if err != nil {
		return err
	}

	old := r.agents.Swap(staged)
	shutdownAgents(ctx, old)

	slog.Info("Reloaded agents", "dir", dir, "count", r.agents.Len())
	return nil
}

func shutdownAgents(ctx context.Context, agents []*Agent) {
	var g errgroup.Group
	for _, agent := range agents {
		g.Go(func() error {
			if err := agent.Shutdown(ctx); err != nil {
				slog.Warn("Agent shutdown failed", "agent", agent.Config().ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
