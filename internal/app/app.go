// Package app assembles the engine and its collaborators from config. Every
// command builds on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vthunder/steward/internal/activity"
	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/config"
	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/executive"
	"github.com/vthunder/steward/internal/gtd"
	"github.com/vthunder/steward/internal/integrations/calendar"
	"github.com/vthunder/steward/internal/integrations/mail"
	"github.com/vthunder/steward/internal/integrations/tasks"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/mcp"
	"github.com/vthunder/steward/internal/memory"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/planner"
	"github.com/vthunder/steward/internal/reflex"
	"github.com/vthunder/steward/internal/resolve"
	"github.com/vthunder/steward/internal/web"
)

// offlineToken satisfies the token check for the local task list
const offlineToken = "offline"

// Options select how much of the stack to build
type Options struct {
	// Offline keeps tasks in a local file and leaves calendar and mail
	// signed out
	Offline bool
	// Registerer receives the engine metrics; nil uses a private registry
	Registerer prometheus.Registerer
}

// App is the assembled engine with its stores and clients
type App struct {
	Config     *config.Config
	Vocabulary config.Vocabulary
	Quick      *reflex.Engine
	Bridges    *bridge.Bridges
	Pending    pending.Store
	Notes      *memory.Notes
	Tokens     dispatch.TokenSource
	Calendar   dispatch.CalendarService
	Tasks      dispatch.TasksService
	// LocalTasks is set in offline mode
	LocalTasks *gtd.Store
	Engine     *dispatch.Engine
	Metrics    *dispatch.Metrics
	Registry   *prometheus.Registry
	Proxies    []*mcp.Proxy
	Activity   *activity.Log

	closers []func() error
}

// New builds the app from cfg
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Activity: activity.New(cfg.StatePath)}
	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	a.Vocabulary = config.DefaultVocabulary()
	if cfg.VocabularyFile != "" {
		vocab, err := config.LoadVocabulary(cfg.VocabularyFile)
		if err != nil {
			return nil, err
		}
		a.Vocabulary = vocab
	}
	a.Quick = reflex.NewEngine(a.Vocabulary.QuickReplies...)

	// One SQLite file holds notes and, by default, the pending plan
	db, err := pending.OpenSQLite(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if a.Notes, err = memory.NewNotes(db.DB()); err != nil {
		a.Close()
		return nil, err
	}
	switch cfg.PendingBackend {
	case config.BackendFile:
		a.Pending = pending.NewFileStore(cfg.StatePath)
	case config.BackendMemory:
		a.Pending = pending.NewMemoryStore()
	default:
		a.Pending = db
	}

	if opts.Offline {
		a.LocalTasks = gtd.NewStore(cfg.StatePath, cfg.Location)
		if err := a.LocalTasks.Load(); err != nil {
			a.Close()
			return nil, err
		}
		a.Tasks = a.LocalTasks
		a.Tokens = config.StaticTokens(offlineToken)
	} else {
		if a.Tokens, err = cfg.Tokens(); err != nil {
			a.Close()
			return nil, err
		}
		a.Calendar = calendar.NewClient(calendar.Config{Location: cfg.Location})
		a.Tasks = tasks.NewClient(tasks.Config{Location: cfg.Location})
	}

	a.Registry = prometheus.NewRegistry()
	reg := opts.Registerer
	if reg == nil {
		reg = a.Registry
	}
	a.Metrics = dispatch.MustNewMetrics(reg)

	a.Bridges = bridge.NewBridges(cfg.BridgeTimeout)

	deps := dispatch.Deps{
		Calendar: a.Calendar,
		Tasks:    a.Tasks,
		Tokens:   a.Tokens,
		Memory:   a.Notes,
		Web:      web.NewClient(web.Config{}),
		Pending:  a.Pending,
		Bridges:  a.Bridges,
		Resolver: resolve.New(a.Vocabulary.Resolver, a.Bridges.CalendarPick),
		Metrics:  a.Metrics,
	}
	if !opts.Offline {
		deps.Mail = mail.NewClient(mail.Config{})
	}
	a.Engine = dispatch.New(deps, cfg.Engine())

	if cfg.MCPConfigFile != "" {
		mcpCfg, err := mcp.LoadMCPConfig(cfg.MCPConfigFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("MCP_CONFIG: %w", err)
		}
		a.Proxies = mcp.ProxiesFromConfig(mcpCfg)
		for _, p := range a.Proxies {
			a.closers = append(a.closers, p.Close)
		}
	}

	logging.Info("app", "ready: state=%s pending=%s offline=%v integrations=%d",
		cfg.StatePath, cfg.PendingBackend, opts.Offline, len(a.Proxies))
	return a, nil
}

// NewExecutive creates the turn loop on top of the engine, with every
// configured MCP server registered as an integration
func (a *App) NewExecutive() *executive.Executive {
	p := planner.NewClient(a.Config.PlannerURL, a.Config.PlannerModel)
	x := executive.New(a.Engine, p, a.Notes, a.Quick, executive.Config{
		Retry:    a.Config.Retry,
		Location: a.Config.Location,
		Identity: a.identity(),
		Activity: a.Activity,
	})
	for _, proxy := range a.Proxies {
		x.RegisterIntegration(proxy.Name(), proxy)
	}
	logging.Info("app", "planner: %s", p.Model())
	return x
}

// identity reads <state>/identity.md, one prompt line per non-empty line
func (a *App) identity() []string {
	data, err := os.ReadFile(a.Config.Path("identity.md"))
	if err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ServeMetrics exposes the registry on addr until ctx is done
func (a *App) ServeMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logging.Info("metrics", "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics", "server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// Close releases stores and stops integration processes
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
