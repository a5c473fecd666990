package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skillforge/skillforge/internal/bus"
	"github.com/skillforge/skillforge/internal/config"
	"github.com/skillforge/skillforge/internal/driver"
	"github.com/skillforge/skillforge/internal/logging"
	"github.com/skillforge/skillforge/internal/sidecar"
	"github.com/skillforge/skillforge/internal/skillmd"
	"github.com/skillforge/skillforge/internal/store"
)

// App holds the wired application: one store, one bus, one pool, one
// driver, shared by whichever command runs.
type App struct {
	cfg    *config.Config
	log    *logging.Logger
	store  *store.Store
	mem    *bus.Memory
	pub    bus.Publisher
	pool   *sidecar.Pool
	driver *driver.Driver
}

func newApp(configPath string, verbose bool) (*App, error) {
	var cfg *config.Config
	var err error
	switch {
	case configPath != "":
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
	default:
		cfg, err = config.LoadDefault()
		if err != nil {
			cfg = config.Default()
		}
	}

	log := logging.New()
	if verbose {
		log.SetLevel(logging.LevelDebug)
	}

	if err := os.MkdirAll(cfg.StoragePath(), 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	mem := bus.NewMemory()
	var pub bus.Publisher = mem
	if cfg.Bus.URL != "" {
		nats, err := bus.ConnectNATS(cfg.Bus.URL, cfg.Bus.SubjectPrefix)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connecting event bus: %w", err)
		}
		pub = bus.NewFanout(mem, nats)
	}

	pool := sidecar.NewPool(sidecar.Options{
		Dispatcher:   sidecar.NewDispatcher(pub, log),
		Log:          log,
		Program:      cfg.Runtime.Program,
		SDKDir:       cfg.Runtime.SDKDir,
		NodeOverride: cfg.Runtime.NodeOverride,
		Grace:        time.Duration(cfg.Sidecar.GraceSeconds) * time.Second,
	})

	d := driver.New(driver.Options{
		Config:        cfg,
		Store:         st,
		Pool:          pool,
		Memory:        mem,
		Log:           log,
		TranscriptDir: filepath.Join(cfg.StoragePath(), "transcripts"),
	})

	return &App{
		cfg:    cfg,
		log:    log,
		store:  st,
		mem:    mem,
		pub:    pub,
		pool:   pool,
		driver: d,
	}, nil
}

// Close tears the application down in dependency order: sidecars first,
// then locks and sessions, then the bus and the database.
func (a *App) Close() {
	a.driver.Shutdown(context.Background())
	if a.pub != nil {
		a.pub.Close()
	}
	a.mem.Close()
	a.store.Close()
}

// Run executes the build workflow for one skill.
func (c *BuildCmd) Run(app *App, ctx context.Context) error {
	if err := skillmd.ValidateName(c.Skill); err != nil {
		return fmt.Errorf("invalid skill name: %w", err)
	}
	if c.Model != "" {
		app.cfg.Sidecar.Model = c.Model
	}
	if c.MaxTurns > 0 {
		app.cfg.Sidecar.MaxTurns = c.MaxTurns
	}

	apiKey := globalCreds.AnthropicKey()
	if apiKey == "" {
		return fmt.Errorf("no Anthropic API key found; set ANTHROPIC_API_KEY or add it to credentials.toml")
	}

	if err := app.driver.Build(ctx, c.Skill, nil, apiKey); err != nil {
		return err
	}
	fmt.Printf("skill %s built\n", c.Skill)
	return nil
}

// Run prints build progress, lock state, and open sessions for a skill.
func (c *StatusCmd) Run(app *App, ctx context.Context) error {
	confirmed, err := app.store.LastConfirmedStep(c.Skill)
	if err != nil {
		return err
	}
	if confirmed == -1 {
		fmt.Printf("%s: no steps confirmed\n", c.Skill)
	} else {
		fmt.Printf("%s: last confirmed step %d\n", c.Skill, confirmed)
	}

	holder, err := app.store.LockHolder(c.Skill)
	if err != nil {
		return err
	}
	if holder != nil {
		fmt.Printf("locked by instance %s (pid %d) since %s\n",
			holder.InstanceID, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
	}

	sessions, err := app.store.OpenSessions()
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.SkillName != c.Skill {
			continue
		}
		fmt.Printf("open session %s (pid %d) since %s\n",
			sess.SessionID, sess.PID, sess.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// Run erases a skill's build output and recorded progress.
func (c *ResetCmd) Run(app *App, ctx context.Context) error {
	if !c.Force {
		fmt.Printf("This deletes all build output and progress for %s. Continue? [y/N] ", c.Skill)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return nil
		}
	}
	if err := app.driver.Reset(ctx, c.Skill); err != nil {
		return err
	}
	fmt.Printf("skill %s reset\n", c.Skill)
	return nil
}

// Run sweeps stale step output, or rolls back one specific step.
func (c *CleanupCmd) Run(app *App, ctx context.Context) error {
	if c.Step >= 0 {
		return app.driver.RollbackStep(ctx, c.Skill, c.Step)
	}
	return app.driver.Reconcile(ctx, c.Skill)
}
