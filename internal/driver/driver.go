// Package driver sequences skill-build workflows: it acquires the skill
// lock, reconciles on-disk state against the last durably confirmed step,
// runs each remaining step in a sidecar, and records completions. The
// driver is the only component that sequences database writes against
// filesystem cleanup; cleanup always follows the durable write.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge/internal/bus"
	"github.com/skillforge/skillforge/internal/cleanup"
	"github.com/skillforge/skillforge/internal/config"
	"github.com/skillforge/skillforge/internal/logging"
	"github.com/skillforge/skillforge/internal/packaging"
	"github.com/skillforge/skillforge/internal/sidecar"
	"github.com/skillforge/skillforge/internal/steps"
	"github.com/skillforge/skillforge/internal/store"
	"github.com/skillforge/skillforge/internal/transcript"
	"github.com/skillforge/skillforge/internal/workflowstate"
)

// Options wire a Driver. Memory must be the same bus instance the pool's
// dispatcher publishes to (directly or through a fanout), because the
// driver observes step completion by subscribing to exit events.
type Options struct {
	Config        *config.Config
	Store         *store.Store
	Pool          *sidecar.Pool
	Memory        *bus.Memory
	Log           *logging.Logger
	TranscriptDir string
}

// Driver runs skill builds. One driver serves one application instance;
// its instance id scopes every lock it takes.
type Driver struct {
	cfg        *config.Config
	store      *store.Store
	pool       *sidecar.Pool
	mem        *bus.Memory
	clean      *cleanup.Engine
	log        *logging.Logger
	transcript string

	instanceID string
	pid        int
}

// New creates a driver with a fresh instance id.
func New(opts Options) *Driver {
	return &Driver{
		cfg:        opts.Config,
		store:      opts.Store,
		pool:       opts.Pool,
		mem:        opts.Memory,
		clean:      cleanup.New(opts.Log),
		log:        opts.Log.WithComponent("driver"),
		transcript: opts.TranscriptDir,
		instanceID: uuid.NewString(),
		pid:        os.Getpid(),
	}
}

// InstanceID returns the identifier this driver locks skills under.
func (d *Driver) InstanceID() string { return d.instanceID }

func (d *Driver) roots() cleanup.Roots {
	return cleanup.Roots{
		Workdir:    d.cfg.ResolveWorkspace(),
		OutputRoot: d.cfg.Paths.OutputRoot,
	}
}

// Reconcile brings the filesystem in line with the database before any
// work starts: every step's output beyond the last confirmed step is
// swept away. A legacy state file, if present, is surfaced in the log but
// never overrides the database.
func (d *Driver) Reconcile(ctx context.Context, skill string) error {
	confirmed, err := d.store.LastConfirmedStep(skill)
	if err != nil {
		return fmt.Errorf("reading confirmed step: %w", err)
	}

	if legacy, err := workflowstate.Load(steps.SkillDir(d.cfg.ResolveWorkspace(), skill)); err == nil && legacy != nil && !legacy.Empty() {
		d.log.Info("legacy state file present", map[string]interface{}{
			"skill":          skill,
			"legacy_step":    legacy.CurrentStep,
			"confirmed_step": confirmed,
		})
	}

	d.clean.Sweep(ctx, skill, confirmed, d.roots())
	return nil
}

// RunStep executes one workflow step in a sidecar and waits for it to
// finish. On success the completion is written durably before any
// cleanup; on failure the step's partial output is rolled back and no
// completion is recorded.
func (d *Driver) RunStep(ctx context.Context, skill string, stepID int, cfg sidecar.Config) error {
	if _, ok := steps.For(stepID); !ok {
		return fmt.Errorf("unknown step id %d", stepID)
	}

	agentID := uuid.NewString()
	sessionID := uuid.NewString()
	if err := d.store.StartSession(sessionID, skill, d.pid); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer func() {
		if err := d.store.EndSession(sessionID, false); err != nil {
			d.log.Warn("ending session failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		}
	}()

	exits := d.mem.Subscribe(bus.ChannelExit)
	defer exits.Close()
	stopTranscript, err := d.recordTranscript(agentID, skill)
	if err != nil {
		return err
	}
	defer stopTranscript()

	if cfg.Workdir == "" {
		root := steps.ResolveRoot(stepID, d.cfg.ResolveWorkspace(), d.cfg.Paths.OutputRoot)
		cfg.Workdir = steps.SkillDir(root, skill)
	}
	if err := os.MkdirAll(cfg.Workdir, 0755); err != nil {
		return fmt.Errorf("creating step workdir: %w", err)
	}

	if err := d.pool.Spawn(ctx, agentID, skill, cfg); err != nil {
		return fmt.Errorf("spawning step %d agent: %w", stepID, err)
	}

	success, err := awaitExit(ctx, exits, agentID)
	if err != nil {
		d.pool.ShutdownSkill(context.WithoutCancel(ctx), skill)
		return err
	}
	if !success {
		d.clean.Step(skill, stepID, d.roots())
		return fmt.Errorf("step %d agent exited with failure", stepID)
	}

	if err := d.store.RecordStepComplete(skill, stepID); err != nil {
		return fmt.Errorf("recording step %d completion: %w", stepID, err)
	}
	d.clean.Sweep(ctx, skill, stepID, d.roots())

	if stepID == steps.StepBuild {
		return d.packageSkill(skill)
	}
	return nil
}

// packageSkill archives the build step's output next to it.
func (d *Driver) packageSkill(skill string) error {
	root := steps.ResolveRoot(steps.StepBuild, d.cfg.ResolveWorkspace(), d.cfg.Paths.OutputRoot)
	skillDir := steps.SkillDir(root, skill)
	res, err := packaging.Pack(skillDir, skillDir)
	if err != nil {
		return fmt.Errorf("packaging skill: %w", err)
	}
	d.log.Info("skill packaged", map[string]interface{}{
		"skill":   skill,
		"archive": res.ArchivePath,
		"files":   res.FileCount,
	})
	return nil
}

// recordTranscript appends every content and init-progress payload for
// agentID to the per-run transcript. The returned stop function closes
// the subscriptions and the file.
func (d *Driver) recordTranscript(agentID, skill string) (func(), error) {
	w, err := transcript.NewWriter(d.transcript, agentID)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}

	content := d.mem.Subscribe(bus.ChannelContent)
	progress := d.mem.Subscribe(bus.ChannelInitProgress)
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		for ev := range content.Events {
			c, ok := ev.Payload.(bus.Content)
			if !ok || c.AgentID != agentID {
				continue
			}
			if err := w.Append(agentID, skill, c.Message); err != nil {
				d.log.Warn("transcript append failed", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
			}
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		for ev := range progress.Events {
			p, ok := ev.Payload.(bus.InitProgress)
			if !ok || p.AgentID != agentID {
				continue
			}
			payload, err := json.Marshal(p)
			if err != nil {
				continue
			}
			if err := w.Append(agentID, skill, payload); err != nil {
				d.log.Warn("transcript append failed", map[string]interface{}{"agent_id": agentID, "error": err.Error()})
			}
		}
	}()

	return func() {
		content.Close()
		progress.Close()
		<-done
		<-done
		w.Close()
	}, nil
}

// awaitExit blocks until agentID's exit event arrives or ctx is done.
func awaitExit(ctx context.Context, exits bus.Subscription, agentID string) (bool, error) {
	for {
		select {
		case ev, ok := <-exits.Events:
			if !ok {
				return false, fmt.Errorf("event bus closed while awaiting agent %s", agentID)
			}
			exit, isExit := ev.Payload.(bus.Exit)
			if !isExit || exit.AgentID != agentID {
				continue
			}
			return exit.Success, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Build runs every step of skill that is not yet confirmed, in order.
// prompts maps step ids to the prompt each step's agent receives; steps
// without a prompt reuse the step name as a minimal instruction.
func (d *Driver) Build(ctx context.Context, skill string, prompts map[int]string, apiKey string) error {
	if err := d.store.AcquireLock(skill, d.instanceID, d.pid); err != nil {
		return fmt.Errorf("acquiring skill lock: %w", err)
	}
	defer func() {
		if err := d.store.ReleaseLock(skill, d.instanceID); err != nil {
			d.log.Warn("releasing skill lock failed", map[string]interface{}{"skill": skill, "error": err.Error()})
		}
	}()

	if err := d.Reconcile(ctx, skill); err != nil {
		return err
	}
	confirmed, err := d.store.LastConfirmedStep(skill)
	if err != nil {
		return fmt.Errorf("reading confirmed step: %w", err)
	}

	for _, stepID := range steps.After(confirmed) {
		out, _ := steps.For(stepID)
		prompt := prompts[stepID]
		if prompt == "" {
			prompt = fmt.Sprintf("Run the %s step for skill %s.", out.Name, skill)
		}
		cfg := sidecar.Config{
			Prompt:         prompt,
			Model:          d.cfg.Sidecar.Model,
			APIKey:         apiKey,
			AllowedTools:   d.cfg.Sidecar.AllowedTools,
			MaxTurns:       d.cfg.Sidecar.MaxTurns,
			PermissionMode: d.cfg.Sidecar.PermissionMode,
			Betas:          d.cfg.Sidecar.Betas,
			AgentName:      fmt.Sprintf("%s-%s", skill, out.Name),
		}
		start := time.Now()
		if err := d.RunStep(ctx, skill, stepID, cfg); err != nil {
			return fmt.Errorf("step %s: %w", out.Name, err)
		}
		d.log.Info("step complete", map[string]interface{}{
			"skill":    skill,
			"step":     out.Name,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
	}
	return nil
}

// RollbackStep removes one step's output so it can be re-run, dropping
// its completion record first so a crash mid-rollback is caught by the
// next reconciliation sweep.
func (d *Driver) RollbackStep(ctx context.Context, skill string, stepID int) error {
	if _, ok := steps.For(stepID); !ok {
		return fmt.Errorf("unknown step id %d", stepID)
	}
	confirmed, err := d.store.LastConfirmedStep(skill)
	if err != nil {
		return fmt.Errorf("reading confirmed step: %w", err)
	}
	if confirmed >= stepID {
		if err := d.store.ClearStepsFrom(skill, stepID); err != nil {
			return fmt.Errorf("clearing step completions: %w", err)
		}
	}
	d.clean.Step(skill, stepID, d.roots())
	return nil
}

// Reset erases everything the workflow produced for skill: thorough
// filesystem deletion, cleared step completions, and any open sessions
// for the skill marked ended-by-reset.
func (d *Driver) Reset(ctx context.Context, skill string) error {
	if err := d.store.AcquireLock(skill, d.instanceID, d.pid); err != nil {
		return fmt.Errorf("acquiring skill lock: %w", err)
	}
	defer d.store.ReleaseLock(skill, d.instanceID)

	if err := d.pool.ShutdownSkill(ctx, skill); err != nil {
		return err
	}
	if err := d.store.ClearSteps(skill); err != nil {
		return fmt.Errorf("clearing step completions: %w", err)
	}
	d.clean.Thorough(skill, d.roots())

	sessions, err := d.store.OpenSessions()
	if err != nil {
		return fmt.Errorf("listing open sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.SkillName != skill {
			continue
		}
		if err := d.store.EndSession(sess.SessionID, true); err != nil {
			d.log.Warn("ending session failed", map[string]interface{}{"session_id": sess.SessionID, "error": err.Error()})
		}
	}
	return nil
}

// Shutdown tears the instance down: every sidecar is terminated, then the
// instance's locks are released and its sessions closed. Safe to call
// when nothing is running.
func (d *Driver) Shutdown(ctx context.Context) {
	d.pool.ShutdownAll(ctx)
	if err := d.store.ReleaseAllForInstance(d.instanceID); err != nil {
		d.log.Warn("releasing locks failed", map[string]interface{}{"error": err.Error()})
	}
	if err := d.store.EndAllSessionsForPID(d.pid); err != nil {
		d.log.Warn("ending sessions failed", map[string]interface{}{"error": err.Error()})
	}
}
