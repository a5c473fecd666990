package sidecar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillforge/skillforge/internal/logging"
	"github.com/skillforge/skillforge/internal/runtime"
)

// Options configure a Pool. Program, SDKDir and NodeOverride come from the
// runtime section of skillforge.toml and may be empty, in which case the
// resolver falls back to auto-discovery.
type Options struct {
	Dispatcher   *Dispatcher
	Log          *logging.Logger
	Program      string
	SDKDir       string
	NodeOverride string
	Grace        time.Duration
}

// Pool is the registry of live sidecars. It maps agent ids to processes
// and maintains a skill-name index so a whole skill's agents can be shut
// down together. All registry access happens under mu; process I/O never
// does.
type Pool struct {
	dispatch *Dispatcher
	log      *logging.Logger
	opts     Options

	mu      sync.Mutex
	agents  map[string]*Process
	bySkill map[string]map[string]struct{}

	readers sync.WaitGroup
}

// NewPool creates an empty pool.
func NewPool(opts Options) *Pool {
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	return &Pool{
		dispatch: opts.Dispatcher,
		log:      opts.Log.WithComponent("pool"),
		opts:     opts,
		agents:   make(map[string]*Process),
		bySkill:  make(map[string]map[string]struct{}),
	}
}

// Spawn resolves the runtime, launches a sidecar for skill under agentID
// and registers it. Startup failures are published on the init-error
// channel and returned as a *StartupError; nothing is registered on
// failure.
func (p *Pool) Spawn(ctx context.Context, agentID, skill string, cfg Config) error {
	_, span := otel.Tracer("skillforge/sidecar").Start(ctx, "pool.spawn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("skill.name", skill),
		))
	defer span.End()

	if err := p.reserve(agentID, skill); err != nil {
		return err
	}

	nodePath, serr := p.resolveRuntime(cfg.RuntimeOverride)
	if serr != nil {
		p.unreserve(agentID, skill)
		p.dispatch.StartupFailed(serr)
		return serr
	}
	program, err := runtime.ResolveProgram(p.opts.Program)
	if err != nil {
		p.unreserve(agentID, skill)
		serr := classifyStartup(err)
		p.dispatch.StartupFailed(serr)
		return serr
	}
	if _, err := runtime.ResolveSDK(p.opts.SDKDir); err != nil {
		p.unreserve(agentID, skill)
		serr := classifyStartup(err)
		p.dispatch.StartupFailed(serr)
		return serr
	}

	proc, err := startProcess(nodePath, program, agentID, skill, cfg)
	if err != nil {
		p.unreserve(agentID, skill)
		serr := &StartupError{Type: ErrorSpawnIO, Message: err.Error()}
		p.dispatch.StartupFailed(serr)
		return serr
	}

	p.mu.Lock()
	p.agents[agentID] = proc
	p.mu.Unlock()

	p.log.SidecarSpawned(agentID, skill, proc.PID())

	p.readers.Add(1)
	go p.read(proc)
	return nil
}

// resolveRuntime finds a Node.js binary and enforces the supported major
// range. A resolvable but too-old runtime is a startup error here even
// though the resolver itself reports it as a success.
func (p *Pool) resolveRuntime(override string) (string, *StartupError) {
	if override == "" {
		override = p.opts.NodeOverride
	}
	res, err := runtime.ResolveNode(override)
	if err != nil {
		return "", classifyStartup(err)
	}
	if !res.MeetsMinimum {
		return "", versionError(res)
	}
	return res.NodePath, nil
}

// reserve claims agentID in both indexes before the process exists, so a
// concurrent spawn of the same id fails fast instead of racing.
func (p *Pool) reserve(agentID, skill string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.agents[agentID]; ok {
		return fmt.Errorf("agent %s already registered", agentID)
	}
	p.agents[agentID] = nil
	if p.bySkill[skill] == nil {
		p.bySkill[skill] = make(map[string]struct{})
	}
	p.bySkill[skill][agentID] = struct{}{}
	return nil
}

func (p *Pool) unreserve(agentID, skill string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.agents, agentID)
	if set := p.bySkill[skill]; set != nil {
		delete(set, agentID)
		if len(set) == 0 {
			delete(p.bySkill, skill)
		}
	}
}

// read pumps one sidecar's stdout through the dispatcher, reaps the
// process, publishes the exit event and deregisters the agent. It runs
// for both natural exits and requested shutdowns; deregistration is
// idempotent so the two paths can overlap.
func (p *Pool) read(proc *Process) {
	defer p.readers.Done()

	sc := proc.scanner()
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		p.dispatch.DispatchLine(proc.AgentID, line)
	}
	if err := sc.Err(); err != nil {
		p.log.Warn("sidecar stdout read failed", map[string]interface{}{
			"agent_id": proc.AgentID,
			"error":    err.Error(),
		})
	}

	proc.reap()
	success := proc.exitSuccess()
	p.dispatch.Exited(proc.AgentID, success)
	p.log.SidecarExit(proc.AgentID, success, time.Since(proc.CreatedAt))
	p.deregister(proc.AgentID, proc.Skill)
}

// deregister removes agentID from both indexes. Safe to call more than
// once and for ids that were never registered.
func (p *Pool) deregister(agentID, skill string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.agents, agentID)
	if set := p.bySkill[skill]; set != nil {
		delete(set, agentID)
		if len(set) == 0 {
			delete(p.bySkill, skill)
		}
	}
}

// ShutdownSkill terminates every live agent registered under skill.
// With no live agents it is a no-op and returns nil without touching any
// process. Individual termination problems are logged, not propagated.
func (p *Pool) ShutdownSkill(ctx context.Context, skill string) error {
	_, span := otel.Tracer("skillforge/sidecar").Start(ctx, "pool.shutdown_skill",
		trace.WithAttributes(attribute.String("skill.name", skill)))
	defer span.End()

	for _, proc := range p.liveForSkill(skill) {
		p.shutdownOne(proc)
	}
	return nil
}

// ShutdownAll terminates every live agent in the pool and waits for all
// reader goroutines to drain.
func (p *Pool) ShutdownAll(ctx context.Context) {
	p.mu.Lock()
	live := make([]*Process, 0, len(p.agents))
	for _, proc := range p.agents {
		if proc != nil {
			live = append(live, proc)
		}
	}
	p.mu.Unlock()

	for _, proc := range live {
		p.shutdownOne(proc)
	}
	p.readers.Wait()
}

func (p *Pool) shutdownOne(proc *Process) {
	p.dispatch.ShuttingDown(proc.AgentID)
	forced := proc.terminate(p.opts.Grace)
	p.log.SidecarShutdown(proc.AgentID, proc.Skill, forced)
	p.deregister(proc.AgentID, proc.Skill)
}

func (p *Pool) liveForSkill(skill string) []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Process
	for agentID := range p.bySkill[skill] {
		if proc := p.agents[agentID]; proc != nil {
			out = append(out, proc)
		}
	}
	return out
}

// AgentCount reports the number of registered agents, reserved ids
// included.
func (p *Pool) AgentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

// AgentsForSkill returns the ids registered under skill.
func (p *Pool) AgentsForSkill(skill string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.bySkill[skill]))
	for id := range p.bySkill[skill] {
		ids = append(ids, id)
	}
	return ids
}
