package sidecar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// maxLineBytes bounds a single stdout line. Agent messages can carry whole
// file contents, so the limit is generous.
const maxLineBytes = 10 * 1024 * 1024

// Process is one live sidecar. It is created by startProcess and owned by
// the pool; the pool's reader goroutine is the only caller of wait.
type Process struct {
	AgentID   string
	Skill     string
	CreatedAt time.Time

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	// done is closed by the reader goroutine once the process has been
	// reaped; waitErr is valid after that.
	done    chan struct{}
	waitErr error
}

// startProcess launches nodePath running program in cfg.Workdir and writes
// the run request to its stdin. The pipe stays open afterwards so the
// runner can block on further input without seeing EOF.
func startProcess(nodePath, program string, agentID, skill string, cfg Config) (*Process, error) {
	request, err := cfg.requestJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding run request: %w", err)
	}

	cmd := exec.Command(nodePath, program)
	cmd.Dir = cfg.Workdir
	cmd.Env = append(os.Environ(), "ANTHROPIC_API_KEY="+cfg.APIKey)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening sidecar stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting sidecar: %w", err)
	}

	if _, err := stdin.Write(append(request, '\n')); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("writing run request: %w", err)
	}

	return &Process{
		AgentID:   agentID,
		Skill:     skill,
		CreatedAt: time.Now(),
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		done:      make(chan struct{}),
	}, nil
}

// PID returns the operating-system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// scanner returns a line scanner over the sidecar's stdout.
func (p *Process) scanner() *bufio.Scanner {
	sc := bufio.NewScanner(p.stdout)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return sc
}

// reap waits for the process to exit and wakes anyone blocked on done.
// Called exactly once, by the pool's reader goroutine.
func (p *Process) reap() {
	_ = p.stdin.Close()
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// exitSuccess reports whether the process exited with status zero. Only
// meaningful after done is closed.
func (p *Process) exitSuccess() bool {
	return p.waitErr == nil
}

// terminate asks the sidecar to exit and escalates to SIGKILL after the
// grace period. It returns true when force was required, and only after
// the process has been reaped.
func (p *Process) terminate(grace time.Duration) (forced bool) {
	select {
	case <-p.done:
		return false
	default:
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return false
	case <-timer.C:
	}

	_ = p.cmd.Process.Kill()
	<-p.done
	return true
}
