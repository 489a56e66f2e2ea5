package plugin

// process.go — per-plugin subprocess lifecycle: PTY allocation, process
// spawn, rolling log buffer. Adapted from the teacher's
// internal/daemon/instance.go startAgent/ptyReader/destroy, repurposed from
// supervising an AI coding agent to supervising an installed plugin's
// executable so a plugin's interactive output (progress bars, prompts) is
// captured the same way a real terminal would see it.

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const maxLogBytes = 1 << 20 // 1 MiB rolling log per plugin process

// State is a plugin process's lifecycle state.
type State string

const (
	StateStopped State = "Stopped"
	StateRunning State = "Running"
	StateCrashed State = "Crashed"
	StateKilled  State = "Killed"
)

// Process supervises one running plugin executable.
type Process struct {
	ID      string
	Command string
	Args    []string
	Dir     string

	mu          sync.Mutex
	state       State
	pid         int
	ptm         *os.File
	logBuf      []byte
	processDone chan struct{}
	killed      bool
}

// NewProcess builds a stopped Process for manifest-declared command/args.
func NewProcess(id, command string, args []string, dir string) *Process {
	return &Process{ID: id, Command: command, Args: args, Dir: dir, state: StateStopped}
}

// Start allocates a PTY and launches the plugin executable inside it,
// mirroring Instance.startAgent.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return fmt.Errorf("plugin %s already running", p.ID)
	}
	p.mu.Unlock()

	cmd := exec.Command(p.Command, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptm, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("pty.Start: %w", err)
	}

	p.mu.Lock()
	p.ptm = ptm
	p.pid = cmd.Process.Pid
	p.state = StateRunning
	p.killed = false
	p.processDone = make(chan struct{})
	p.mu.Unlock()

	go p.readLoop(cmd)
	return nil
}

// readLoop drains PTY output into the rolling log buffer until the process
// exits, then records its final state — identical in shape to
// Instance.ptyReader, minus the attach-forwarding concern (plugin output is
// polled via Log/LogTail, not live-attached).
func (p *Process) readLoop(cmd *exec.Cmd) {
	buf := make([]byte, 4096)
	for {
		n, err := p.ptm.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.logBuf = append(p.logBuf, buf[:n]...)
			if len(p.logBuf) > maxLogBytes {
				p.logBuf = p.logBuf[len(p.logBuf)-maxLogBytes:]
			}
			p.mu.Unlock()
		}
		if err != nil {
			break
		}
	}

	waitErr := cmd.Wait()

	p.mu.Lock()
	p.ptm.Close()
	p.ptm = nil
	if waitErr == nil {
		p.state = StateStopped
	} else if p.killed {
		p.state = StateKilled
	} else {
		p.state = StateCrashed
	}
	done := p.processDone
	p.mu.Unlock()

	if done != nil {
		close(done)
	}
}

// Stop kills the plugin's process group, mirroring Instance.destroy.
func (p *Process) Stop() {
	p.mu.Lock()
	pid := p.pid
	p.killed = true
	p.mu.Unlock()

	if pid > 0 {
		pgid, err := syscall.Getpgid(pid)
		if err == nil && pgid > 0 {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			syscall.Kill(pid, syscall.SIGKILL)
		}
	}

	p.mu.Lock()
	done := p.processDone
	p.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LogTail returns a copy of the rolling log buffer.
func (p *Process) LogTail() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.logBuf))
	copy(out, p.logBuf)
	return out
}
