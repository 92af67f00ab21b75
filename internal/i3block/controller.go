// Package i3block nudges a running i3blocks instance to re-read the status
// file whenever the displayed text changes.
package i3block

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/display"
)

const refreshInterval = 10 * time.Second

var errNotFound = errors.New("i3blocks process not found")

// Controller tracks the i3blocks PID and sends it a realtime signal on text
// changes. It is a display.Sink.
type Controller struct {
	signal syscall.Signal
	logger zerolog.Logger

	pid      int
	pidMutex sync.RWMutex

	lastText string
	hasLast  bool
	textMu   sync.Mutex

	runMutex  sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}

	// overridable in tests
	findPID func() (int, error)
	kill    func(pid int, sig syscall.Signal) error
}

// NewController returns a controller that sends signal number sig, the
// SIGRTMIN-relative number configured in the i3blocks block plus 34.
func NewController(sig int) *Controller {
	return &Controller{
		signal:  syscall.Signal(sig),
		pid:     -1,
		logger:  log.With().Str("component", "i3block").Logger(),
		findPID: findPID,
		kill:    sendSignal,
	}
}

// Start refreshes the PID now and then every ten seconds until ctx ends or
// Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.runMutex.Lock()
	defer c.runMutex.Unlock()

	if c.isRunning {
		return fmt.Errorf("controller is already running")
	}

	if err := c.refreshPID(); err != nil {
		c.logger.Debug().Err(err).Msg("i3blocks not found yet")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.isRunning = true

	go c.monitorLoop(ctx)

	c.logger.Info().Int("signal", int(c.signal)).Msg("i3block controller started")
	return nil
}

func (c *Controller) Stop() {
	c.runMutex.Lock()
	defer c.runMutex.Unlock()

	if !c.isRunning {
		return
	}

	c.cancel()
	<-c.done
	c.isRunning = false

	c.logger.Info().Msg("i3block controller stopped")
}

func (c *Controller) monitorLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.refreshPID(); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to refresh i3blocks PID")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) refreshPID() error {
	pid, err := c.findPID()
	if err != nil {
		pid = -1
	}

	c.pidMutex.Lock()
	oldPID := c.pid
	c.pid = pid
	c.pidMutex.Unlock()

	if oldPID != pid {
		c.logger.Info().Int("old_pid", oldPID).Int("pid", pid).Msg("i3blocks PID updated")
	}
	return err
}

// findPID tries pgrep first and falls back to scanning ps output.
func findPID() (int, error) {
	output, err := exec.Command("pgrep", "-x", "i3blocks").Output()
	if err == nil {
		if pid, ok := firstPID(string(output)); ok {
			return pid, nil
		}
	}

	output, err = exec.Command("ps", "aux").Output()
	if err != nil {
		return -1, fmt.Errorf("failed to run ps command: %w", err)
	}
	if pid, ok := pidFromPS(string(output)); ok {
		return pid, nil
	}
	return -1, errNotFound
}

func firstPID(output string) (int, bool) {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			return pid, true
		}
	}
	return -1, false
}

func pidFromPS(output string) (int, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "i3blocks") || strings.Contains(line, "grep") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if pid, err := strconv.Atoi(fields[1]); err == nil {
			return pid, true
		}
	}
	return -1, false
}

func sendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send signal %d to process %d: %w", int(sig), pid, err)
	}
	return nil
}

func (c *Controller) GetPID() int {
	c.pidMutex.RLock()
	defer c.pidMutex.RUnlock()
	return c.pid
}

// Signal sends the configured signal to i3blocks.
func (c *Controller) Signal() error {
	pid := c.GetPID()
	if pid <= 0 {
		return errNotFound
	}
	return c.kill(pid, c.signal)
}

// Show signals i3blocks when the frame text differs from the last one.
func (c *Controller) Show(f display.Frame) {
	c.textMu.Lock()
	changed := !c.hasLast || f.Text != c.lastText
	c.lastText = f.Text
	c.hasLast = true
	c.textMu.Unlock()

	if !changed {
		return
	}
	if err := c.Signal(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to signal i3blocks")
	}
}
