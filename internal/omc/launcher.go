package omc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrCompilerNotInstalled is returned when the compiler executable cannot be found.
var ErrCompilerNotInstalled = errors.New("compiler executable not found")

// LaunchConfig describes how to reach a compiler.
type LaunchConfig struct {
	// Executable is the compiler binary, resolved through PATH. Defaults to "omc".
	Executable string

	// Args are appended to the interactive-mode flags.
	Args []string

	// Endpoint, when set, connects to an already running compiler instead
	// of starting one.
	Endpoint string

	// PortFileTimeout bounds the wait for the compiler to publish its endpoint.
	PortFileTimeout time.Duration

	// TempDir is where the compiler writes its port file. Defaults to os.TempDir().
	TempDir string

	// StopTimeout bounds the wait for a quit process before it is killed.
	StopTimeout time.Duration
}

// Launcher starts compiler processes in ZeroMQ mode and connects to them.
// It implements Dialer.
type Launcher struct {
	config LaunchConfig
	logger *slog.Logger
}

// NewLauncher creates a Launcher. A nil logger discards output.
func NewLauncher(config LaunchConfig, logger *slog.Logger) *Launcher {
	if config.Executable == "" {
		config.Executable = "omc"
	}
	if config.PortFileTimeout <= 0 {
		config.PortFileTimeout = 5 * time.Second
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Launcher{config: config, logger: logger.With("component", "launcher")}
}

// Dial starts a compiler (unless a fixed endpoint is configured) and
// connects to it. A port file that never appears is reported as ErrTransient.
func (l *Launcher) Dial(ctx context.Context) (Transport, error) {
	if l.config.Endpoint != "" {
		t, err := DialZMQ(l.config.Endpoint)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("connected to running compiler", "endpoint", t.Endpoint())
		return t, nil
	}

	path, err := exec.LookPath(l.config.Executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCompilerNotInstalled, l.config.Executable)
	}

	suffix := uuid.NewString()
	args := append([]string{"--interactive=zmq", "--locale=C", "-z=" + suffix}, l.config.Args...)
	cmd := exec.Command(path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}
	l.logger.Debug("compiler started", "pid", cmd.Process.Pid, "suffix", suffix)

	portFile, err := l.portFilePath(suffix)
	if err != nil {
		l.stop(cmd)
		return nil, err
	}

	endpoint, err := waitForPortFile(ctx, portFile, l.config.PortFileTimeout)
	if err != nil {
		l.stop(cmd)
		return nil, err
	}
	// The file is only needed once.
	_ = os.Remove(portFile)

	t, err := DialZMQ(endpoint)
	if err != nil {
		l.stop(cmd)
		return nil, err
	}
	l.logger.Debug("connected to compiler", "pid", cmd.Process.Pid, "endpoint", t.Endpoint())
	return &processTransport{ZMQTransport: t, cmd: cmd, launcher: l}, nil
}

// portFilePath mirrors the compiler's naming: openmodelica.<user>.port.<suffix>.
func (l *Launcher) portFilePath(suffix string) (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	return filepath.Join(l.config.TempDir, fmt.Sprintf("openmodelica.%s.port.%s", u.Username, suffix)), nil
}

// stop reaps a compiler process in the background, killing it if it does
// not exit within StopTimeout.
func (l *Launcher) stop(cmd *exec.Cmd) {
	go func() {
		done := make(chan error, 1)
		go func() {
			done <- cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(l.config.StopTimeout):
			l.logger.Warn("compiler did not exit, killing", "pid", cmd.Process.Pid)
			cmd.Process.Kill()
			<-done
		}
	}()
}

// waitForPortFile polls until the compiler writes its endpoint.
func waitForPortFile(ctx context.Context, path string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(path); err == nil {
			if endpoint := strings.TrimSpace(string(data)); endpoint != "" {
				return endpoint, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: port file %s not written within %v", ErrTransient, path, timeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// processTransport ties a socket to the compiler process behind it.
type processTransport struct {
	*ZMQTransport
	cmd      *exec.Cmd
	launcher *Launcher
}

// Close closes the socket and reaps the process in the background.
func (t *processTransport) Close() error {
	err := t.ZMQTransport.Close()
	t.launcher.stop(t.cmd)
	return err
}
