package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// Daemon manages an embedded Tor process via tornago, for deployments
// without a system Tor installation. Bootstrapping downloads directory
// information and builds circuits, which takes 1-3 minutes.
type Daemon struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout caps how long Start waits for the bootstrap.
func WithStartupTimeout(d time.Duration) DaemonOption {
	return func(t *Daemon) {
		t.startupTimeout = d
	}
}

// NewDaemon creates an embedded Tor manager. Call Start to launch it.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{startupTimeout: 3 * time.Minute}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the daemon on OS-assigned ports and blocks until it is
// bootstrapped or the startup timeout elapses.
func (d *Daemon) Start(ctx context.Context) error {
	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(d.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("tor: launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(cfg)
	if err != nil {
		return fmt.Errorf("%w: start embedded daemon: %w", ErrProxyUnavailable, err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop()
		return ctx.Err()
	default:
	}

	d.process = process
	d.socksAddr = process.SocksAddr()
	return nil
}

// Stop shuts the daemon down. Safe to call twice or before Start.
func (d *Daemon) Stop() error {
	if d.process == nil {
		return nil
	}
	err := d.process.Stop()
	d.process = nil
	d.socksAddr = ""
	return err
}

// Running reports whether the daemon is up.
func (d *Daemon) Running() bool {
	return d.process != nil
}

// NewClient returns a Client bound to the daemon's SOCKS port.
func (d *Daemon) NewClient(timeout time.Duration) (*Client, error) {
	if !d.Running() {
		return nil, ErrDaemonNotRunning
	}
	return NewClient(d.socksAddr, timeout)
}
