package firewall

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one enforcement primitive.
type Result struct {
	OK     bool
	Detail string
}

func success(format string, args ...any) Result {
	return Result{OK: true, Detail: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Result {
	return Result{OK: false, Detail: fmt.Sprintf(format, args...)}
}

// Adapter executes platform-specific enforcement primitives. Exactly one
// implementation is active per host, selected at process start; callers never
// branch on platform.
//
// Contract: Block is idempotent, Unblock fully reverses a prior Block and is
// a no-op for never-blocked addresses, Kick terminates live sessions without
// touching the persistent block list, and every command runs synchronously
// under a bounded timeout with diagnostics captured on failure.
type Adapter interface {
	Name() string
	Block(ctx context.Context, ip string) Result
	Unblock(ctx context.Context, ip string) Result
	Kick(ctx context.Context, ip string) Result
}

// runner abstracts command execution so adapters can be tested without root
// or platform tools.
type runner interface {
	run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct {
	timeout time.Duration
}

func (r execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, name, args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if runCtx.Err() == context.DeadlineExceeded {
		return text, fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("%w: %s", err, text)
		}
		return text, err
	}
	return text, nil
}

// New selects the adapter for the current host platform.
func New(log zerolog.Logger, commandTimeout time.Duration) (Adapter, error) {
	return newForOS(log, runtime.GOOS, execRunner{timeout: commandTimeout})
}

func newForOS(log zerolog.Logger, goos string, r runner) (Adapter, error) {
	switch goos {
	case "linux":
		return &iptablesAdapter{log: log, run: r}, nil
	case "windows":
		return &netshAdapter{log: log, run: r}, nil
	case "darwin":
		return &pfctlAdapter{log: log, run: r}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}
