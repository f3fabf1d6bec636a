package firewall

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// pfctlAdapter enforces access state with a pf table on Darwin/BSD hosts.
// The table ("netctl_blocklist") must be referenced from the loaded pf
// ruleset; table membership is the persistent block list.
type pfctlAdapter struct {
	log zerolog.Logger
	run runner
}

const pfTable = "netctl_blocklist"

func (a *pfctlAdapter) Name() string { return "pfctl" }

func (a *pfctlAdapter) Block(ctx context.Context, ip string) Result {
	out, err := a.run.run(ctx, "pfctl", "-t", pfTable, "-T", "show")
	if err == nil {
		for _, line := range strings.Split(out, "\n") {
			if strings.TrimSpace(line) == ip {
				return success("ip %s already blocked", ip)
			}
		}
	}
	if _, err := a.run.run(ctx, "pfctl", "-t", pfTable, "-T", "add", ip); err != nil {
		return failure("failed to block %s: %v", ip, err)
	}
	return success("ip %s blocked", ip)
}

func (a *pfctlAdapter) Unblock(ctx context.Context, ip string) Result {
	out, err := a.run.run(ctx, "pfctl", "-t", pfTable, "-T", "show")
	if err == nil {
		found := false
		for _, line := range strings.Split(out, "\n") {
			if strings.TrimSpace(line) == ip {
				found = true
				break
			}
		}
		if !found {
			return success("ip %s was not blocked", ip)
		}
	}
	if _, err := a.run.run(ctx, "pfctl", "-t", pfTable, "-T", "delete", ip); err != nil {
		return failure("failed to unblock %s: %v", ip, err)
	}
	return success("ip %s unblocked", ip)
}

func (a *pfctlAdapter) Kick(ctx context.Context, ip string) Result {
	// pfctl -k kills state table entries for the host without adding any
	// rule, so a kicked device reconnects as active.
	if _, err := a.run.run(ctx, "pfctl", "-k", ip); err != nil {
		return failure("failed to kick %s: %v", ip, err)
	}
	return success("ip %s kicked", ip)
}
