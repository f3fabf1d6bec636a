package firewall

import (
	"context"

	"github.com/rs/zerolog"
)

// iptablesAdapter enforces access state with iptables INPUT/FORWARD DROP
// rules and flushes conntrack state for kicks.
type iptablesAdapter struct {
	log zerolog.Logger
	run runner
}

func (a *iptablesAdapter) Name() string { return "iptables" }

func (a *iptablesAdapter) Block(ctx context.Context, ip string) Result {
	// -C probes for an existing rule so a re-block stays idempotent.
	if _, err := a.run.run(ctx, "iptables", "-C", "INPUT", "-s", ip, "-j", "DROP"); err == nil {
		return success("ip %s already blocked", ip)
	}
	if _, err := a.run.run(ctx, "iptables", "-A", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		return failure("failed to block %s: %v", ip, err)
	}
	if _, err := a.run.run(ctx, "iptables", "-A", "FORWARD", "-s", ip, "-j", "DROP"); err != nil {
		// Roll the INPUT rule back so a half-applied block is not left behind.
		if _, delErr := a.run.run(ctx, "iptables", "-D", "INPUT", "-s", ip, "-j", "DROP"); delErr != nil {
			a.log.Error().Err(delErr).Str("ip", ip).Msg("failed to roll back INPUT rule")
		}
		return failure("failed to block %s in FORWARD: %v", ip, err)
	}
	return success("ip %s blocked", ip)
}

func (a *iptablesAdapter) Unblock(ctx context.Context, ip string) Result {
	if _, err := a.run.run(ctx, "iptables", "-C", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		// Never blocked; unblock succeeds as a no-op.
		return success("ip %s was not blocked", ip)
	}
	if _, err := a.run.run(ctx, "iptables", "-D", "INPUT", "-s", ip, "-j", "DROP"); err != nil {
		return failure("failed to unblock %s: %v", ip, err)
	}
	if _, err := a.run.run(ctx, "iptables", "-D", "FORWARD", "-s", ip, "-j", "DROP"); err != nil {
		a.log.Warn().Err(err).Str("ip", ip).Msg("no FORWARD rule to remove")
	}
	return success("ip %s unblocked", ip)
}

func (a *iptablesAdapter) Kick(ctx context.Context, ip string) Result {
	// Drop tracked connections only; the block list is untouched so the
	// device reconnects as active.
	out, err := a.run.run(ctx, "conntrack", "-D", "-s", ip)
	if err != nil {
		return failure("failed to kick %s: %v", ip, err)
	}
	if out != "" {
		return success("ip %s kicked: %s", ip, out)
	}
	return success("ip %s kicked", ip)
}
