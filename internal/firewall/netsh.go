package firewall

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// netshAdapter enforces access state with Windows Firewall rule objects via
// netsh advfirewall.
type netshAdapter struct {
	log zerolog.Logger
	run runner
}

func (a *netshAdapter) Name() string { return "netsh" }

func ruleName(ip string) string {
	return "NetworkControl_Block_" + strings.ReplaceAll(ip, ".", "_")
}

func (a *netshAdapter) Block(ctx context.Context, ip string) Result {
	name := ruleName(ip)
	out, err := a.run.run(ctx, "netsh", "advfirewall", "firewall", "show", "rule", "name="+name)
	if err == nil && !strings.Contains(out, "No rules match") {
		return success("ip %s already blocked", ip)
	}
	_, err = a.run.run(ctx, "netsh", "advfirewall", "firewall", "add", "rule",
		"name="+name, "dir=in", "action=block", "remoteip="+ip)
	if err != nil {
		return failure("failed to block %s: %v", ip, err)
	}
	return success("ip %s blocked", ip)
}

func (a *netshAdapter) Unblock(ctx context.Context, ip string) Result {
	name := ruleName(ip)
	out, err := a.run.run(ctx, "netsh", "advfirewall", "firewall", "show", "rule", "name="+name)
	if err != nil || strings.Contains(out, "No rules match") {
		return success("ip %s was not blocked", ip)
	}
	if _, err := a.run.run(ctx, "netsh", "advfirewall", "firewall", "delete", "rule", "name="+name); err != nil {
		return failure("failed to unblock %s: %v", ip, err)
	}
	return success("ip %s unblocked", ip)
}

func (a *netshAdapter) Kick(ctx context.Context, ip string) Result {
	// Windows has no per-host connection flush; invalidating the neighbor
	// cache forces live sessions to re-resolve, which is the closest
	// session-termination primitive without touching the block list.
	if _, err := a.run.run(ctx, "netsh", "interface", "ip", "delete", "arpcache"); err != nil {
		return failure("failed to kick %s: %v", ip, err)
	}
	return success("ip %s kicked (neighbor cache flushed)", ip)
}
