package firewall

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/metrics"
	"github.com/pb2106/Network-Control/internal/store"
)

// ActionKind is one logical access-control intent.
type ActionKind string

const (
	ActionBlock   ActionKind = "block"
	ActionUnblock ActionKind = "unblock"
	ActionKick    ActionKind = "kick"
)

// Rejection categories. These are returned before any adapter call; an
// adapter failure is not an error but an unsuccessful Outcome.
var (
	ErrBadAddress     = errors.New("malformed target address")
	ErrInvalidAction  = errors.New("invalid action kind")
	ErrUnknownDevice  = errors.New("target does not resolve to a known device")
	ErrSelfProtection = errors.New("refusing to act on an address bound to this host")
)

// Outcome is the concluded result of one enforcement attempt.
type Outcome struct {
	Kind     ActionKind    `json:"action"`
	TargetIP string        `json:"target_ip"`
	Operator string        `json:"operator"`
	Success  bool          `json:"success"`
	Detail   string        `json:"detail"`
	Ts       time.Time     `json:"timestamp"`
	Device   *store.Device `json:"device,omitempty"`
}

// Registry is the device-registry surface the engine needs.
type Registry interface {
	GetByIP(ctx context.Context, ip string) (store.Device, error)
	ApplyAccessState(ctx context.Context, id int64, state string, ts time.Time) (store.Device, bool, error)
}

// AuditQueries records action attempts and operator-visible alerts.
type AuditQueries interface {
	InsertActionRecord(ctx context.Context, arg store.InsertActionRecordParams) (store.ActionRecord, error)
	InsertAlert(ctx context.Context, arg store.InsertAlertParams) (store.Alert, error)
}

// Broadcaster fans a state-change event out to all streaming admin sessions.
type Broadcaster interface {
	Broadcast(kind string, data any)
}

// Engine validates and orchestrates access-control intents. Every attempt,
// successful or not, lands in the action log; registry state changes and
// sync events happen only on success. Failed attempts are never retried
// automatically.
type Engine struct {
	log     zerolog.Logger
	adapter Adapter
	guard   *Guard
	reg     Registry
	audit   AuditQueries
	bcast   Broadcaster
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(log zerolog.Logger, adapter Adapter, guard *Guard, reg Registry, audit AuditQueries, bcast Broadcaster, m *metrics.Metrics) *Engine {
	return &Engine{
		log:     log,
		adapter: adapter,
		guard:   guard,
		reg:     reg,
		audit:   audit,
		bcast:   bcast,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func stateFor(kind ActionKind) string {
	switch kind {
	case ActionBlock:
		return store.StatusBlocked
	case ActionUnblock:
		return store.StatusActive
	case ActionKick:
		return store.StatusKicked
	default:
		return ""
	}
}

// Perform runs one access-control action on behalf of operator. Rejections
// (bad address, unknown device, self-protection) return an error and leave
// no trace in the adapter; adapter failures return an unsuccessful Outcome
// with the captured diagnostic and a matching action record.
func (e *Engine) Perform(ctx context.Context, operator, targetIP string, kind ActionKind) (Outcome, error) {
	switch kind {
	case ActionBlock, ActionUnblock, ActionKick:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidAction, kind)
	}

	if _, err := netip.ParseAddr(targetIP); err != nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrBadAddress, targetIP)
	}

	// Self-protection comes before everything else and has no override.
	if e.guard.IsLocal(targetIP) {
		e.log.Warn().Str("operator", operator).Str("ip", targetIP).Str("action", string(kind)).
			Msg("self-protection rejected action against control host")
		e.metrics.IncFirewallAction(string(kind), "rejected")
		return Outcome{}, ErrSelfProtection
	}

	device, err := e.reg.GetByIP(ctx, targetIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			e.metrics.IncFirewallAction(string(kind), "rejected")
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownDevice, targetIP)
		}
		return Outcome{}, err
	}

	var res Result
	switch kind {
	case ActionBlock:
		res = e.adapter.Block(ctx, targetIP)
	case ActionUnblock:
		res = e.adapter.Unblock(ctx, targetIP)
	case ActionKick:
		res = e.adapter.Kick(ctx, targetIP)
	}

	// The commit timestamp is server-assigned at completion time; client
	// clocks never participate in conflict resolution.
	ts := e.now()
	out := Outcome{
		Kind:     kind,
		TargetIP: targetIP,
		Operator: operator,
		Success:  res.OK,
		Detail:   res.Detail,
		Ts:       ts,
	}

	if res.OK {
		updated, applied, applyErr := e.reg.ApplyAccessState(ctx, device.ID, stateFor(kind), ts)
		if applyErr != nil {
			e.log.Error().Err(applyErr).Int64("device_id", device.ID).Msg("failed to commit access state")
			out.Success = false
			out.Detail = "enforced but failed to commit device state: " + applyErr.Error()
		} else {
			out.Device = &updated
			if !applied {
				e.log.Debug().Int64("device_id", device.ID).Msg("access-state commit lost last-write-wins arbitration")
			}
		}
	} else {
		e.log.Warn().Str("ip", targetIP).Str("action", string(kind)).Str("detail", res.Detail).
			Msg("adapter reported failure")
	}

	// One action record per attempt, success or failure.
	if _, auditErr := e.audit.InsertActionRecord(ctx, store.InsertActionRecordParams{
		Action:   string(kind),
		TargetIP: targetIP,
		Operator: operator,
		Ts:       ts,
		Success:  out.Success,
		Detail:   out.Detail,
	}); auditErr != nil {
		e.log.Error().Err(auditErr).Msg("failed to append action record")
	}

	level := "info"
	if !out.Success {
		level = "danger"
	} else if kind == ActionKick {
		level = "warning"
	}
	if _, alertErr := e.audit.InsertAlert(ctx, store.InsertAlertParams{
		Message: fmt.Sprintf("Firewall %s on %s by %s: %s", kind, targetIP, operator, out.Detail),
		Level:   level,
		Ts:      ts,
	}); alertErr != nil {
		e.log.Error().Err(alertErr).Msg("failed to append alert")
	}

	if out.Success {
		e.metrics.IncFirewallAction(string(kind), "success")
		eventKind := "firewall_action"
		if kind == ActionKick {
			eventKind = "device_kicked"
		}
		e.bcast.Broadcast(eventKind, out)
	} else {
		e.metrics.IncFirewallAction(string(kind), "failure")
	}

	return out, nil
}
