// Package discovery keeps the device registry fed with sightings from the
// local network: an ARP table scrape, optionally primed by a ping sweep, with
// best-effort hostname resolution layered on top.
package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/metrics"
	"github.com/pb2106/Network-Control/internal/registry"
	"github.com/pb2106/Network-Control/internal/store"
)

// Registry is the sighting sink the worker feeds.
type Registry interface {
	UpsertSighting(ctx context.Context, s registry.Sighting) (store.Device, bool, error)
}

// Alerts receives the new-device notifications.
type Alerts interface {
	InsertAlert(ctx context.Context, arg store.InsertAlertParams) (store.Alert, error)
}

// Broadcaster pushes discovery events to connected admin sessions.
type Broadcaster interface {
	Broadcast(kind string, data any)
}

type Options struct {
	Interval     time.Duration
	ARPTablePath string
	Scope        string
	PingSweep    bool
	PingTimeout  time.Duration
	PingWorkers  int
	MaxTargets   int
	NameTimeout  time.Duration
}

type Worker struct {
	log     zerolog.Logger
	reg     Registry
	alerts  Alerts
	bcast   Broadcaster
	namer   Namer
	metrics *metrics.Metrics

	interval     time.Duration
	arpTablePath string
	scope        *netip.Prefix
	pingSweep    bool
	pingTimeout  time.Duration
	pingWorkers  int
	maxTargets   int
	nameTimeout  time.Duration

	trigger chan struct{}
}

func New(log zerolog.Logger, reg Registry, alerts Alerts, bcast Broadcaster, namer Namer, opts Options, m *metrics.Metrics) (*Worker, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	arpPath := strings.TrimSpace(opts.ARPTablePath)
	if arpPath == "" {
		arpPath = "/proc/net/arp"
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 800 * time.Millisecond
	}
	pingWorkers := opts.PingWorkers
	if pingWorkers <= 0 {
		pingWorkers = 16
	}
	maxTargets := opts.MaxTargets
	if maxTargets <= 0 {
		maxTargets = 1024
	}
	nameTimeout := opts.NameTimeout
	if nameTimeout <= 0 {
		nameTimeout = 500 * time.Millisecond
	}

	scope, err := parseScope(opts.Scope)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if _, err := countScopeTargets(*scope, maxTargets); err != nil {
			return nil, err
		}
	}

	return &Worker{
		log:          log,
		reg:          reg,
		alerts:       alerts,
		bcast:        bcast,
		namer:        namer,
		metrics:      m,
		interval:     interval,
		arpTablePath: arpPath,
		scope:        scope,
		pingSweep:    opts.PingSweep,
		pingTimeout:  pingTimeout,
		pingWorkers:  pingWorkers,
		maxTargets:   maxTargets,
		nameTimeout:  nameTimeout,
		trigger:      make(chan struct{}, 1),
	}, nil
}

// TriggerScan requests an immediate sweep outside the regular interval.
// Returns false when a sweep request is already pending.
func (w *Worker) TriggerScan() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run drives the worker until ctx is canceled. One sweep runs at startup so
// a fresh install has devices to show before the first interval elapses.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.reg == nil {
		return
	}

	if _, err := w.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.log.Error().Err(err).Msg("initial discovery sweep failed")
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-w.trigger:
		}

		if _, err := w.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error().Err(err).Msg("discovery sweep failed")
		}
		timer.Reset(w.interval)
	}
}

// SweepResult summarizes one discovery pass.
type SweepResult struct {
	Entries int `json:"entries"`
	New     int `json:"new"`
	Updated int `json:"updated"`
}

func (w *Worker) runOnce(ctx context.Context) (SweepResult, error) {
	w.metrics.IncDiscoveryRun()
	start := time.Now()
	defer func() {
		w.metrics.ObserveDiscoveryRunDuration(time.Since(start))
	}()

	if w.pingSweep && w.scope != nil {
		// A sweep primes the kernel neighbor table so the scrape below sees
		// hosts that have been quiet recently.
		sweep := w.runPingSweep(ctx, *w.scope)
		if sweep.Attempted > 0 {
			w.log.Debug().Int("attempted", sweep.Attempted).Int("succeeded", sweep.Succeeded).
				Msg("ping sweep finished")
		}
	}

	entries, err := w.readARPTable()
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, e := range entries {
		if w.scope != nil && !w.scope.Contains(e.IP) {
			continue
		}
		result.Entries++

		hostname := w.resolveName(ctx, e.IP.String())

		device, inserted, err := w.reg.UpsertSighting(ctx, registry.Sighting{
			MAC:      e.MAC,
			IP:       e.IP.String(),
			Hostname: hostname,
		})
		if err != nil {
			return result, err
		}

		if inserted {
			result.New++
			w.announceNewDevice(ctx, device)
		} else {
			result.Updated++
		}
	}

	w.bcast.Broadcast("scan_complete", result)
	w.log.Info().Int("entries", result.Entries).Int("new", result.New).Int("updated", result.Updated).
		Dur("took", time.Since(start)).Msg("discovery sweep complete")
	return result, nil
}

func (w *Worker) announceNewDevice(ctx context.Context, device store.Device) {
	label := device.Hostname
	if label == "" {
		label = device.MAC
	}
	if w.alerts != nil {
		_, err := w.alerts.InsertAlert(ctx, store.InsertAlertParams{
			Message: fmt.Sprintf("New device on network: %s (%s)", label, device.IP),
			Level:   "info",
			Ts:      time.Now().UTC(),
		})
		if err != nil {
			w.log.Warn().Err(err).Str("mac", device.MAC).Msg("failed to record new-device alert")
		}
	}
	w.bcast.Broadcast("device_discovered", device)
}

func (w *Worker) resolveName(ctx context.Context, ip string) string {
	if w.namer == nil {
		return ""
	}
	nameCtx, cancel := context.WithTimeout(ctx, w.nameTimeout)
	defer cancel()
	name, err := w.namer.Name(nameCtx, ip)
	if err != nil {
		w.log.Debug().Err(err).Str("ip", ip).Msg("hostname resolution failed")
		return ""
	}
	return name
}

type arpEntry struct {
	IP  netip.Addr
	MAC string
}

func (w *Worker) readARPTable() ([]arpEntry, error) {
	content, err := os.ReadFile(w.arpTablePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return parseProcNetARP(string(content))
}

func parseProcNetARP(content string) ([]arpEntry, error) {
	s := bufio.NewScanner(strings.NewReader(content))

	// Header line: "IP address       HW type     Flags       HW address            Mask     Device"
	if !s.Scan() {
		return nil, nil
	}

	var out []arpEntry
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		ipStr := fields[0]
		flagsStr := fields[2]
		macStr := strings.ToLower(fields[3])

		// Require a "complete" ARP entry.
		flags, err := strconv.ParseInt(flagsStr, 0, 64)
		if err != nil || flags&0x2 == 0 {
			continue
		}

		if macStr == "00:00:00:00:00:00" {
			continue
		}
		if _, err := net.ParseMAC(macStr); err != nil {
			continue
		}

		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			continue
		}
		out = append(out, arpEntry{IP: ip, MAC: macStr})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseScope(scope string) (*netip.Prefix, error) {
	s := strings.TrimSpace(scope)
	if s == "" {
		return nil, nil
	}

	if p, err := netip.ParsePrefix(s); err == nil {
		return &p, nil
	}
	if a, err := netip.ParseAddr(s); err == nil {
		p := netip.PrefixFrom(a, a.BitLen())
		return &p, nil
	}

	return nil, fmt.Errorf("scope must be a CIDR prefix or a single IP (got %q)", s)
}

func countScopeTargets(p netip.Prefix, maxTargets int) (int, error) {
	p = p.Masked()

	if p.Addr().Is4() {
		bits := p.Bits()
		if bits < 0 || bits > 32 {
			return 0, fmt.Errorf("invalid scope bits: %d", bits)
		}
		hostBits := 32 - bits
		if hostBits >= 31 {
			return 0, fmt.Errorf("scope too large (/%d); max targets is %d", bits, maxTargets)
		}
		count := 1 << hostBits
		if count > maxTargets {
			return 0, fmt.Errorf("scope too large (%d targets); max targets is %d", count, maxTargets)
		}
		return count, nil
	}

	// Keep IPv6 tightly scoped until we have better iterators/limits.
	if p.Addr().Is6() {
		if p.Bits() < 128 {
			return 0, fmt.Errorf("ipv6 scope must be a single IP (/128) for now")
		}
		return 1, nil
	}

	return 0, fmt.Errorf("unsupported scope address family")
}

type pingSweepResult struct {
	Attempted int
	Succeeded int
}

func (w *Worker) runPingSweep(ctx context.Context, scope netip.Prefix) pingSweepResult {
	scope = scope.Masked()

	pingPath, err := exec.LookPath("ping")
	if err != nil {
		return pingSweepResult{}
	}
	if !scope.Addr().Is4() {
		return pingSweepResult{}
	}

	var attempted int32
	var succeeded int32

	jobs := make(chan netip.Addr, w.pingWorkers*2)
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for ip := range jobs {
			atomic.AddInt32(&attempted, 1)

			pingCtx, cancel := context.WithTimeout(ctx, w.pingTimeout)
			cmd := exec.CommandContext(pingCtx, pingPath, "-c", "1", "-W", "1", ip.String())
			cmd.Stdout = nil
			cmd.Stderr = nil
			err := cmd.Run()
			cancel()

			if err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}
	}

	for i := 0; i < w.pingWorkers; i++ {
		wg.Add(1)
		go worker()
	}

	ip := scope.Addr()
	for scope.Contains(ip) {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return pingSweepResult{Attempted: int(attempted), Succeeded: int(succeeded)}
		case jobs <- ip:
			ip = ip.Next()
		}
	}

	close(jobs)
	wg.Wait()

	return pingSweepResult{Attempted: int(attempted), Succeeded: int(succeeded)}
}
