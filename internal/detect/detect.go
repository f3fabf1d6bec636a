// Package detect bridges an external intrusion detection engine into the
// alert stream. The engine runs as a child process writing fast-format alert
// lines to a log file; this package tails that file, parses each line, and
// fans the result out to the database and the sync hub.
package detect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/metrics"
	"github.com/pb2106/Network-Control/internal/store"
)

// Alert is one parsed detection event.
type Alert struct {
	Ts             time.Time `json:"timestamp"`
	SID            int       `json:"sid"`
	Msg            string    `json:"msg"`
	Classification string    `json:"classification"`
	Priority       int       `json:"priority"`
	Protocol       string    `json:"protocol"`
	SrcIP          string    `json:"source_ip"`
	SrcPort        int       `json:"source_port,omitempty"`
	DstIP          string    `json:"dest_ip"`
	DstPort        int       `json:"dest_port,omitempty"`
	Severity       string    `json:"severity"`
	Raw            string    `json:"-"`
}

// Alerts receives the parsed detection events.
type Alerts interface {
	InsertAlert(ctx context.Context, arg store.InsertAlertParams) (store.Alert, error)
}

// Broadcaster pushes detection events to connected admin sessions.
type Broadcaster interface {
	Broadcast(kind string, data any)
}

type Options struct {
	// Command starts the detection engine as a child process. Empty means an
	// externally managed engine; only the alert file is consumed then.
	Command   string
	Args      []string
	AlertFile string
	// PollInterval controls how often the alert file is re-read.
	PollInterval time.Duration
}

type Manager struct {
	log     zerolog.Logger
	alerts  Alerts
	bcast   Broadcaster
	metrics *metrics.Metrics

	command      string
	args         []string
	alertFile    string
	pollInterval time.Duration

	offset int64
}

func New(log zerolog.Logger, alerts Alerts, bcast Broadcaster, opts Options, m *metrics.Metrics) *Manager {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 2 * time.Second
	}
	return &Manager{
		log:          log,
		alerts:       alerts,
		bcast:        bcast,
		metrics:      m,
		command:      strings.TrimSpace(opts.Command),
		args:         opts.Args,
		alertFile:    opts.AlertFile,
		pollInterval: pi,
	}
}

// Run supervises the engine process (when configured) and tails the alert
// file until ctx is canceled. Existing file content is skipped so restarts
// do not replay old alerts into the database.
func (m *Manager) Run(ctx context.Context) error {
	if m.alertFile == "" {
		return errors.New("detection alert file not configured")
	}

	if fi, err := os.Stat(m.alertFile); err == nil {
		m.offset = fi.Size()
	}

	var cmd *exec.Cmd
	if m.command != "" {
		cmd = exec.CommandContext(ctx, m.command, m.args...)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start detection engine: %w", err)
		}
		m.log.Info().Str("command", m.command).Int("pid", cmd.Process.Pid).
			Msg("detection engine started")
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if cmd != nil {
				_ = cmd.Wait()
				m.log.Info().Msg("detection engine stopped")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := m.consume(ctx); err != nil {
				m.log.Warn().Err(err).Str("file", m.alertFile).Msg("failed to read alert file")
			}
		}
	}
}

// consume reads alert lines appended since the last poll.
func (m *Manager) consume(ctx context.Context) error {
	f, err := os.Open(m.alertFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < m.offset {
		// Rotated or truncated; start over.
		m.offset = 0
	}
	if _, err := f.Seek(m.offset, io.SeekStart); err != nil {
		return err
	}

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		alert, ok := ParseFastAlert(line)
		if !ok {
			m.log.Debug().Str("line", line).Msg("unparseable alert line")
			continue
		}
		m.report(ctx, alert)
	}
	if err := s.Err(); err != nil {
		return err
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	m.offset = pos
	return nil
}

func (m *Manager) report(ctx context.Context, alert Alert) {
	m.metrics.IncDetectionAlert()

	if m.alerts != nil {
		level := "warning"
		switch alert.Severity {
		case "critical", "high":
			level = "danger"
		case "low":
			level = "info"
		}
		_, err := m.alerts.InsertAlert(ctx, store.InsertAlertParams{
			Message: fmt.Sprintf("IDS: %s (%s -> %s)", alert.Msg, alert.SrcIP, alert.DstIP),
			Level:   level,
			Ts:      alert.Ts,
		})
		if err != nil {
			m.log.Warn().Err(err).Int("sid", alert.SID).Msg("failed to record detection alert")
		}
	}
	if m.bcast != nil {
		m.bcast.Broadcast("detection_alert", alert)
	}
	m.log.Info().Int("sid", alert.SID).Str("msg", alert.Msg).Str("severity", alert.Severity).
		Str("src", alert.SrcIP).Str("dst", alert.DstIP).Msg("detection alert")
}

// Fast alert line:
// 08/23-14:03:21.123456  [**] [1:1000001:1] ICMP test [**] [Classification: Misc activity] [Priority: 3] {ICMP} 192.168.1.50:443 -> 192.168.1.1:52100
var fastAlertRe = regexp.MustCompile(
	`^(\d{2}/\d{2})-(\d{2}:\d{2}:\d{2}\.\d+)\s+\[\*\*\]\s+\[\d+:(\d+):\d+\]\s+(.*?)\s+\[\*\*\]\s+(?:\[Classification:\s*([^\]]*)\]\s+)?\[Priority:\s*(\d+)\]\s+\{(\w+)\}\s+(\S+)\s+->\s+(\S+)$`)

// ParseFastAlert parses one fast-format alert line. The second return is
// false when the line does not match the format.
func ParseFastAlert(line string) (Alert, bool) {
	match := fastAlertRe.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return Alert{}, false
	}

	priority, err := strconv.Atoi(match[6])
	if err != nil {
		return Alert{}, false
	}
	sid, err := strconv.Atoi(match[3])
	if err != nil {
		return Alert{}, false
	}

	srcIP, srcPort := splitHostPort(match[8])
	dstIP, dstPort := splitHostPort(match[9])

	return Alert{
		Ts:             parseFastTimestamp(match[1], match[2]),
		SID:            sid,
		Msg:            match[4],
		Classification: strings.TrimSpace(match[5]),
		Priority:       priority,
		Protocol:       strings.ToLower(match[7]),
		SrcIP:          srcIP,
		SrcPort:        srcPort,
		DstIP:          dstIP,
		DstPort:        dstPort,
		Severity:       severityForPriority(priority),
		Raw:            line,
	}, true
}

// The fast format omits the year; assume the current one.
func parseFastTimestamp(datePart, timePart string) time.Time {
	now := time.Now()
	t, err := time.ParseInLocation("01/02-15:04:05.000000", datePart+"-"+timePart, time.Local)
	if err != nil {
		return now.UTC()
	}
	t = t.AddDate(now.Year(), 0, 0)
	if t.After(now.Add(24 * time.Hour)) {
		// A January restart reading December lines.
		t = t.AddDate(-1, 0, 0)
	}
	return t.UTC()
}

func splitHostPort(s string) (string, int) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 0
	}
	// ICMP entries have no port; IPv6 addresses contain colons but no
	// bracketed port in this format, so only accept a numeric suffix after
	// the final colon for IPv4.
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil || strings.Count(s, ":") > 1 {
		return s, 0
	}
	return s[:idx], port
}

func severityForPriority(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "high"
	case 3:
		return "medium"
	default:
		return "low"
	}
}
