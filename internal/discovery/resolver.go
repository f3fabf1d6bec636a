package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
)

// Namer resolves a friendly hostname for a single address. An empty name
// with a nil error means the lookup worked but nothing is known.
type Namer interface {
	Name(ctx context.Context, ip string) (string, error)
}

// PTRResolver answers hostname lookups with a reverse DNS query against the
// system's configured nameservers.
type PTRResolver struct {
	client  *dns.Client
	servers []string
}

func NewPTRResolver() *PTRResolver {
	r := &PTRResolver{
		client: &dns.Client{Timeout: 500 * time.Millisecond},
	}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range cfg.Servers {
			r.servers = append(r.servers, s+":"+cfg.Port)
		}
	}
	return r
}

func (r *PTRResolver) Name(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range in.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				if name := normalizeHostname(ptr.Ptr); name != "" {
					return name, nil
				}
			}
		}
		// The nameserver answered; an empty answer section is authoritative
		// enough for a best-effort friendly name.
		return "", nil
	}
	return "", lastErr
}

const oidSysName = "1.3.6.1.2.1.1.5.0"

// SNMPNamer asks the device itself for its sysName over SNMPv2c. Useful for
// managed switches and printers that never register in DNS.
type SNMPNamer struct {
	community string
	timeout   time.Duration
}

func NewSNMPNamer(community string) *SNMPNamer {
	community = strings.TrimSpace(community)
	if community == "" {
		community = "public"
	}
	return &SNMPNamer{community: community, timeout: 900 * time.Millisecond}
}

func (n *SNMPNamer) Name(ctx context.Context, ip string) (string, error) {
	s := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    ip,
		Port:      161,
		Community: n.community,
		Version:   gosnmp.Version2c,
		Timeout:   n.timeout,
		Retries:   0,
	}
	if err := s.Connect(); err != nil {
		return "", err
	}
	defer s.Conn.Close()

	pkt, err := s.Get([]string{oidSysName})
	if err != nil {
		return "", err
	}
	for _, pdu := range pkt.Variables {
		switch v := pdu.Value.(type) {
		case string:
			return normalizeHostname(v), nil
		case []byte:
			return normalizeHostname(string(v)), nil
		}
	}
	return "", nil
}

// NewChain composes namers; each is tried in order and the first non-empty
// name wins.
func NewChain(namers ...Namer) Namer {
	return chain(namers)
}

// chain tries each namer in order and returns the first non-empty name.
type chain []Namer

func (c chain) Name(ctx context.Context, ip string) (string, error) {
	var lastErr error
	for _, n := range c {
		name, err := n.Name(ctx, ip)
		if err != nil {
			lastErr = err
			continue
		}
		if name != "" {
			return name, nil
		}
	}
	return "", lastErr
}

func normalizeHostname(raw string) string {
	name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "."))
	return strings.ToLower(name)
}
