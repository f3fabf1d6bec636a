package firewall

import (
	"net"
	"net/netip"
	"sync"
	"time"
)

// Guard answers whether an address is bound to the host running the control
// plane. Blocking such an address would lock every admin out of the backend
// itself, so the engine refuses it unconditionally.
type Guard struct {
	mu        sync.RWMutex
	addrs     map[netip.Addr]struct{}
	refreshed time.Time
	ttl       time.Duration
}

// NewGuard builds a guard seeded from the host's current interface addresses.
func NewGuard() *Guard {
	g := &Guard{
		addrs: make(map[netip.Addr]struct{}),
		ttl:   time.Minute,
	}
	g.refresh()
	return g
}

func (g *Guard) refresh() {
	addrs := map[netip.Addr]struct{}{}

	ifaceAddrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range ifaceAddrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil {
				continue
			}
			if parsed, ok := netip.AddrFromSlice(ip); ok {
				addrs[parsed.Unmap()] = struct{}{}
			}
		}
	}

	g.mu.Lock()
	if len(addrs) > 0 || len(g.addrs) == 0 {
		g.addrs = addrs
	}
	g.refreshed = time.Now()
	g.mu.Unlock()
}

// IsLocal reports whether ip is bound to this host. Interface addresses are
// re-read when the cached set is older than the TTL, so DHCP renewals on the
// control host are picked up.
func (g *Guard) IsLocal(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}

	g.mu.RLock()
	stale := time.Since(g.refreshed) > g.ttl
	_, ok := g.addrs[addr]
	g.mu.RUnlock()

	if ok {
		return true
	}
	if stale {
		g.refresh()
		g.mu.RLock()
		_, ok = g.addrs[addr]
		g.mu.RUnlock()
	}
	return ok
}

// setAddrs replaces the local address set; tests use this.
func (g *Guard) setAddrs(ips ...string) {
	addrs := map[netip.Addr]struct{}{}
	for _, s := range ips {
		if a, err := netip.ParseAddr(s); err == nil {
			addrs[a.Unmap()] = struct{}{}
		}
	}
	g.mu.Lock()
	g.addrs = addrs
	g.refreshed = time.Now()
	g.mu.Unlock()
}
