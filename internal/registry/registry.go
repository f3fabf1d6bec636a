package registry

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/store"
)

// Queries is the minimal DB interface the registry needs.
//
// NOTE: *store.Queries satisfies this.
type Queries interface {
	UpsertSighting(ctx context.Context, arg store.UpsertSightingParams) (store.Device, bool, error)
	GetDevice(ctx context.Context, id int64) (store.Device, error)
	GetDeviceByIP(ctx context.Context, ip string) (store.Device, error)
	ListDevices(ctx context.Context, arg store.ListDevicesParams) ([]store.Device, error)
	SetDeviceRole(ctx context.Context, arg store.SetDeviceRoleParams) (store.Device, error)
	ApplyDeviceStatus(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error)
	ArchiveDevice(ctx context.Context, arg store.ArchiveDeviceParams) (store.Device, error)
}

// ErrUnknownRole is returned by SetRole for roles outside the allowed set.
var ErrUnknownRole = errors.New("unknown device role")

// Sighting is one discovery-feed observation of a device on the network.
type Sighting struct {
	MAC        string
	IP         string
	Hostname   string
	ObservedAt time.Time
}

// Registry is the authoritative, versioned record of every known device.
// All mutation goes through a per-device lock so concurrent writers for the
// same device never interleave; writers for different devices do not block
// each other.
type Registry struct {
	log zerolog.Logger
	q   Queries

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(log zerolog.Logger, q Queries) *Registry {
	return &Registry{
		log:   log,
		q:     q,
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func deviceKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

// UpsertSighting merges a sighting keyed by hardware address. It updates the
// network address, hostname, and last-seen timestamp, and never regresses the
// access state. Returns the merged device and whether it was newly created.
func (r *Registry) UpsertSighting(ctx context.Context, s Sighting) (store.Device, bool, error) {
	mac := strings.ToLower(strings.TrimSpace(s.MAC))
	if mac == "" {
		return store.Device{}, false, errors.New("sighting has empty hardware address")
	}
	observed := s.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	l := r.lockFor("mac:" + mac)
	l.Lock()
	defer l.Unlock()

	return r.q.UpsertSighting(ctx, store.UpsertSightingParams{
		MAC:        mac,
		IP:         strings.TrimSpace(s.IP),
		Hostname:   strings.TrimSpace(s.Hostname),
		ObservedAt: observed,
	})
}

// Get returns a device by ID. pgx.ErrNoRows passes through for unknown IDs.
func (r *Registry) Get(ctx context.Context, id int64) (store.Device, error) {
	return r.q.GetDevice(ctx, id)
}

// GetByIP returns the most recently seen non-archived device bound to ip.
func (r *Registry) GetByIP(ctx context.Context, ip string) (store.Device, error) {
	return r.q.GetDeviceByIP(ctx, strings.TrimSpace(ip))
}

// List returns non-archived devices, most recently seen first.
func (r *Registry) List(ctx context.Context, offset, limit int32) ([]store.Device, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.q.ListDevices(ctx, store.ListDevicesParams{Offset: offset, Limit: limit})
}

// SetRole updates a device's role.
func (r *Registry) SetRole(ctx context.Context, id int64, role string) (store.Device, error) {
	switch role {
	case store.RoleAdmin, store.RoleVolunteer, store.RoleOther:
	default:
		return store.Device{}, ErrUnknownRole
	}

	l := r.lockFor(deviceKey(id))
	l.Lock()
	defer l.Unlock()

	return r.q.SetDeviceRole(ctx, store.SetDeviceRoleParams{
		ID:        id,
		Role:      role,
		UpdatedAt: time.Now().UTC(),
	})
}

// ApplyAccessState transitions a device's access state using last-write-wins
// arbitration: the update is applied only when ts is strictly newer than the
// device's current last-modified timestamp. A stale timestamp is not an
// error; the current device is returned with applied=false and the drop is
// logged at debug level.
func (r *Registry) ApplyAccessState(ctx context.Context, id int64, state string, ts time.Time) (store.Device, bool, error) {
	l := r.lockFor(deviceKey(id))
	l.Lock()
	defer l.Unlock()

	d, err := r.q.ApplyDeviceStatus(ctx, store.ApplyDeviceStatusParams{
		ID:        id,
		Status:    state,
		UpdatedAt: ts,
	})
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Device{}, false, err
	}

	// No row matched: either the device is unknown or the write is stale.
	current, getErr := r.q.GetDevice(ctx, id)
	if getErr != nil {
		return store.Device{}, false, getErr
	}

	r.log.Debug().
		Int64("device_id", id).
		Str("state", state).
		Time("ts", ts).
		Time("last_modified", current.UpdatedAt).
		Msg("stale access-state update dropped")
	return current, false, nil
}

// Archive logically removes a device. Records are never hard-deleted so the
// action log keeps its referents.
func (r *Registry) Archive(ctx context.Context, id int64) (store.Device, error) {
	l := r.lockFor(deviceKey(id))
	l.Lock()
	defer l.Unlock()

	return r.q.ArchiveDevice(ctx, store.ArchiveDeviceParams{
		ID:        id,
		UpdatedAt: time.Now().UTC(),
	})
}
