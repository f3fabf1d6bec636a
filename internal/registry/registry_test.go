package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/store"
)

type fakeQueries struct {
	mu sync.Mutex

	upsertFn  func(ctx context.Context, arg store.UpsertSightingParams) (store.Device, bool, error)
	getFn     func(ctx context.Context, id int64) (store.Device, error)
	getByIPFn func(ctx context.Context, ip string) (store.Device, error)
	listFn    func(ctx context.Context, arg store.ListDevicesParams) ([]store.Device, error)
	setRoleFn func(ctx context.Context, arg store.SetDeviceRoleParams) (store.Device, error)
	applyFn   func(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error)
	archiveFn func(ctx context.Context, arg store.ArchiveDeviceParams) (store.Device, error)

	applyCalls []store.ApplyDeviceStatusParams
}

func (f *fakeQueries) UpsertSighting(ctx context.Context, arg store.UpsertSightingParams) (store.Device, bool, error) {
	if f.upsertFn == nil {
		return store.Device{}, false, nil
	}
	return f.upsertFn(ctx, arg)
}

func (f *fakeQueries) GetDevice(ctx context.Context, id int64) (store.Device, error) {
	if f.getFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.getFn(ctx, id)
}

func (f *fakeQueries) GetDeviceByIP(ctx context.Context, ip string) (store.Device, error) {
	if f.getByIPFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.getByIPFn(ctx, ip)
}

func (f *fakeQueries) ListDevices(ctx context.Context, arg store.ListDevicesParams) ([]store.Device, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, arg)
}

func (f *fakeQueries) SetDeviceRole(ctx context.Context, arg store.SetDeviceRoleParams) (store.Device, error) {
	if f.setRoleFn == nil {
		return store.Device{}, nil
	}
	return f.setRoleFn(ctx, arg)
}

func (f *fakeQueries) ApplyDeviceStatus(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error) {
	f.mu.Lock()
	f.applyCalls = append(f.applyCalls, arg)
	f.mu.Unlock()
	if f.applyFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.applyFn(ctx, arg)
}

func (f *fakeQueries) ArchiveDevice(ctx context.Context, arg store.ArchiveDeviceParams) (store.Device, error) {
	if f.archiveFn == nil {
		return store.Device{}, nil
	}
	return f.archiveFn(ctx, arg)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestUpsertSighting_NormalizesMAC(t *testing.T) {
	var got store.UpsertSightingParams
	q := &fakeQueries{
		upsertFn: func(ctx context.Context, arg store.UpsertSightingParams) (store.Device, bool, error) {
			got = arg
			return store.Device{ID: 1, MAC: arg.MAC}, true, nil
		},
	}
	r := New(testLogger(), q)

	_, created, err := r.UpsertSighting(context.Background(), Sighting{
		MAC:      "  AA:BB:CC:DD:EE:FF ",
		IP:       "192.168.1.50",
		Hostname: "printer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if got.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("expected lowercased mac, got %q", got.MAC)
	}
	if got.ObservedAt.IsZero() {
		t.Fatalf("expected server-assigned observed timestamp")
	}
}

func TestUpsertSighting_EmptyMACRejected(t *testing.T) {
	r := New(testLogger(), &fakeQueries{})
	if _, _, err := r.UpsertSighting(context.Background(), Sighting{MAC: "  "}); err == nil {
		t.Fatalf("expected error for empty mac")
	}
}

func TestSetRole_UnknownRoleRejected(t *testing.T) {
	r := New(testLogger(), &fakeQueries{})
	if _, err := r.SetRole(context.Background(), 1, "Overlord"); err != ErrUnknownRole {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestApplyAccessState_Applied(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueries{
		applyFn: func(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error) {
			return store.Device{ID: arg.ID, Status: arg.Status, UpdatedAt: arg.UpdatedAt}, nil
		},
	}
	r := New(testLogger(), q)

	d, applied, err := r.ApplyAccessState(context.Background(), 7, store.StatusBlocked, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatalf("expected applied=true")
	}
	if d.Status != store.StatusBlocked || !d.UpdatedAt.Equal(ts) {
		t.Fatalf("unexpected device: %+v", d)
	}
}

func TestApplyAccessState_StaleDroppedSilently(t *testing.T) {
	// The conditional update matches no row; the registry must treat that as
	// a stale write, return the current state, and not error.
	current := store.Device{ID: 7, Status: store.StatusBlocked, UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := &fakeQueries{
		applyFn: func(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error) {
			return store.Device{}, pgx.ErrNoRows
		},
		getFn: func(ctx context.Context, id int64) (store.Device, error) {
			return current, nil
		},
	}
	r := New(testLogger(), q)

	stale := current.UpdatedAt.Add(-time.Minute)
	d, applied, err := r.ApplyAccessState(context.Background(), 7, store.StatusActive, stale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatalf("stale update must not be applied")
	}
	if d.Status != store.StatusBlocked {
		t.Fatalf("device state must be unchanged, got %q", d.Status)
	}
}

func TestApplyAccessState_UnknownDevicePropagates(t *testing.T) {
	q := &fakeQueries{
		applyFn: func(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error) {
			return store.Device{}, pgx.ErrNoRows
		},
		getFn: func(ctx context.Context, id int64) (store.Device, error) {
			return store.Device{}, pgx.ErrNoRows
		},
	}
	r := New(testLogger(), q)

	if _, _, err := r.ApplyAccessState(context.Background(), 99, store.StatusBlocked, time.Now()); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestApplyAccessState_ConcurrentWritersSerialized(t *testing.T) {
	// All writers target one device; the fake emulates the conditional
	// update so only strictly newer timestamps win.
	var mu sync.Mutex
	state := store.Device{ID: 1, Status: store.StatusActive, UpdatedAt: time.Unix(0, 0)}

	q := &fakeQueries{}
	q.applyFn = func(ctx context.Context, arg store.ApplyDeviceStatusParams) (store.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		if !arg.UpdatedAt.After(state.UpdatedAt) {
			return store.Device{}, pgx.ErrNoRows
		}
		state.Status = arg.Status
		state.UpdatedAt = arg.UpdatedAt
		return state, nil
	}
	q.getFn = func(ctx context.Context, id int64) (store.Device, error) {
		mu.Lock()
		defer mu.Unlock()
		return state, nil
	}

	r := New(testLogger(), q)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := []string{store.StatusBlocked, store.StatusActive, store.StatusKicked, store.StatusActive, store.StatusBlocked}

	var wg sync.WaitGroup
	for i, s := range statuses {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			_, _, err := r.ApplyAccessState(context.Background(), 1, s, base.Add(time.Duration(i)*time.Second))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i, s)
	}
	wg.Wait()

	// The final state must match the latest timestamp's action only.
	mu.Lock()
	defer mu.Unlock()
	if state.Status != statuses[len(statuses)-1] {
		t.Fatalf("expected final state %q, got %q", statuses[len(statuses)-1], state.Status)
	}
	if !state.UpdatedAt.Equal(base.Add(time.Duration(len(statuses)-1) * time.Second)) {
		t.Fatalf("expected latest timestamp to win, got %v", state.UpdatedAt)
	}
}
