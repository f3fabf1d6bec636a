package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pb2106/Network-Control/internal/auth"
	"github.com/pb2106/Network-Control/internal/firewall"
	"github.com/pb2106/Network-Control/internal/registry"
	"github.com/pb2106/Network-Control/internal/store"
)

type fakeAuth struct {
	loginFn func(ctx context.Context, username, password string) (string, store.Operator, error)
}

func (f fakeAuth) Login(ctx context.Context, username, password string) (string, store.Operator, error) {
	if f.loginFn == nil {
		return "", store.Operator{}, auth.ErrInvalidCredentials
	}
	return f.loginFn(ctx, username, password)
}

func (f fakeAuth) Validate(token string) (*auth.Claims, error) {
	if token != "good-token" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Username: "alice", Role: "admin"}, nil
}

type fakeDevices struct {
	getFn     func(ctx context.Context, id int64) (store.Device, error)
	listFn    func(ctx context.Context, offset, limit int32) ([]store.Device, error)
	setRoleFn func(ctx context.Context, id int64, role string) (store.Device, error)
	archiveFn func(ctx context.Context, id int64) (store.Device, error)
}

func (f fakeDevices) Get(ctx context.Context, id int64) (store.Device, error) {
	if f.getFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.getFn(ctx, id)
}

func (f fakeDevices) List(ctx context.Context, offset, limit int32) ([]store.Device, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, offset, limit)
}

func (f fakeDevices) SetRole(ctx context.Context, id int64, role string) (store.Device, error) {
	if f.setRoleFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.setRoleFn(ctx, id, role)
}

func (f fakeDevices) Archive(ctx context.Context, id int64) (store.Device, error) {
	if f.archiveFn == nil {
		return store.Device{}, pgx.ErrNoRows
	}
	return f.archiveFn(ctx, id)
}

type fakeEngine struct {
	performFn func(ctx context.Context, operator, ip string, kind firewall.ActionKind) (firewall.Outcome, error)
	calls     []string
}

func (f *fakeEngine) Perform(ctx context.Context, operator, ip string, kind firewall.ActionKind) (firewall.Outcome, error) {
	f.calls = append(f.calls, string(kind)+" "+ip+" by "+operator)
	if f.performFn == nil {
		return firewall.Outcome{Kind: kind, TargetIP: ip, Operator: operator, Success: true}, nil
	}
	return f.performFn(ctx, operator, ip, kind)
}

type fakeAudit struct {
	records []store.ActionRecord
	stats   store.ActionStats
}

func (f fakeAudit) ListActionRecords(ctx context.Context, arg store.ListActionRecordsParams) ([]store.ActionRecord, error) {
	return f.records, nil
}

func (f fakeAudit) GetActionStats(ctx context.Context) (store.ActionStats, error) {
	return f.stats, nil
}

type fakeAlertQueries struct {
	alerts    []store.Alert
	markedAll bool
}

func (f *fakeAlertQueries) ListAlerts(ctx context.Context, arg store.ListAlertsParams) ([]store.Alert, error) {
	if arg.UnreadOnly {
		var out []store.Alert
		for _, a := range f.alerts {
			if !a.Read {
				out = append(out, a)
			}
		}
		return out, nil
	}
	return f.alerts, nil
}

func (f *fakeAlertQueries) MarkAlertRead(ctx context.Context, id int64) (store.Alert, error) {
	for _, a := range f.alerts {
		if a.ID == id {
			a.Read = true
			return a, nil
		}
	}
	return store.Alert{}, pgx.ErrNoRows
}

func (f *fakeAlertQueries) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	f.markedAll = true
	return int64(len(f.alerts)), nil
}

func (f *fakeAlertQueries) GetAlertStats(ctx context.Context) (store.AlertStats, error) {
	return store.AlertStats{Total: int64(len(f.alerts))}, nil
}

type fakeScanner struct {
	queued bool
}

func (f *fakeScanner) TriggerScan() bool {
	f.queued = true
	return true
}

func newTestHandler(opts Options) *Handler {
	if opts.Auth == nil {
		opts.Auth = fakeAuth{}
	}
	return NewHandler(NewLogger("error"), nil, nil, opts)
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer good-token")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode body as json: %v\nbody=%s", err, rr.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rr)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got: %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "unauthorized" {
		t.Fatalf("expected unauthorized code")
	}
}

func TestAuth_BadTokenRejected(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer forged")
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLogin_OK(t *testing.T) {
	h := newTestHandler(Options{
		Auth: fakeAuth{loginFn: func(ctx context.Context, username, password string) (string, store.Operator, error) {
			if username != "alice" || password != "s3cret" {
				return "", store.Operator{}, auth.ErrInvalidCredentials
			}
			return "signed-token", store.Operator{ID: 1, Username: "alice", Role: "admin"}, nil
		}},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"alice","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["token"] != "signed-token" {
		t.Fatalf("expected token in response, got %v", body)
	}
	op, ok := body["operator"].(map[string]any)
	if !ok || op["username"] != "alice" {
		t.Fatalf("expected operator in response, got %v", body)
	}
	if _, leaked := op["password_hash"]; leaked {
		t.Fatalf("password hash must never leave the server")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newTestHandler(Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials code")
	}
}

func TestAuthMe_ReturnsClaims(t *testing.T) {
	h := newTestHandler(Options{})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/auth/me", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["username"] != "alice" || body["role"] != "admin" {
		t.Fatalf("unexpected claims: %v", body)
	}
}

func TestDevices_List_OK(t *testing.T) {
	h := newTestHandler(Options{
		Devices: fakeDevices{listFn: func(ctx context.Context, offset, limit int32) ([]store.Device, error) {
			if offset != 0 || limit != 100 {
				t.Fatalf("unexpected paging: offset=%d limit=%d", offset, limit)
			}
			return []store.Device{{ID: 1, MAC: "aa:bb:cc:dd:ee:ff", IP: "192.168.1.10", Status: store.StatusActive}}, nil
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/devices", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected json content-type, got %q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	var devices []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 1 || devices[0]["mac"] != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("unexpected payload: %v", devices)
	}
}

func TestDevices_List_EmptyIsArrayNotNull(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/devices", ""))

	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", rr.Body.String())
	}
}

func TestDevices_Get_NotFound(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/devices/42", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "not_found" {
		t.Fatalf("expected not_found code")
	}
}

func TestDevices_Get_InvalidID(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/devices/not-a-number", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "invalid_id" {
		t.Fatalf("expected invalid_id code")
	}
}

func TestDevices_Update_SetsRole(t *testing.T) {
	h := newTestHandler(Options{
		Devices: fakeDevices{setRoleFn: func(ctx context.Context, id int64, role string) (store.Device, error) {
			if id != 7 || role != store.RoleVolunteer {
				t.Fatalf("unexpected update: id=%d role=%q", id, role)
			}
			return store.Device{ID: id, Role: role}, nil
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPatch, "/api/v1/devices/7", `{"role":"Volunteer"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDevices_Update_RejectsUnknownRole(t *testing.T) {
	h := newTestHandler(Options{
		Devices: fakeDevices{setRoleFn: func(ctx context.Context, id int64, role string) (store.Device, error) {
			return store.Device{}, registry.ErrUnknownRole
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPatch, "/api/v1/devices/7", `{"role":"Overlord"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "invalid_role" {
		t.Fatalf("expected invalid_role code")
	}
}

func TestDevices_Update_RejectsUnknownFields(t *testing.T) {
	h := newTestHandler(Options{Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPatch, "/api/v1/devices/7", `{"role":"Other","nope":true}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "validation_failed" {
		t.Fatalf("expected validation_failed code")
	}
}

func TestDevices_Delete_Archives(t *testing.T) {
	archived := false
	h := newTestHandler(Options{
		Devices: fakeDevices{archiveFn: func(ctx context.Context, id int64) (store.Device, error) {
			archived = true
			return store.Device{ID: id, Archived: true}, nil
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodDelete, "/api/v1/devices/7", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !archived {
		t.Fatalf("expected archive call")
	}
	body := decodeBody(t, rr)
	if body["archived"] != true {
		t.Fatalf("expected archived device in response, got %v", body)
	}
}

func TestDevices_Scan_Queues(t *testing.T) {
	scanner := &fakeScanner{}
	h := newTestHandler(Options{Devices: fakeDevices{}, Scanner: scanner})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/devices/scan", ""))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if !scanner.queued {
		t.Fatalf("expected scan to be queued")
	}
}

func TestFirewall_Action_OK(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestHandler(Options{Engine: engine})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/action", `{"ip":"192.168.1.50","action":"block"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(engine.calls) != 1 || engine.calls[0] != "block 192.168.1.50 by alice" {
		t.Fatalf("unexpected engine calls: %v", engine.calls)
	}
	body := decodeBody(t, rr)
	if body["success"] != true {
		t.Fatalf("expected success outcome, got %v", body)
	}
}

func TestFirewall_Action_SelfProtection(t *testing.T) {
	engine := &fakeEngine{performFn: func(ctx context.Context, operator, ip string, kind firewall.ActionKind) (firewall.Outcome, error) {
		return firewall.Outcome{}, firewall.ErrSelfProtection
	}}
	h := newTestHandler(Options{Engine: engine})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/action", `{"ip":"10.0.0.1","action":"block"}`))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != "self_protection" {
		t.Fatalf("expected self_protection code")
	}
}

func TestFirewall_Action_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{firewall.ErrUnknownDevice, http.StatusNotFound, "not_found"},
		{firewall.ErrBadAddress, http.StatusBadRequest, "invalid_address"},
		{firewall.ErrInvalidAction, http.StatusBadRequest, "invalid_action"},
	}
	for _, c := range cases {
		engine := &fakeEngine{performFn: func(ctx context.Context, operator, ip string, kind firewall.ActionKind) (firewall.Outcome, error) {
			return firewall.Outcome{}, c.err
		}}
		h := newTestHandler(Options{Engine: engine})

		rr := httptest.NewRecorder()
		h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/action", `{"ip":"192.168.1.50","action":"block"}`))

		if rr.Code != c.status {
			t.Fatalf("%v: expected %d, got %d: %s", c.err, c.status, rr.Code, rr.Body.String())
		}
		if errorCode(t, rr) != c.code {
			t.Fatalf("%v: expected code %q", c.err, c.code)
		}
	}
}

func TestFirewall_Action_FailureOutcomeIsNotAnError(t *testing.T) {
	engine := &fakeEngine{performFn: func(ctx context.Context, operator, ip string, kind firewall.ActionKind) (firewall.Outcome, error) {
		return firewall.Outcome{Kind: kind, TargetIP: ip, Operator: operator, Success: false, Detail: "command timed out after 10s"}, nil
	}}
	h := newTestHandler(Options{Engine: engine})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/action", `{"ip":"192.168.1.50","action":"block"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for recorded failure, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != false || body["detail"] != "command timed out after 10s" {
		t.Fatalf("expected failure outcome in body, got %v", body)
	}
}

func TestFirewall_Kick_LooksUpDeviceAddress(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestHandler(Options{
		Engine: engine,
		Devices: fakeDevices{getFn: func(ctx context.Context, id int64) (store.Device, error) {
			if id != 9 {
				t.Fatalf("unexpected id %d", id)
			}
			return store.Device{ID: 9, IP: "192.168.1.77"}, nil
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/kick/9", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(engine.calls) != 1 || engine.calls[0] != "kick 192.168.1.77 by alice" {
		t.Fatalf("unexpected engine calls: %v", engine.calls)
	}
}

func TestFirewall_Kick_UnknownDevice(t *testing.T) {
	h := newTestHandler(Options{Engine: &fakeEngine{}, Devices: fakeDevices{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/firewall/kick/404", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestFirewall_Logs_OK(t *testing.T) {
	h := newTestHandler(Options{
		Audit: fakeAudit{records: []store.ActionRecord{
			{ID: 1, Action: "block", TargetIP: "192.168.1.50", Operator: "alice", Ts: time.Now(), Success: true},
		}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/firewall/logs", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var records []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0]["action"] != "block" {
		t.Fatalf("unexpected payload: %v", records)
	}
}

func TestFirewall_Stats_OK(t *testing.T) {
	h := newTestHandler(Options{
		Audit: fakeAudit{stats: store.ActionStats{Total: 5, Blocks: 3, Failures: 1}},
	})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/firewall/stats", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["total_actions"] != float64(5) || body["blocks"] != float64(3) {
		t.Fatalf("unexpected stats: %v", body)
	}
}

func TestAlerts_List_UnreadFilter(t *testing.T) {
	alerts := &fakeAlertQueries{alerts: []store.Alert{
		{ID: 1, Message: "a", Level: "info", Read: true},
		{ID: 2, Message: "b", Level: "danger", Read: false},
	}}
	h := newTestHandler(Options{Alerts: alerts})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/alerts?unread_only=true", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["id"] != float64(2) {
		t.Fatalf("expected only the unread alert, got %v", out)
	}
}

func TestAlerts_MarkRead_NotFound(t *testing.T) {
	h := newTestHandler(Options{Alerts: &fakeAlertQueries{}})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/alerts/99/read", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAlerts_ReadAll(t *testing.T) {
	alerts := &fakeAlertQueries{alerts: []store.Alert{{ID: 1}, {ID: 2}}}
	h := newTestHandler(Options{Alerts: alerts})

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/alerts/read-all", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !alerts.markedAll {
		t.Fatalf("expected mark-all call")
	}
	body := decodeBody(t, rr)
	if body["updated"] != float64(2) {
		t.Fatalf("unexpected count: %v", body)
	}
}

func TestHealthz_OK(t *testing.T) {
	h := newTestHandler(Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyz_NoDatabase(t *testing.T) {
	h := newTestHandler(Options{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a database, got %d", rr.Code)
	}
}
