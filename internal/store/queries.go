package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const deviceColumns = `id, mac, ip, hostname, role, status, archived, last_seen, updated_at`

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.MAC, &d.IP, &d.Hostname, &d.Role, &d.Status, &d.Archived, &d.LastSeen, &d.UpdatedAt)
	return d, err
}

const upsertSighting = `-- name: UpsertSighting :one
INSERT INTO devices (mac, ip, hostname, last_seen, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (mac) DO UPDATE SET
  ip        = EXCLUDED.ip,
  hostname  = CASE WHEN EXCLUDED.hostname <> '' THEN EXCLUDED.hostname ELSE devices.hostname END,
  last_seen = EXCLUDED.last_seen
RETURNING ` + deviceColumns + `, (xmax = 0) AS inserted
`

type UpsertSightingParams struct {
	MAC        string
	IP         string
	Hostname   string
	ObservedAt time.Time
}

// UpsertSighting merges a discovery sighting keyed by hardware address.
// It never touches role or status: a blocked device that reappears on the
// network stays blocked until an operator unblocks it.
func (q *Queries) UpsertSighting(ctx context.Context, arg UpsertSightingParams) (Device, bool, error) {
	row := q.db.QueryRow(ctx, upsertSighting, arg.MAC, arg.IP, arg.Hostname, arg.ObservedAt)
	var d Device
	var inserted bool
	err := row.Scan(&d.ID, &d.MAC, &d.IP, &d.Hostname, &d.Role, &d.Status, &d.Archived, &d.LastSeen, &d.UpdatedAt, &inserted)
	return d, inserted, err
}

const getDevice = `-- name: GetDevice :one
SELECT ` + deviceColumns + ` FROM devices WHERE id = $1
`

func (q *Queries) GetDevice(ctx context.Context, id int64) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDevice, id))
}

const getDeviceByIP = `-- name: GetDeviceByIP :one
SELECT ` + deviceColumns + ` FROM devices WHERE ip = $1 AND NOT archived
ORDER BY last_seen DESC
LIMIT 1
`

func (q *Queries) GetDeviceByIP(ctx context.Context, ip string) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDeviceByIP, ip))
}

const getDeviceByMAC = `-- name: GetDeviceByMAC :one
SELECT ` + deviceColumns + ` FROM devices WHERE mac = $1
`

func (q *Queries) GetDeviceByMAC(ctx context.Context, mac string) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, getDeviceByMAC, mac))
}

const listDevices = `-- name: ListDevices :many
SELECT ` + deviceColumns + ` FROM devices
WHERE NOT archived
ORDER BY last_seen DESC
OFFSET $1 LIMIT $2
`

type ListDevicesParams struct {
	Offset int32
	Limit  int32
}

func (q *Queries) ListDevices(ctx context.Context, arg ListDevicesParams) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevices, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setDeviceRole = `-- name: SetDeviceRole :one
UPDATE devices SET role = $2, updated_at = $3
WHERE id = $1
RETURNING ` + deviceColumns + `
`

type SetDeviceRoleParams struct {
	ID        int64
	Role      string
	UpdatedAt time.Time
}

func (q *Queries) SetDeviceRole(ctx context.Context, arg SetDeviceRoleParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, setDeviceRole, arg.ID, arg.Role, arg.UpdatedAt))
}

const applyDeviceStatus = `-- name: ApplyDeviceStatus :one
UPDATE devices SET status = $2, updated_at = $3
WHERE id = $1 AND updated_at < $3
RETURNING ` + deviceColumns + `
`

type ApplyDeviceStatusParams struct {
	ID        int64
	Status    string
	UpdatedAt time.Time
}

// ApplyDeviceStatus is conditional: the row is only updated when the supplied
// timestamp is strictly newer than the stored updated_at. A stale timestamp
// matches no row and the caller sees pgx.ErrNoRows.
func (q *Queries) ApplyDeviceStatus(ctx context.Context, arg ApplyDeviceStatusParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, applyDeviceStatus, arg.ID, arg.Status, arg.UpdatedAt))
}

const archiveDevice = `-- name: ArchiveDevice :one
UPDATE devices SET archived = TRUE, updated_at = $2
WHERE id = $1
RETURNING ` + deviceColumns + `
`

type ArchiveDeviceParams struct {
	ID        int64
	UpdatedAt time.Time
}

func (q *Queries) ArchiveDevice(ctx context.Context, arg ArchiveDeviceParams) (Device, error) {
	return scanDevice(q.db.QueryRow(ctx, archiveDevice, arg.ID, arg.UpdatedAt))
}

const insertActionRecord = `-- name: InsertActionRecord :one
INSERT INTO action_log (action, target_ip, operator, ts, success, detail)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, action, target_ip, operator, ts, success, detail
`

type InsertActionRecordParams struct {
	Action   string
	TargetIP string
	Operator string
	Ts       time.Time
	Success  bool
	Detail   string
}

func (q *Queries) InsertActionRecord(ctx context.Context, arg InsertActionRecordParams) (ActionRecord, error) {
	row := q.db.QueryRow(ctx, insertActionRecord, arg.Action, arg.TargetIP, arg.Operator, arg.Ts, arg.Success, arg.Detail)
	var a ActionRecord
	err := row.Scan(&a.ID, &a.Action, &a.TargetIP, &a.Operator, &a.Ts, &a.Success, &a.Detail)
	return a, err
}

const listActionRecords = `-- name: ListActionRecords :many
SELECT id, action, target_ip, operator, ts, success, detail
FROM action_log
ORDER BY ts DESC, id DESC
OFFSET $1 LIMIT $2
`

type ListActionRecordsParams struct {
	Offset int32
	Limit  int32
}

func (q *Queries) ListActionRecords(ctx context.Context, arg ListActionRecordsParams) ([]ActionRecord, error) {
	rows, err := q.db.Query(ctx, listActionRecords, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ActionRecord
	for rows.Next() {
		var a ActionRecord
		if err := rows.Scan(&a.ID, &a.Action, &a.TargetIP, &a.Operator, &a.Ts, &a.Success, &a.Detail); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const actionStats = `-- name: GetActionStats :one
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE action = 'block'),
       COUNT(*) FILTER (WHERE action = 'unblock'),
       COUNT(*) FILTER (WHERE action = 'kick'),
       COUNT(*) FILTER (WHERE success),
       COUNT(*) FILTER (WHERE NOT success)
FROM action_log
`

func (q *Queries) GetActionStats(ctx context.Context) (ActionStats, error) {
	var s ActionStats
	err := q.db.QueryRow(ctx, actionStats).Scan(&s.Total, &s.Blocks, &s.Unblocks, &s.Kicks, &s.Successes, &s.Failures)
	return s, err
}

const insertOperator = `-- name: InsertOperator :one
INSERT INTO operators (username, password_hash, role)
VALUES ($1, $2, $3)
RETURNING id, username, password_hash, role, last_login, created_at
`

type InsertOperatorParams struct {
	Username     string
	PasswordHash string
	Role         string
}

func (q *Queries) InsertOperator(ctx context.Context, arg InsertOperatorParams) (Operator, error) {
	row := q.db.QueryRow(ctx, insertOperator, arg.Username, arg.PasswordHash, arg.Role)
	var o Operator
	err := row.Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.LastLogin, &o.CreatedAt)
	return o, err
}

const getOperatorByUsername = `-- name: GetOperatorByUsername :one
SELECT id, username, password_hash, role, last_login, created_at
FROM operators WHERE username = $1
`

func (q *Queries) GetOperatorByUsername(ctx context.Context, username string) (Operator, error) {
	row := q.db.QueryRow(ctx, getOperatorByUsername, username)
	var o Operator
	err := row.Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.LastLogin, &o.CreatedAt)
	return o, err
}

const touchOperatorLogin = `-- name: TouchOperatorLogin :exec
UPDATE operators SET last_login = $2 WHERE id = $1
`

func (q *Queries) TouchOperatorLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.Exec(ctx, touchOperatorLogin, id, at)
	return err
}

const countOperators = `-- name: CountOperators :one
SELECT COUNT(*) FROM operators
`

func (q *Queries) CountOperators(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOperators).Scan(&n)
	return n, err
}

const insertAlert = `-- name: InsertAlert :one
INSERT INTO alerts (message, level, ts)
VALUES ($1, $2, $3)
RETURNING id, message, level, ts, read
`

type InsertAlertParams struct {
	Message string
	Level   string
	Ts      time.Time
}

func (q *Queries) InsertAlert(ctx context.Context, arg InsertAlertParams) (Alert, error) {
	row := q.db.QueryRow(ctx, insertAlert, arg.Message, arg.Level, arg.Ts)
	var a Alert
	err := row.Scan(&a.ID, &a.Message, &a.Level, &a.Ts, &a.Read)
	return a, err
}

const listAlerts = `-- name: ListAlerts :many
SELECT id, message, level, ts, read
FROM alerts
WHERE NOT $3::bool OR NOT read
ORDER BY ts DESC, id DESC
OFFSET $1 LIMIT $2
`

type ListAlertsParams struct {
	Offset     int32
	Limit      int32
	UnreadOnly bool
}

func (q *Queries) ListAlerts(ctx context.Context, arg ListAlertsParams) ([]Alert, error) {
	rows, err := q.db.Query(ctx, listAlerts, arg.Offset, arg.Limit, arg.UnreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Message, &a.Level, &a.Ts, &a.Read); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markAlertRead = `-- name: MarkAlertRead :one
UPDATE alerts SET read = TRUE WHERE id = $1
RETURNING id, message, level, ts, read
`

func (q *Queries) MarkAlertRead(ctx context.Context, id int64) (Alert, error) {
	row := q.db.QueryRow(ctx, markAlertRead, id)
	var a Alert
	err := row.Scan(&a.ID, &a.Message, &a.Level, &a.Ts, &a.Read)
	return a, err
}

const markAllAlertsRead = `-- name: MarkAllAlertsRead :execrows
UPDATE alerts SET read = TRUE WHERE NOT read
`

func (q *Queries) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, markAllAlertsRead)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const alertStats = `-- name: GetAlertStats :one
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE NOT read),
       COUNT(*) FILTER (WHERE level = 'info'),
       COUNT(*) FILTER (WHERE level = 'warning'),
       COUNT(*) FILTER (WHERE level = 'danger')
FROM alerts
`

func (q *Queries) GetAlertStats(ctx context.Context) (AlertStats, error) {
	var s AlertStats
	err := q.db.QueryRow(ctx, alertStats).Scan(&s.Total, &s.Unread, &s.Info, &s.Warning, &s.Danger)
	return s, err
}
