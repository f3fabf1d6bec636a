package store

import "time"

// Device roles assignable by operators.
const (
	RoleAdmin     = "Admin"
	RoleVolunteer = "Volunteer"
	RoleOther     = "Other"
)

// Access states a device can be in.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
	StatusKicked  = "kicked"
)

type Device struct {
	ID        int64     `json:"id"`
	MAC       string    `json:"mac"`
	IP        string    `json:"ip"`
	Hostname  string    `json:"hostname"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Archived  bool      `json:"archived"`
	LastSeen  time.Time `json:"last_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ActionRecord struct {
	ID       int64     `json:"id"`
	Action   string    `json:"action"`
	TargetIP string    `json:"target_ip"`
	Operator string    `json:"operator"`
	Ts       time.Time `json:"timestamp"`
	Success  bool      `json:"success"`
	Detail   string    `json:"detail"`
}

type Operator struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Alert struct {
	ID      int64     `json:"id"`
	Message string    `json:"message"`
	Level   string    `json:"level"`
	Ts      time.Time `json:"timestamp"`
	Read    bool      `json:"read"`
}

type ActionStats struct {
	Total     int64 `json:"total_actions"`
	Blocks    int64 `json:"blocks"`
	Unblocks  int64 `json:"unblocks"`
	Kicks     int64 `json:"kicks"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

type AlertStats struct {
	Total   int64 `json:"total"`
	Unread  int64 `json:"unread"`
	Info    int64 `json:"info"`
	Warning int64 `json:"warning"`
	Danger  int64 `json:"danger"`
}
