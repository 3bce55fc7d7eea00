package types

// ---- Provisioning state (retained) ----

// ProvisionState is the single connectivity mode the device is in. Exactly
// one state is current at any time; sub-conditions (degraded link, stale
// update service) ride along as payload fields, not extra states.
type ProvisionState string

const (
	StateIdle            ProvisionState = "idle"
	StateConnectingSaved ProvisionState = "connecting_saved"
	StatePortalActive    ProvisionState = "portal_active"
	StateServingUpdates  ProvisionState = "serving_updates"
	StateDisabled        ProvisionState = "disabled"
)

// StateChange is published retained on provision/state for every transition.
type StateChange struct {
	From     ProvisionState `json:"from"`
	To       ProvisionState `json:"to"`
	Reason   string         `json:"reason"`
	LinkLost bool           `json:"link_lost,omitempty"` // degraded sub-condition
	TS       int64          `json:"ts_ms"`
}

// ---- Generic service state (retained) ----

type SvcState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// ---- Link ----

type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// LinkInfo is published retained on net/link.
type LinkInfo struct {
	Link Link   `json:"link"`
	SSID string `json:"ssid,omitempty"`
	Addr string `json:"addr,omitempty"`
	TS   int64  `json:"ts_ms"`
}

func (l LinkInfo) Up() bool { return l.Link == LinkUp }

// ---- Button input ----

type PressKind uint8

const (
	PressNone PressKind = iota
	PressShort
	PressLong
)

func (k PressKind) String() string {
	switch k {
	case PressShort:
		return "short"
	case PressLong:
		return "long"
	default:
		return "none"
	}
}

// ButtonCommand is emitted once per press/release cycle on input/button.
type ButtonCommand struct {
	Kind   PressKind `json:"kind"`
	HeldMs uint32    `json:"held_ms"`
	TS     int64     `json:"ts_ms"`
}

// ---- Update service events ----

// UpdateHandle identifies one update service instance. Handles are never
// reused within a boot; a stopped instance's handle goes stale.
type UpdateHandle uint32

// UpdateBegin is published on update/begin when an upload starts.
type UpdateBegin struct {
	Total int64 `json:"total"` // -1 when unknown
	TS    int64 `json:"ts_ms"`
}

// UpdateProgress is published on update/progress per received chunk.
// Consumers throttle their own logging.
type UpdateProgress struct {
	BytesDone  int64 `json:"bytes_done"`
	BytesTotal int64 `json:"bytes_total"` // -1 when unknown
	TS         int64 `json:"ts_ms"`
}

// UpdateEnd is published on update/end when an upload finishes either way.
type UpdateEnd struct {
	OK     bool   `json:"ok"`
	Err    string `json:"error,omitempty"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ---- Credential ----

type Credential struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase"`
}

func (c Credential) Empty() bool { return c.SSID == "" }

// ---- Heartbeat ----

type Heartbeat struct {
	Count    uint32 `json:"count"`
	UptimeMs int64  `json:"uptime_ms"`
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// StatusReply answers the "status" control verb.
type StatusReply struct {
	State    ProvisionState `json:"state"`
	LinkLost bool           `json:"link_lost,omitempty"`
	TS       int64          `json:"ts_ms"`
}
