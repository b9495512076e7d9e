package models

import "time"

// Placeholder is rendered wherever a value is unknown.
const Placeholder = "--"

// Section names, used as keys of Snapshot.SectionCycles.
const (
	SectionActivation    = "activation"
	SectionAccounts      = "accounts"
	SectionGateway       = "gateway"
	SectionWarp          = "warp"
	SectionNotice        = "notice"
	SectionDefaultBackup = "default_backup"
	SectionMCPBackup     = "mcp_backup"
	SectionAgent         = "agent"
)

// Activation pill states.
const (
	PillActive   = "active"
	PillExpired  = "expired"
	PillInactive = "inactive"
	PillError    = "error"
)

// Capability is the tri-state of an optional agent feature.
type Capability string

const (
	CapabilityUnknown     Capability = "unknown"
	CapabilitySupported   Capability = "supported"
	CapabilityUnsupported Capability = "unsupported"
)

// SectionState is embedded in every view section. Available=false is the
// "unavailable" display state and is distinct from an empty section.
type SectionState struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type ActivationView struct {
	SectionState
	Pill          string `json:"pill"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
	ExpiryText    string `json:"expiryText"`
	RemainingText string `json:"remainingText"`
	DeviceID      string `json:"deviceId"`
	Locked        bool   `json:"locked"`
	Hint          string `json:"hint,omitempty"`
}

type AccountView struct {
	Email       string `json:"email"`
	Status      string `json:"status"`
	StatusLabel string `json:"statusLabel"`
	Type        string `json:"type"`
	Quota       int64  `json:"quota"`
	Used        int64  `json:"used"`
	Remaining   int64  `json:"remaining"`
	NextRefresh string `json:"nextRefresh"`
}

type AccountOption struct {
	Email    string `json:"email"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type AccountsView struct {
	SectionState
	Current          *AccountView    `json:"current,omitempty"`
	Options          []AccountOption `json:"options"`
	Assigned         int64           `json:"assigned"`
	TotalQuota       *int64          `json:"totalQuota,omitempty"`
	TotalUsed        *int64          `json:"totalUsed,omitempty"`
	TotalVirtualUsed *int64          `json:"totalVirtualUsed,omitempty"`
	SwitchCount      int             `json:"switchCount"`
}

// ProcessView renders the gateway or the warp tunnel.
type ProcessView struct {
	SectionState
	Running bool   `json:"running"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
	Label   string `json:"label"`
}

// BackupView renders one backup target ("default" or "mcp").
type BackupView struct {
	SectionState
	Target    string `json:"target"`
	Supported bool   `json:"supported"`
	HasBackup bool   `json:"hasBackup"`
	CreatedAt string `json:"createdAt,omitempty"`
	Label     string `json:"label"`
}

type NoticeView struct {
	SectionState
	Show    bool   `json:"show"`
	Message string `json:"message,omitempty"`
	Link    string `json:"link,omitempty"`
}

// AgentView reports what the host says about the agent's listening socket.
type AgentView struct {
	SectionState
	Listening  bool   `json:"listening"`
	PID        int32  `json:"pid,omitempty"`
	Process    string `json:"process,omitempty"`
	ProbeError string `json:"probeError,omitempty"`
}

type Capabilities struct {
	Backups Capability `json:"backups"`
}

// Snapshot is one display-ready rendering of every tracked resource.
// SectionCycles records the reconcile cycle that last wrote each section.
type Snapshot struct {
	Cycle         uint64            `json:"cycle"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	Activation    ActivationView    `json:"activation"`
	Accounts      AccountsView      `json:"accounts"`
	Gateway       ProcessView       `json:"gateway"`
	Warp          ProcessView       `json:"warp"`
	Notice        NoticeView        `json:"notice"`
	DefaultBackup BackupView        `json:"defaultBackup"`
	MCPBackup     BackupView        `json:"mcpBackup"`
	Agent         AgentView         `json:"agent"`
	Capabilities  Capabilities      `json:"capabilities"`
	SectionCycles map[string]uint64 `json:"sectionCycles"`
}
