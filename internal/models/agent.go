// Package models defines the WarpDeck data models: the payloads the local
// agent returns, the display-ready view model assembled from them, and the
// GORM record of dispatched actions.
package models

// ActivationStatus is the payload of GET /api/activation/status.
// ExpiresAt and ServerTime are epoch seconds; zero means absent.
type ActivationStatus struct {
	Success    bool   `json:"success"`
	Activated  bool   `json:"activated"`
	Active     bool   `json:"active"`
	ExpiresAt  int64  `json:"expiresAt,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	ServerTime int64  `json:"serverTime,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Account is one credential slot managed by the agent. Email is the unique key.
type Account struct {
	Email       string `json:"email"`
	Status      string `json:"status"`
	Type        string `json:"type,omitempty"`
	Quota       int64  `json:"quota"`
	Used        int64  `json:"used"`
	NextRefresh string `json:"nextRefreshTime,omitempty"`
}

// AccountStats carries the pool-wide counters. Any field may be missing.
type AccountStats struct {
	AssignedTotal *int64 `json:"assigned_total,omitempty"`
	TotalQuota    *int64 `json:"total_quota,omitempty"`
	TotalUsed     *int64 `json:"total_used,omitempty"`
}

// AccountsPayload is the payload of GET /api/accounts.
type AccountsPayload struct {
	Success          bool         `json:"success"`
	CurrentAccount   *Account     `json:"currentAccount,omitempty"`
	LocalAccounts    []Account    `json:"localAccounts"`
	Stats            AccountStats `json:"stats"`
	AccountCount     int          `json:"accountCount,omitempty"`
	SwitchCount      int          `json:"switchCount"`
	TotalVirtualUsed *int64       `json:"totalVirtualUsed,omitempty"`
}

// ProcessStatus is the payload of the gateway and warp status endpoints.
type ProcessStatus struct {
	Success bool   `json:"success"`
	Running bool   `json:"running"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// DefaultBackupStatus is the payload of GET /api/default/status.
type DefaultBackupStatus struct {
	Success   bool   `json:"success"`
	HasBackup bool   `json:"hasBackup"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// MCPBackup describes one credential backup listed by the agent.
type MCPBackup struct {
	AccountID    string `json:"accountId"`
	AccountEmail string `json:"accountEmail"`
	BackupTime   string `json:"backupTime"`
	ServerCount  int    `json:"serverCount"`
	ActiveCount  int    `json:"activeCount"`
}

// MCPBackupList is the payload of GET /api/mcp/backups.
type MCPBackupList struct {
	Success bool        `json:"success"`
	Backups []MCPBackup `json:"backups"`
}

// Notice is the operator banner published by the agent.
type Notice struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// NoticePayload is the payload of GET /api/notice.
type NoticePayload struct {
	Success bool    `json:"success"`
	Notice  *Notice `json:"notice,omitempty"`
}

// LogTail is the payload of GET /api/logs/tail.
type LogTail struct {
	Success bool     `json:"success"`
	Lines   []string `json:"lines"`
}

// ActionReply is the payload every mutating agent endpoint returns.
type ActionReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Path    string `json:"path,omitempty"`
	Port    int    `json:"port,omitempty"`
}
