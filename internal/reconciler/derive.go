package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/vesaa/warpdeck/internal/models"
)

// Backup targets.
const (
	TargetDefault = "default"
	TargetMCP     = "mcp"
)

var accountStatusLabels = map[string]string{
	"normal":    "Normal",
	"available": "Available",
	"banned":    "Banned",
	"error":     "Error",
}

const timestampLayout = "2006-01-02 15:04:05"

// DeriveActivation maps the agent's activation payload to the pill view.
// now is used only when the agent did not report serverTime.
func DeriveActivation(p models.ActivationStatus, now time.Time) models.ActivationView {
	v := models.ActivationView{
		SectionState:  models.SectionState{Available: true},
		ExpiryText:    models.Placeholder,
		RemainingText: models.Placeholder,
		DeviceID:      orPlaceholder(p.DeviceID),
		Locked:        true,
	}
	if !p.Activated {
		v.Pill = models.PillInactive
		switch {
		case p.Error == "unauthorized":
			v.Hint = "Device is not bound or its license has expired"
		case p.Error != "":
			v.Hint = p.Error
		default:
			v.Hint = "Activate this device first"
		}
		return v
	}

	ref := p.ServerTime
	if ref <= 0 {
		ref = now.Unix()
	}
	v.ExpiresAt = p.ExpiresAt
	v.ExpiryText = FormatTimestamp(p.ExpiresAt)
	v.RemainingText = FormatRemaining(p.ExpiresAt, ref)

	if p.Active && (p.ExpiresAt <= 0 || p.ExpiresAt > ref) {
		v.Pill = models.PillActive
		v.Locked = false
		return v
	}
	v.Pill = models.PillExpired
	v.Hint = "License expired"
	return v
}

// UnavailableActivation is the activation view when the status read failed.
func UnavailableActivation(reason string) models.ActivationView {
	return models.ActivationView{
		SectionState:  models.SectionState{Error: reason},
		Pill:          models.PillError,
		ExpiryText:    models.Placeholder,
		RemainingText: models.Placeholder,
		DeviceID:      models.Placeholder,
		Locked:        true,
		Hint:          reason,
	}
}

// DeriveAccounts maps the accounts payload to the credentials view.
func DeriveAccounts(p models.AccountsPayload) models.AccountsView {
	v := models.AccountsView{
		SectionState:     models.SectionState{Available: true},
		Options:          make([]models.AccountOption, 0, len(p.LocalAccounts)),
		TotalQuota:       p.Stats.TotalQuota,
		TotalUsed:        p.Stats.TotalUsed,
		TotalVirtualUsed: p.TotalVirtualUsed,
		SwitchCount:      p.SwitchCount,
	}

	currentEmail := ""
	if p.CurrentAccount != nil {
		cur := deriveAccount(*p.CurrentAccount)
		v.Current = &cur
		currentEmail = cur.Email
	}
	for _, acc := range p.LocalAccounts {
		status := acc.Status
		if status == "" {
			status = "normal"
		}
		v.Options = append(v.Options, models.AccountOption{
			Email:    acc.Email,
			Label:    fmt.Sprintf("%s (%s)", acc.Email, status),
			Selected: currentEmail != "" && acc.Email == currentEmail,
		})
	}

	switch {
	case p.Stats.AssignedTotal != nil && *p.Stats.AssignedTotal > 0:
		v.Assigned = *p.Stats.AssignedTotal
	case p.AccountCount > 0:
		v.Assigned = int64(p.AccountCount)
	default:
		v.Assigned = int64(len(p.LocalAccounts))
	}
	return v
}

func deriveAccount(a models.Account) models.AccountView {
	return models.AccountView{
		Email:       orPlaceholder(a.Email),
		Status:      a.Status,
		StatusLabel: AccountStatusLabel(a.Status),
		Type:        orPlaceholder(a.Type),
		Quota:       a.Quota,
		Used:        a.Used,
		Remaining:   Remaining(a.Quota, a.Used),
		NextRefresh: orPlaceholder(a.NextRefresh),
	}
}

// Remaining is the display quota left: never negative, zero without a quota.
func Remaining(quota, used int64) int64 {
	if quota <= 0 {
		return 0
	}
	return max(quota-used, 0)
}

// AccountStatusLabel renders a known status, the raw status otherwise.
func AccountStatusLabel(status string) string {
	if label, ok := accountStatusLabels[strings.ToLower(status)]; ok {
		return label
	}
	return orPlaceholder(status)
}

// DeriveProcess maps a gateway or warp status payload. name prefixes the label.
func DeriveProcess(name string, p models.ProcessStatus) models.ProcessView {
	v := models.ProcessView{
		SectionState: models.SectionState{Available: true},
		Running:      p.Running,
		Port:         p.Port,
		Path:         p.Path,
	}
	switch {
	case p.Running && p.Port > 0:
		v.Label = fmt.Sprintf("%s [%d] running", name, p.Port)
	case p.Running:
		v.Label = name + " running"
	default:
		v.Label = name + " stopped"
	}
	return v
}

// DeriveDefaultBackup maps the default-table backup status.
func DeriveDefaultBackup(p models.DefaultBackupStatus) models.BackupView {
	return backupView(TargetDefault, p.HasBackup, p.CreatedAt)
}

// DeriveMCPBackup maps the MCP backup listing; only the first backup is shown.
func DeriveMCPBackup(p models.MCPBackupList) models.BackupView {
	if len(p.Backups) == 0 {
		return backupView(TargetMCP, false, "")
	}
	return backupView(TargetMCP, true, p.Backups[0].BackupTime)
}

func backupView(target string, has bool, createdAt string) models.BackupView {
	v := models.BackupView{
		SectionState: models.SectionState{Available: true},
		Target:       target,
		Supported:    true,
		HasBackup:    has,
		CreatedAt:    createdAt,
		Label:        "Not backed up",
	}
	if has {
		v.Label = "Backed up"
		if t := formatBackupTime(createdAt); t != "" {
			v.Label += " (" + t + ")"
		}
	}
	return v
}

// UnsupportedBackup is the view of a backup target the agent does not offer.
func UnsupportedBackup(target string) models.BackupView {
	return models.BackupView{
		SectionState: models.SectionState{Error: "not supported by this agent"},
		Target:       target,
		Label:        models.Placeholder,
	}
}

// DeriveNotice shows the banner only when it is enabled and non-blank.
func DeriveNotice(p models.NoticePayload) models.NoticeView {
	v := models.NoticeView{SectionState: models.SectionState{Available: true}}
	if p.Notice == nil || !p.Notice.Enabled {
		return v
	}
	msg := strings.TrimSpace(p.Notice.Message)
	if msg == "" {
		return v
	}
	v.Show = true
	v.Message = msg
	v.Link = p.Notice.Link
	return v
}

// FormatTimestamp renders epoch seconds in local time, or the placeholder.
func FormatTimestamp(ts int64) string {
	if ts <= 0 {
		return models.Placeholder
	}
	return time.Unix(ts, 0).Local().Format(timestampLayout)
}

// FormatRemaining renders the time left until expiresAt as seen at now
// (both epoch seconds): "3d 4h", "4h 12m" or "12m".
func FormatRemaining(expiresAt, now int64) string {
	if expiresAt <= 0 {
		return models.Placeholder
	}
	diff := max(expiresAt-now, 0)
	days := diff / 86400
	hours := (diff % 86400) / 3600
	mins := (diff % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

// formatBackupTime accepts the agent's RFC 3339 timestamps and falls back
// to the raw string.
func formatBackupTime(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, timestampLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format(timestampLayout)
		}
	}
	return s
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Placeholder
	}
	return s
}
