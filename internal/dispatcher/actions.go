package dispatcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vesaa/warpdeck/internal/agent"
)

// Action names an operator command.
type Action string

const (
	ActionActivate        Action = "activate"
	ActionUnbind          Action = "unbind"
	ActionRefreshAccounts Action = "refresh-accounts"
	ActionSwitchAccount   Action = "switch-account"
	ActionDetectWarpPath  Action = "detect-warp-path"
	ActionSaveWarpPath    Action = "save-warp-path"
	ActionStartWarp       Action = "start-warp"
	ActionStopWarp        Action = "stop-warp"
	ActionStartGateway    Action = "start-gateway"
	ActionStopGateway     Action = "stop-gateway"
	ActionBackupAll       Action = "backup-all"
	ActionRestoreAll      Action = "restore-all"
)

// ErrUnknownAction is returned by Parse for names outside the catalog.
var ErrUnknownAction = errors.New("unknown action")

// target is one endpoint of an action. label names it in partial-failure messages.
type target struct {
	label    string
	resource string
}

// definition describes how an action validates, calls and reports.
type definition struct {
	// validate returns a local failure message, or "".
	validate func(Request) string
	payload  func(Request) any
	targets  []target
	success  string
	fallback string
	// partial formats the message naming the failed targets of a compound action.
	partial string
	confirm string
	backups bool
}

func (d definition) compound() bool { return len(d.targets) > 1 }

var catalog = map[Action]definition{
	ActionActivate: {
		validate: requireField(func(r Request) string { return r.Code }, "Enter an activation code"),
		payload:  func(r Request) any { return map[string]string{"code": strings.TrimSpace(r.Code)} },
		targets:  []target{{resource: agent.PathActivationLogin}},
		success:  "Activation succeeded",
		fallback: "Activation failed",
	},
	ActionUnbind: {
		targets:  []target{{resource: agent.PathActivationUnbind}},
		success:  "Device unbound",
		fallback: "Unbind failed",
	},
	ActionRefreshAccounts: {
		targets:  []target{{resource: agent.PathAccountsRefresh}},
		success:  "Accounts refreshed",
		fallback: "Refresh failed",
	},
	ActionSwitchAccount: {
		validate: requireField(func(r Request) string { return r.Email }, "Select an account first"),
		payload:  func(r Request) any { return map[string]string{"email": strings.TrimSpace(r.Email)} },
		targets:  []target{{resource: agent.PathAccountsSwitch}},
		success:  "Account switched",
		fallback: "Switch failed",
	},
	ActionDetectWarpPath: {
		targets:  []target{{resource: agent.PathWarpPathAuto}},
		success:  "WARP path detected",
		fallback: "WARP path detection failed",
	},
	ActionSaveWarpPath: {
		validate: requireField(func(r Request) string { return r.Path }, "Enter the WARP path"),
		payload:  func(r Request) any { return map[string]string{"path": strings.TrimSpace(r.Path)} },
		targets:  []target{{resource: agent.PathWarpPath}},
		success:  "WARP path saved",
		fallback: "Saving WARP path failed",
	},
	ActionStartWarp: {
		targets:  []target{{resource: agent.PathWarpStart}},
		success:  "WARP started",
		fallback: "Failed to start WARP",
	},
	ActionStopWarp: {
		targets:  []target{{resource: agent.PathWarpStop}},
		success:  "WARP stopped",
		fallback: "Failed to stop WARP",
	},
	ActionStartGateway: {
		targets:  []target{{resource: agent.PathGatewayStart}},
		success:  "Gateway started",
		fallback: "Failed to start gateway",
	},
	ActionStopGateway: {
		targets:  []target{{resource: agent.PathGatewayStop}},
		success:  "Gateway stopped",
		fallback: "Failed to stop gateway",
	},
	ActionBackupAll: {
		targets: []target{
			{label: "Default table", resource: agent.PathDefaultBackup},
			{label: "MCP", resource: agent.PathMCPBackup},
		},
		success:  "Backup succeeded",
		fallback: "Backup failed",
		partial:  "%s backup failed",
		backups:  true,
	},
	ActionRestoreAll: {
		targets: []target{
			{label: "Default table", resource: agent.PathDefaultRestore},
			{label: "MCP", resource: agent.PathMCPRestore},
		},
		success:  "Restore succeeded",
		fallback: "Restore failed",
		partial:  "%s restore failed",
		confirm:  "Restore the default table and MCP configuration from backup? Current settings will be overwritten.",
		backups:  true,
	},
}

// order is the catalog in display order.
var order = []Action{
	ActionActivate, ActionUnbind, ActionRefreshAccounts, ActionSwitchAccount,
	ActionDetectWarpPath, ActionSaveWarpPath, ActionStartWarp, ActionStopWarp,
	ActionStartGateway, ActionStopGateway, ActionBackupAll, ActionRestoreAll,
}

// Actions lists every known action.
func Actions() []Action {
	out := make([]Action, len(order))
	copy(out, order)
	return out
}

// Parse resolves an action name.
func Parse(name string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := catalog[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return a, nil
}

// NeedsConfirmation reports whether a runs only after an explicit confirmation.
func NeedsConfirmation(a Action) bool {
	return catalog[a].confirm != ""
}

func requireField(get func(Request) string, msg string) func(Request) string {
	return func(r Request) string {
		if strings.TrimSpace(get(r)) == "" {
			return msg
		}
		return ""
	}
}
