package agent

import (
	"context"
	"fmt"

	"github.com/vesaa/warpdeck/internal/models"
)

// Agent resources.
const (
	PathActivationStatus = "/api/activation/status"
	PathActivationLogin  = "/api/activation/login"
	PathActivationUnbind = "/api/activation/unbind"
	PathAccounts         = "/api/accounts"
	PathAccountsRefresh  = "/api/accounts/refresh"
	PathAccountsSwitch   = "/api/accounts/switch"
	PathGatewayStatus    = "/api/gateway/status"
	PathGatewayStart     = "/api/gateway/start"
	PathGatewayStop      = "/api/gateway/stop"
	PathWarpStatus       = "/api/warp/status"
	PathWarpStart        = "/api/warp/start"
	PathWarpStop         = "/api/warp/stop"
	PathWarpPathAuto     = "/api/warp/path/auto"
	PathWarpPath         = "/api/warp/path"
	PathDefaultStatus    = "/api/default/status"
	PathDefaultBackup    = "/api/default/backup"
	PathDefaultRestore   = "/api/default/restore"
	PathMCPBackups       = "/api/mcp/backups"
	PathMCPBackup        = "/api/mcp/backup"
	PathMCPRestore       = "/api/mcp/restore"
	PathNotice           = "/api/notice"
	PathLogsTail         = "/api/logs/tail"
	PathLogsStream       = "/api/logs/stream"
)

func fetch[T any](ctx context.Context, c *Client, resource string) (T, error) {
	var out T
	if err := c.Get(ctx, resource).Into(&out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Client) ActivationStatus(ctx context.Context) (models.ActivationStatus, error) {
	return fetch[models.ActivationStatus](ctx, c, PathActivationStatus)
}

func (c *Client) Accounts(ctx context.Context) (models.AccountsPayload, error) {
	return fetch[models.AccountsPayload](ctx, c, PathAccounts)
}

func (c *Client) GatewayStatus(ctx context.Context) (models.ProcessStatus, error) {
	return fetch[models.ProcessStatus](ctx, c, PathGatewayStatus)
}

func (c *Client) WarpStatus(ctx context.Context) (models.ProcessStatus, error) {
	return fetch[models.ProcessStatus](ctx, c, PathWarpStatus)
}

func (c *Client) DefaultBackupStatus(ctx context.Context) (models.DefaultBackupStatus, error) {
	return fetch[models.DefaultBackupStatus](ctx, c, PathDefaultStatus)
}

func (c *Client) MCPBackups(ctx context.Context) (models.MCPBackupList, error) {
	return fetch[models.MCPBackupList](ctx, c, PathMCPBackups)
}

func (c *Client) Notice(ctx context.Context) (models.NoticePayload, error) {
	return fetch[models.NoticePayload](ctx, c, PathNotice)
}

// TailLogs returns the last n lines of the agent log.
func (c *Client) TailLogs(ctx context.Context, n int) ([]string, error) {
	tail, err := fetch[models.LogTail](ctx, c, fmt.Sprintf("%s?lines=%d", PathLogsTail, n))
	if err != nil {
		return nil, err
	}
	return tail.Lines, nil
}
