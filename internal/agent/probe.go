package agent

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/vesaa/warpdeck/internal/models"
)

// Prober checks, through the host's socket table, whether anything listens
// on the agent's port and which process owns it. It only works when the agent
// runs on this machine, so non-loopback agents are never probed.
type Prober struct {
	mu      sync.Mutex
	port    uint32
	enabled bool

	listeners   func(ctx context.Context) ([]psnet.ConnectionStat, error)
	processName func(ctx context.Context, pid int32) (string, error)
}

// NewProber creates a Prober for the agent at baseURL.
func NewProber(baseURL string, enabled bool) *Prober {
	p := &Prober{
		listeners: func(ctx context.Context) ([]psnet.ConnectionStat, error) {
			return psnet.ConnectionsWithContext(ctx, "tcp")
		},
		processName: func(ctx context.Context, pid int32) (string, error) {
			proc, err := process.NewProcessWithContext(ctx, pid)
			if err != nil {
				return "", err
			}
			return proc.NameWithContext(ctx)
		},
	}
	port, loopback := agentPort(baseURL)
	p.port = port
	p.enabled = enabled && loopback && port != 0
	return p
}

// Enabled reports whether Probe inspects the host at all.
func (p *Prober) Enabled() bool { return p.enabled }

// Probe never fails: errors are reported inside the returned view.
func (p *Prober) Probe(ctx context.Context) models.AgentView {
	if !p.enabled {
		return models.AgentView{SectionState: models.SectionState{Error: "probe disabled"}}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, err := p.listeners(ctx)
	if err != nil {
		return models.AgentView{
			SectionState: models.SectionState{Available: true},
			ProbeError:   fmt.Sprintf("listing sockets: %v", err),
		}
	}

	view := models.AgentView{SectionState: models.SectionState{Available: true}}
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != p.port {
			continue
		}
		view.Listening = true
		view.PID = c.Pid
		if c.Pid > 0 {
			name, err := p.processName(ctx, c.Pid)
			if err != nil {
				view.ProbeError = fmt.Sprintf("resolving pid %d: %v", c.Pid, err)
			} else {
				view.Process = name
			}
		}
		break
	}
	return view
}

// agentPort extracts the port of baseURL and whether its host is loopback.
func agentPort(baseURL string) (uint32, bool) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return 0, false
	}
	portStr := u.Port()
	if portStr == "" {
		switch u.Scheme {
		case "https":
			portStr = "443"
		default:
			portStr = "80"
		}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, false
	}

	host := u.Hostname()
	if host == "localhost" {
		return uint32(port), true
	}
	ip := net.ParseIP(host)
	return uint32(port), ip != nil && ip.IsLoopback()
}
