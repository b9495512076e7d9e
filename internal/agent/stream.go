package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrStreamClosed is returned when the agent ends the log stream cleanly.
var ErrStreamClosed = errors.New("log stream closed by agent")

// maxEventLine bounds a single text/event-stream line.
const maxEventLine = 1 << 20

// StreamLogs subscribes to the agent's log stream and calls onLine for every
// event payload. It blocks until ctx ends, the stream errors, or the agent
// closes it.
func (c *Client) StreamLogs(ctx context.Context, onLine func(string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathLogsStream, nil)
	if err != nil {
		return fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("opening log stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Failure{
			Kind:       FailureStatus,
			Resource:   PathLogsStream,
			StatusCode: resp.StatusCode,
			Message:    statusMessage(resp.StatusCode, snippet),
		}
	}

	if err := readEvents(resp.Body, onLine); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reading log stream: %w", err)
	}
	return ErrStreamClosed
}

// readEvents parses a text/event-stream body. Multiple data lines of one
// event are joined with "\n"; a blank line dispatches the event. Comments
// and fields other than data are ignored.
func readEvents(r io.Reader, onEvent func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var data []string
	pending := false
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if pending {
				onEvent(strings.Join(data, "\n"))
			}
			data = data[:0]
			pending = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
		pending = true
	}
	return scanner.Err()
}
