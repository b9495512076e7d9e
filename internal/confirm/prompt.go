package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompt asks on Out and reads the answer from In. AssumeYes skips the question.
type Prompt struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

// Confirm returns true only for an explicit "y" or "yes".
func (p Prompt) Confirm(ctx context.Context, action, question string) bool {
	if p.AssumeYes {
		return true
	}
	if ctx.Err() != nil || p.In == nil {
		return false
	}
	if p.Out != nil {
		fmt.Fprintf(p.Out, "%s [y/N]: ", question)
	}

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(p.In).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
