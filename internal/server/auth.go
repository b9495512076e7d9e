package server

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/warpdeck/internal/confirm"
	"github.com/vesaa/warpdeck/internal/dispatcher"
)

// ConfirmHeader may carry a confirmation ticket instead of the JSON body.
const ConfirmHeader = "X-Confirm-Token"

// ticketConfirmer confirms a destructive action iff the request carried a
// valid ticket for it. It remembers the question so a declined request can
// be answered with one.
type ticketConfirmer struct {
	tickets *confirm.Tickets
	token   string

	mu     sync.Mutex
	prompt string
	err    error
}

func newTicketConfirmer(t *confirm.Tickets, token string) *ticketConfirmer {
	return &ticketConfirmer{tickets: t, token: token}
}

func (tc *ticketConfirmer) Confirm(_ context.Context, action, prompt string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.prompt = prompt
	if tc.token == "" || tc.tickets == nil {
		return false
	}
	if err := tc.tickets.Redeem(tc.token, action); err != nil {
		tc.err = err
		return false
	}
	return true
}

// confirmationToken prefers the header over the body field.
func confirmationToken(c *gin.Context, fromBody string) string {
	if h := strings.TrimSpace(c.GetHeader(ConfirmHeader)); h != "" {
		return h
	}
	return strings.TrimSpace(fromBody)
}

// requireConfirmation answers a declined action with 409 and a fresh ticket.
func (s *Server) requireConfirmation(c *gin.Context, action dispatcher.Action, tc *ticketConfirmer) {
	tc.mu.Lock()
	prompt, prevErr := tc.prompt, tc.err
	tc.mu.Unlock()

	if s.Tickets == nil {
		c.JSON(http.StatusConflict, gin.H{"confirmation_required": true, "prompt": prompt, "error": "confirmation unavailable"})
		return
	}
	token, exp, err := s.Tickets.Issue(string(action))
	if err != nil {
		s.log.Error("issuing confirmation ticket", "action", action, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue confirmation ticket"})
		return
	}
	resp := gin.H{
		"confirmation_required": true,
		"action":                action,
		"confirm_token":         token,
		"expires_at":            exp,
		"prompt":                prompt,
	}
	if prevErr != nil {
		resp["error"] = prevErr.Error()
	}
	c.JSON(http.StatusConflict, resp)
}
