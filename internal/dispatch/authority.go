package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalAuthority is one bot's local execution authority. It applies its own
// independent bounds and readiness check and may reject even an approved
// action. Rejection is a deliberate second line of defense, distinct from
// the authority being unreachable.
type LocalAuthority interface {
	Apply(ctx context.Context, action Action) error
}

// RejectionError is returned when an authority understood the action and
// refused it. Rejections are not retried; they feed the consecutive-reject
// counter instead.
type RejectionError struct {
	Bot    string
	Reason string
}

// Error implements the error interface
func (e *RejectionError) Error() string {
	return fmt.Sprintf("bot %s rejected action: %s", e.Bot, e.Reason)
}

// IsRejection reports whether err is an authority rejection.
func IsRejection(err error) bool {
	_, ok := err.(*RejectionError)
	return ok
}

// HTTPAuthority delivers actions to a bot's local control endpoint as a JSON
// POST. 2xx acknowledges, 409/422 reject, everything else is treated as the
// authority being unreachable and left to the retry budget.
type HTTPAuthority struct {
	Bot      string
	Endpoint string
	Client   *http.Client
}

// NewHTTPAuthority creates an authority for one bot control endpoint.
func NewHTTPAuthority(bot, endpoint string, timeout time.Duration) *HTTPAuthority {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthority{
		Bot:      bot,
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Apply implements LocalAuthority
func (a *HTTPAuthority) Apply(ctx context.Context, action Action) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach bot %s: %w", a.Bot, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RejectionError{Bot: a.Bot, Reason: string(reason)}
	}

	return fmt.Errorf("bot %s returned status %d", a.Bot, resp.StatusCode)
}
