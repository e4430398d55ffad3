package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dshills/sgptr/internal/redact"
)

// Session records one invocation: the request, the text shown to the user,
// and every choice made at the execute prompt. Edited commands are recorded
// in Options right after the "m" that produced them.
type Session struct {
	ID             string   `json:"session_id"`
	Prompt         string   `json:"prompt"`
	Temperature    float64  `json:"temperature"`
	TopProbability float64  `json:"top_probability"`
	Caching        bool     `json:"caching"`
	Response       string   `json:"response"`
	Options        []string `json:"option"`
}

// NewSession starts a session record for req with a fresh random ID.
func NewSession(req Request, caching bool) *Session {
	return &Session{
		ID:             uuid.NewString(),
		Prompt:         req.Prompt,
		Temperature:    req.Temperature,
		TopProbability: req.TopProbability,
		Caching:        caching,
		Options:        []string{},
	}
}

// redacted returns a copy with secrets removed from all free text.
func (s Session) redacted() Session {
	s.Prompt = redact.Secrets(s.Prompt)
	s.Response = redact.Secrets(s.Response)
	s.Options = redact.All(s.Options)
	if s.Options == nil {
		s.Options = []string{}
	}
	return s
}

// Upload posts a redacted copy of the session record to the service.
func (c *Client) Upload(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s.redacted())
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("uploading session: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	resp.Body.Close()

	c.logger.Debug().Str("session_id", s.ID).Msg("session uploaded")
	return nil
}
