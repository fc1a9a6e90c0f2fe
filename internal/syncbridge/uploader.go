package syncbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// ErrRejected means the backend refused the upload. Rejected sessions are
// not retried automatically.
var ErrRejected = errors.New("upload rejected by backend")

// Payload is the body delivered to the review backend
type Payload struct {
	DeviceID string                 `json:"deviceId,omitempty"`
	Session  models.TrackingSession `json:"session"`
	Places   []models.Place         `json:"places"`
	Score    *models.ScoringResult  `json:"score,omitempty"`
}

// Uploader delivers one finalized session
type Uploader interface {
	Upload(ctx context.Context, payload Payload) error
}

// HTTPUploader posts payloads as JSON to a single endpoint
type HTTPUploader struct {
	endpoint string
	client   *http.Client
	signer   *TokenSigner
}

// NewHTTPUploader creates an uploader. signer may be nil to send
// unauthenticated requests.
func NewHTTPUploader(endpoint string, timeout time.Duration, signer *TokenSigner) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		signer:   signer,
	}
}

// Upload posts the payload. 2xx and 409 (already received) are success,
// any other 4xx wraps ErrRejected, everything else is retryable.
func (u *HTTPUploader) Upload(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to encode payload: %v", ErrRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", payload.Session.ID)

	if u.signer != nil {
		token, err := u.signer.Sign(payload.Session.ID)
		if err != nil {
			return fmt.Errorf("failed to sign upload token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, detail)
	default:
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, detail)
	}
}
