package email

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// DefaultEndpoint is the Resend send-email API.
const DefaultEndpoint = "https://api.resend.com/emails"

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("email sender not configured")

// ResendNotifier delivers digests through the Resend HTTP API.
type ResendNotifier struct {
	endpoint string
	apiKey   func() string
	client   *http.Client
}

var _ ports.Notifier = (*ResendNotifier)(nil)

// NewResendNotifier posts to endpoint with apiKey. An empty endpoint uses
// DefaultEndpoint.
func NewResendNotifier(endpoint, apiKey string, timeout time.Duration) *ResendNotifier {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResendNotifier{
		endpoint: endpoint,
		apiKey:   func() string { return apiKey },
		client:   &http.Client{Timeout: timeout},
	}
}

// WithKeySource resolves the API key on every send, so operators can rotate
// it without a restart.
func (n *ResendNotifier) WithKeySource(source func() string) *ResendNotifier {
	n.apiKey = source
	return n
}

// Send posts one message addressed to every recipient. Any non-2xx answer
// is a failed delivery.
func (n *ResendNotifier) Send(ctx context.Context, msg domain.Message) error {
	apiKey := strings.TrimSpace(n.apiKey())
	if apiKey == "" {
		return errors.WithHint(ErrNotConfigured, "set RESEND_API_KEY or notifications.email.api_key")
	}
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("resend error: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
