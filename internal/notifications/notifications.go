package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultURL = "https://ntfy.sh"

// Notifier publishes messages to an ntfy topic.
type Notifier struct {
	baseURL string
	topic   string
	client  *http.Client
}

// New returns nil when no topic is configured; a nil Notifier is valid and
// reports itself disabled.
func New(baseURL, topic string) *Notifier {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}

	log.Info().
		Str("topic", topic).
		Str("url", baseURL).
		Msg("Ntfy notifications initialized")

	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil
}

// Send publishes a notification using ntfy's JSON publishing endpoint.
func (n *Notifier) Send(title, message string) error {
	if !n.Enabled() {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.baseURL+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
