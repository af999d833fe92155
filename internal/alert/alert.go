// Package alert posts a fire-and-forget webhook notification when a
// bind site is refused or expires, so an operator finds out about a
// dropped child without polling the control plane.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"rf24mesh/internal/addr"
)

// DefaultTimeout bounds how long a single webhook POST may take before
// it is abandoned.
const DefaultTimeout = 10 * time.Second

// Config selects the webhook endpoint a Notifier posts to.
type Config struct {
	WebhookURL string
	Enabled    bool
	Timeout    time.Duration
}

// Payload is the JSON body posted to WebhookURL.
type Payload struct {
	BindSite  string    `json:"bind_site"`
	Peer      string    `json:"peer_address"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier posts Payload values to a configured webhook URL. Its
// Notify method satisfies conn.AlertSink by shape.
type Notifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// New returns a Notifier for cfg. A disabled or URL-less config yields
// a Notifier whose Notify calls are silent no-ops, the same shape as
// the teacher's "not configured, skip silently" Telegram behavior.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: timeout},
	}
}

// Notify posts a Payload describing the bind-site event. The POST
// happens on its own goroutine: a connection manager may call Notify
// while holding its own lock, so this must never block on network I/O.
func (n *Notifier) Notify(site addr.BindSite, peer addr.LogicalAddress, kind, detail string) {
	if !n.enabled {
		return
	}
	payload := Payload{
		BindSite:  site.String(),
		Peer:      fmt.Sprintf("0o%o", uint16(peer)),
		Kind:      kind,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	go n.post(payload)
}

func (n *Notifier) post(payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: marshaling payload: %v", err)
		return
	}
	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Printf("alert: posting webhook: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("alert: webhook returned %d: %s", resp.StatusCode, string(body))
	}
}
