package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicdesk/internal/config"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
)

const (
	DefaultWebhookInterval = 2 * time.Second
	webhookTimeout         = 5 * time.Second
	webhookBatch           = 100
	signatureHeader        = "X-Civicdesk-Signature"
)

// subscriber is one enabled webhook and how far it has been delivered.
// cursor is negative until the first poll.
type subscriber struct {
	hook   config.WebhookConfig
	filter eventFilter
	client *http.Client
	cursor int64
}

// webhookDispatcher polls the audit log and posts new events to subscribers.
// Delivery is at-least-once and in order per subscriber: a failed post stops
// that subscriber's batch and is retried on the next tick.
type webhookDispatcher struct {
	source eventSource
	subs   []*subscriber
	logger *log.Logger
}

type eventSource interface {
	EventsAfter(ctx context.Context, after int64, limit int) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// StartWebhooks delivers new audit events to the configured webhooks until
// ctx is cancelled. It returns false when no webhook is enabled.
func StartWebhooks(ctx context.Context, e engine.Engine, interval time.Duration) bool {
	d := newWebhookDispatcher(e)
	if d == nil {
		return false
	}
	if interval <= 0 {
		interval = DefaultWebhookInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			d.dispatchAll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return true
}

func newWebhookDispatcher(e engine.Engine) *webhookDispatcher {
	if e.Config == nil {
		return nil
	}
	var subs []*subscriber
	for _, h := range e.Config.Webhooks {
		if (h.Enabled != nil && !*h.Enabled) || strings.TrimSpace(h.URL) == "" {
			continue
		}
		timeout := webhookTimeout
		if h.TimeoutSeconds > 0 {
			timeout = time.Duration(h.TimeoutSeconds) * time.Second
		}
		subs = append(subs, &subscriber{
			hook:   h,
			filter: newEventFilter(h.Events),
			client: &http.Client{Timeout: timeout},
			cursor: -1,
		})
	}
	if len(subs) == 0 {
		return nil
	}
	logger := e.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &webhookDispatcher{source: e.Repo, subs: subs, logger: logger}
}

// dispatchAll runs one delivery round. Rounds are not run concurrently.
func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, s := range d.subs {
		if s.cursor < 0 {
			// Start at the tail so a restart does not replay history.
			latest, err := d.source.LatestEventID(ctx)
			if err != nil {
				d.logger.Printf("WARNING: webhook %s: read latest event: %v", s.hook.URL, err)
				continue
			}
			s.cursor = latest
		}
		if err := d.deliver(ctx, s); err != nil {
			d.logger.Printf("WARNING: webhook %s: %v", s.hook.URL, err)
		}
	}
}

func (d *webhookDispatcher) deliver(ctx context.Context, s *subscriber) error {
	batch, err := d.source.EventsAfter(ctx, s.cursor, webhookBatch)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	for _, evt := range batch {
		if s.filter.match(evt.Type) {
			if err := post(ctx, s, evt); err != nil {
				return fmt.Errorf("deliver event %d: %w", evt.ID, err)
			}
		}
		s.cursor = evt.ID
	}
	return nil
}

// webhookEvent is the JSON body of a delivery.
type webhookEvent struct {
	DeliveryID int64           `json:"delivery_id"`
	Event      string          `json:"event"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func post(ctx context.Context, s *subscriber, evt domain.Event) error {
	data := json.RawMessage(`{}`)
	if json.Valid([]byte(evt.Payload)) {
		data = json.RawMessage(evt.Payload)
	}
	body, err := json.Marshal(webhookEvent{
		DeliveryID: evt.ID,
		Event:      evt.Type,
		Entity:     evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		OccurredAt: evt.TS,
		Data:       data,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Civicdesk-Event", evt.Type)
	req.Header.Set("X-Civicdesk-Delivery", strconv.FormatInt(evt.ID, 10))
	if secret := strings.TrimSpace(s.hook.Secret); secret != "" {
		req.Header.Set(signatureHeader, signPayload(secret, body))
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("receiver answered %d: %s", res.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

// signPayload returns the value of the signature header: "sha256=" followed
// by the hex HMAC-SHA256 of body keyed with secret.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// eventFilter matches event types exactly or by a "prefix.*" pattern. An
// empty filter matches everything.
type eventFilter struct {
	exact    map[string]bool
	prefixes []string
}

func newEventFilter(patterns []string) eventFilter {
	f := eventFilter{exact: map[string]bool{}}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			return eventFilter{}
		case strings.HasSuffix(p, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(p, "*"))
		default:
			f.exact[p] = true
		}
	}
	return f
}

func (f eventFilter) match(evtType string) bool {
	if len(f.exact) == 0 && len(f.prefixes) == 0 {
		return true
	}
	if f.exact[evtType] {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(evtType, p) {
			return true
		}
	}
	return false
}
