package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"jorfline/internal/config"
	"jorfline/internal/domain"
	"jorfline/internal/engine"
	"jorfline/internal/logging"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookBatch    = 100
)

// auditDispatcher forwards newly appended audit entries to the configured
// webhooks. Each hook keeps its own cursor and starts at the current tail.
type auditDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	interval time.Duration
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartAuditWebhooks runs the dispatcher until ctx is cancelled. It is a
// no-op when no webhook is configured.
func StartAuditWebhooks(ctx context.Context, e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := newAuditDispatcher(e, e.Config.Webhooks)
	go d.run(ctx)
}

func newAuditDispatcher(e engine.Engine, hooks []config.WebhookConfig) *auditDispatcher {
	return &auditDispatcher{
		engine:   e,
		webhooks: hooks,
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

func (d *auditDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *auditDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if !hook.Active() {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *auditDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	log := logging.Component("audit-webhooks").With().Str("url", hook.URL).Logger()
	cursor := d.cursorFor(ctx, idx)
	entries, err := d.engine.Repo.AuditEntriesAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		log.Error().Err(err).Msg("fetch audit entries failed")
		return
	}
	if len(entries) == 0 {
		return
	}
	filter := newActionFilter(hook.Events)
	jorfIDs := map[int64]string{}
	for _, entry := range entries {
		if !filter.match(entry.ActionType) {
			d.setCursor(idx, entry.ID)
			continue
		}
		jorfID, ok := jorfIDs[entry.RequestID]
		if !ok {
			if req, err := d.engine.Repo.GetRequest(ctx, entry.RequestID); err == nil {
				jorfID = req.JorfID
			}
			jorfIDs[entry.RequestID] = jorfID
		}
		if err := postAuditEntry(ctx, hook, jorfID, entry); err != nil {
			log.Warn().Err(err).Int64("audit_id", entry.ID).Msg("deliver audit entry failed; will retry")
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

func (d *auditDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestAuditID(ctx)
	if err != nil {
		log := logging.Component("audit-webhooks")
		log.Error().Err(err).Msg("init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *auditDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type auditWebhookBody struct {
	ID         int64          `json:"id"`
	JorfID     string         `json:"jorf_id,omitempty"`
	RequestID  int64          `json:"request_id"`
	ActionType string         `json:"action_type"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	Remarks    string         `json:"remarks,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

func postAuditEntry(ctx context.Context, hook config.WebhookConfig, jorfID string, entry domain.AuditEntry) error {
	data, err := json.Marshal(auditWebhookBody{
		ID:         entry.ID,
		JorfID:     jorfID,
		RequestID:  entry.RequestID,
		ActionType: entry.ActionType,
		ActorID:    entry.ActorID,
		ActorName:  entry.ActorName,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		Remarks:    entry.Remarks,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Jorf-Event", entry.ActionType)
	req.Header.Set("X-Jorf-Delivery", fmt.Sprintf("%d", entry.ID))
	if jorfID != "" {
		req.Header.Set("X-Jorf-Request", jorfID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Jorf-Secret", hook.Secret)
	}
	client := &http.Client{Timeout: hook.Timeout()}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	if len(actions) == 0 {
		return actionFilter{all: true}
	}
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		key := strings.ToUpper(strings.TrimSpace(a))
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[strings.ToUpper(action)]
	return ok
}
