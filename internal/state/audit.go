package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	auditPrefix           = "ops:audit:"
	OperatorOffsetKey     = "telegram:operator:last_update_id"
	AuditSourceTelegram   = "telegram"
	AuditSourceControlAPI = "http"
)

// AuditEvent records one operator action against the panel.
type AuditEvent struct {
	Time     time.Time      `json:"time"`
	Source   string         `json:"source"`
	Action   string         `json:"action"`
	Command  string         `json:"command,omitempty"`
	UpdateID int64          `json:"update_id,omitempty"`
	UserID   int64          `json:"user_id,omitempty"`
	Username string         `json:"username,omitempty"`
	ChatID   int64          `json:"chat_id,omitempty"`
	Remote   string         `json:"remote,omitempty"`
	Changes  map[string]any `json:"changes,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func RecordAudit(ctx context.Context, store Store, event AuditEvent) error {
	if store == nil {
		return nil
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d:%d", auditPrefix, event.Time.UnixNano(), event.UpdateID)
	return store.Set(ctx, key, string(payload))
}

// RecentAudit returns up to limit audit events, newest first. Entries that
// fail to decode are skipped.
func RecentAudit(ctx context.Context, store Store, limit int) ([]AuditEvent, error) {
	if store == nil {
		return nil, nil
	}
	entries, err := store.List(ctx, auditPrefix, limit)
	if err != nil {
		return nil, err
	}
	events := make([]AuditEvent, 0, len(entries))
	for _, entry := range entries {
		var event AuditEvent
		if err := json.Unmarshal([]byte(entry.Value), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func LoadOffset(ctx context.Context, store Store, key string) int64 {
	if store == nil {
		return 0
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func SaveOffset(ctx context.Context, store Store, key string, offset int64) error {
	if store == nil {
		return nil
	}
	return store.Set(ctx, key, strconv.FormatInt(offset, 10))
}
