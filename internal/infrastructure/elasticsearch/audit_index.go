// Package elasticsearch stores auth events in an Elasticsearch index for
// audit lookups.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
)

type AuditIndex struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
}

func NewAuditIndex(es *elasticsearch.Client, index string) *AuditIndex {
	return &AuditIndex{es: es, index: index, timeout: 3 * time.Second}
}

type auditDoc struct {
	ID        string            `json:"id"`
	Type      event.Type        `json:"type"`
	UserID    string            `json:"user_id"`
	Timestamp string            `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// Index writes e using its id as document id, so redelivered events
// overwrite instead of duplicating.
func (a *AuditIndex) Index(ctx context.Context, e event.Event) error {
	b, err := json.Marshal(auditDoc{
		ID:        e.ID,
		Type:      e.Type,
		UserID:    e.UserID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:   e.Payload,
	})
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: a.index, DocumentID: e.ID, Body: bytes.NewReader(b), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	res, err := req.Do(c, a.es)
	if err != nil {
		return fmt.Errorf("es index %s: %w", e.ID, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index %s: %s", e.ID, res.Status())
	}
	return nil
}

// Recent returns the latest events recorded for userID, newest first.
func (a *AuditIndex) Recent(ctx context.Context, userID string, size int) ([]event.Event, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"user_id": userID},
		},
		"sort": []any{map[string]any{"timestamp": map[string]any{"order": "desc"}}},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	res, err := a.es.Search(
		a.es.Search.WithContext(c),
		a.es.Search.WithIndex(a.index),
		a.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source auditDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]event.Event, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ts, _ := time.Parse(time.RFC3339Nano, h.Source.Timestamp)
		out = append(out, event.Event{
			ID:        h.Source.ID,
			Type:      h.Source.Type,
			UserID:    h.Source.UserID,
			Timestamp: ts,
			Payload:   h.Source.Payload,
		})
	}
	return out, nil
}
