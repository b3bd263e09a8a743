package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r), nil }

func response(status int, body string) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(body))}
}

func newClient(t *testing.T, fn roundTripFunc) *elasticsearch.Client {
	t.Helper()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.local:9200"},
		Transport: fn,
	})
	require.NoError(t, err)
	return es
}

func TestAuditIndex_Index(t *testing.T) {
	var (
		method, path string
		doc          map[string]any
	)
	es := newClient(t, func(r *http.Request) *http.Response {
		method, path = r.Method, r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		return response(http.StatusCreated, `{"result":"created"}`)
	})

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := event.New(event.UserLoggedIn, "u-1", at, map[string]string{"email": "a@b.com"})
	require.NoError(t, NewAuditIndex(es, "auth-audit").Index(context.Background(), e))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/auth-audit/_doc/"+e.ID, path)
	assert.Equal(t, "user.logged_in", doc["type"])
	assert.Equal(t, "u-1", doc["user_id"])
	assert.Equal(t, "2024-03-01T12:00:00Z", doc["timestamp"])
}

func TestAuditIndex_IndexErrorStatus(t *testing.T) {
	es := newClient(t, func(*http.Request) *http.Response {
		return response(http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`)
	})
	err := NewAuditIndex(es, "auth-audit").Index(context.Background(), event.New(event.UserLoggedOut, "u-1", time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestAuditIndex_Recent(t *testing.T) {
	var query map[string]any
	es := newClient(t, func(r *http.Request) *http.Response {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		return response(http.StatusOK, `{"hits":{"hits":[
			{"_source":{"id":"e2","type":"user.logged_out","user_id":"u-1","timestamp":"2024-03-01T13:00:00Z"}},
			{"_source":{"id":"e1","type":"user.logged_in","user_id":"u-1","timestamp":"2024-03-01T12:00:00Z"}}
		]}}`)
	})

	got, err := NewAuditIndex(es, "auth-audit").Recent(context.Background(), "u-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, event.UserLoggedOut, got[0].Type)
	assert.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.EqualValues(t, 20, query["size"])
}
