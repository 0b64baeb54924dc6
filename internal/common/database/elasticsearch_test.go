// internal/common/database/elasticsearch_test.go
package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"ican-workers/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeElasticsearch(t *testing.T, indexExists bool, creates *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead:
			if indexExists {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			atomic.AddInt32(creates, 1)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestElasticsearch_PingAndEnsureIndex(t *testing.T) {
	var creates int32
	srv := newFakeElasticsearch(t, false, &creates)

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)

	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.EnsureIndex(context.Background(), "audit-entries", `{"mappings":{}}`))
	assert.Equal(t, int32(1), atomic.LoadInt32(&creates))
}

func TestElasticsearch_EnsureIndexExisting(t *testing.T) {
	var creates int32
	srv := newFakeElasticsearch(t, true, &creates)

	client, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	assert.NoError(t, client.EnsureIndex(context.Background(), "audit-entries", `{}`))
	assert.Equal(t, int32(0), atomic.LoadInt32(&creates))
}
