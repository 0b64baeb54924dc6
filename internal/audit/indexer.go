package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// IndexMapping is applied when the audit index does not exist yet.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "eventType":    {"type": "keyword"},
      "resourceType": {"type": "keyword"},
      "resourceId":   {"type": "keyword"},
      "actorId":      {"type": "keyword"},
      "payload":      {"type": "object", "enabled": false},
      "occurredAt":   {"type": "date"}
    }
  }
}`

// Indexer mirrors audit entries into Elasticsearch and serves trail lookups.
type Indexer struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
	wg      sync.WaitGroup
}

func NewIndexer(es *elasticsearch.Client, index string, timeout time.Duration, log logger.Logger) *Indexer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Indexer{
		es:      es,
		index:   index,
		timeout: timeout,
		logger:  logger.Component(log, "audit-indexer"),
	}
}

// Mirror indexes entries on a background goroutine. Failures are logged and
// counted only; Postgres remains the source of truth.
func (i *Indexer) Mirror(_ context.Context, entries ...models.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	batch := append([]models.AuditEntry(nil), entries...)

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
		defer cancel()

		for _, e := range batch {
			if err := i.IndexEntry(ctx, e); err != nil {
				metrics.AuditMirrorWrites.WithLabelValues("failed").Inc()
				i.logger.Warn("audit mirror write failed", map[string]interface{}{
					"entryId":    e.ID,
					"eventType":  e.EventType,
					"resourceId": e.ResourceID,
					"error":      err,
				})
				continue
			}
			metrics.AuditMirrorWrites.WithLabelValues("indexed").Inc()
		}
	}()
}

// Wait blocks until in-flight mirror writes finish.
func (i *Indexer) Wait() { i.wg.Wait() }

// IndexEntry writes one entry using its content hash as document id, so
// re-delivery is idempotent.
func (i *Indexer) IndexEntry(ctx context.Context, e models.AuditEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: e.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.es)
	if err != nil {
		return fmt.Errorf("index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit entry: %s", res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.AuditEntry `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Trail returns the mirrored entries for a resource, oldest first.
func (i *Indexer) Trail(ctx context.Context, resourceID string, size int) ([]models.AuditEntry, error) {
	if size <= 0 || size > 500 {
		size = 100
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"resourceId": resourceID},
		},
		"sort": []interface{}{
			map[string]interface{}{"occurredAt": map[string]interface{}{"order": "asc"}},
		},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("encode audit query: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search audit trail: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search audit trail: %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode audit trail: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		entries = append(entries, hit.Source)
	}
	return entries, nil
}
