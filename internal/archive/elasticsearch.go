package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

const archiveIndexMapping = `{
  "mappings": {
    "properties": {
      "id":        {"type": "keyword"},
      "category":  {"type": "keyword"},
      "timestamp": {"type": "date"},
      "content":   {"type": "object", "enabled": false},
      "metadata":  {"type": "object", "enabled": false}
    }
  }
}`

// ElasticsearchStore indexes one document per entry.
type ElasticsearchStore struct {
	es         *elasticsearch.Client
	index      string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewElasticsearchStore(es *elasticsearch.Client, index string, ttl time.Duration, maxEntries int) *ElasticsearchStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ElasticsearchStore{es: es, index: index, ttl: ttl, maxEntries: maxEntries, now: time.Now}
}

// EnsureIndex creates the archive index; an existing index is not an error.
func (s *ElasticsearchStore) EnsureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Create(
		s.index,
		s.es.Indices.Create.WithBody(bytes.NewReader([]byte(archiveIndexMapping))),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: create index: %v", ErrArchiveWriteFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("%w: create index: %s", ErrArchiveWriteFailed, res.Status())
	}
	return nil
}

func (s *ElasticsearchStore) Append(ctx context.Context, category string, item interface{}, metadata map[string]interface{}) error {
	entry, err := newEntry(category, item, metadata, s.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(body),
		s.es.Index.WithDocumentID(entry.ID),
		s.es.Index.WithRefresh("true"),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: index status %s", ErrArchiveWriteFailed, res.Status())
	}
	return nil
}

func (s *ElasticsearchStore) Recent(ctx context.Context, category string, n int, filter Filter) ([]Entry, error) {
	size := s.maxEntries
	if filter == nil && n > 0 && n < size {
		size = n
	}

	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"category": category}},
	}
	if s.ttl > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"timestamp": map[string]interface{}{"gte": s.now().Add(-s.ttl).UTC().Format(time.RFC3339Nano)},
			},
		})
	}
	query := map[string]interface{}{
		"size":  size,
		"sort":  []interface{}{map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}}},
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filters}},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}

	res, err := s.es.Search(
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return []Entry{}, nil
	}
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%w: search status %s: %s", ErrArchiveReadFailed, res.Status(), msg)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source Entry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrArchiveReadFailed, err)
	}

	entries := make([]Entry, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		entries = append(entries, h.Source)
	}
	return selectRecent(entries, s.now(), s.ttl, n, filter), nil
}

func (s *ElasticsearchStore) Clear(ctx context.Context, category string) error {
	query := `{"query":{"match_all":{}}}`
	if category != "" {
		q, err := json.Marshal(map[string]interface{}{
			"query": map[string]interface{}{"term": map[string]interface{}{"category": category}},
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
		}
		query = string(q)
	}

	res, err := s.es.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader([]byte(query)),
		s.es.DeleteByQuery.WithRefresh(true),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: delete status %s", ErrArchiveWriteFailed, res.Status())
	}
	return nil
}
