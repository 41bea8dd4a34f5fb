// Package archive is the append-only context store the pipeline writes its
// selections, results and discrepancies to, and reads prior queries from.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Categories written by the pipeline.
const (
	CategoryUserQueries      = "user_queries"
	CategorySchemaSelections = "schema_selections"
	CategoryExecutedQueries  = "executed_queries"
	CategoryQueryContexts    = "query_contexts"
	CategoryDiscrepancies    = "discrepancies"
)

var (
	ErrArchiveWriteFailed = errors.New("ARCHIVE_WRITE_FAILED")
	ErrArchiveReadFailed  = errors.New("ARCHIVE_READ_FAILED")
)

// Entry is one archived item. Content holds the JSON encoding of the item.
type Entry struct {
	ID        string                 `json:"id"`
	Category  string                 `json:"category"`
	Timestamp time.Time              `json:"timestamp"`
	Content   json.RawMessage        `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Decode unmarshals the entry content into v.
func (e Entry) Decode(v interface{}) error {
	return json.Unmarshal(e.Content, v)
}

// Filter selects entries in Recent. A nil Filter accepts everything.
type Filter func(Entry) bool

type Appender interface {
	Append(ctx context.Context, category string, item interface{}, metadata map[string]interface{}) error
}

// Store is implemented by every archive backend. Recent returns entries
// newest first, skipping those older than the store's freshness window.
// n <= 0 means no limit.
type Store interface {
	Appender
	Recent(ctx context.Context, category string, n int, filter Filter) ([]Entry, error)
	// Clear removes one category, or every category when category is empty.
	Clear(ctx context.Context, category string) error
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func newEntry(category string, item interface{}, metadata map[string]interface{}, now time.Time) (Entry, error) {
	content, err := json.Marshal(item)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: encode %s item: %v", ErrArchiveWriteFailed, category, err)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return Entry{
		ID:        uuid.NewString(),
		Category:  category,
		Timestamp: now.UTC(),
		Content:   content,
		Metadata:  metadata,
	}, nil
}

// selectRecent applies the freshness window, the filter, newest-first
// ordering and the limit to entries. Entries must arrive newest first so
// that equal timestamps keep their write order.
func selectRecent(entries []Entry, now time.Time, ttl time.Duration, n int, filter Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if ttl > 0 && now.Sub(e.Timestamp) > ttl {
			continue
		}
		if filter != nil && !filter(e) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
