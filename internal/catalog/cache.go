package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sql-agent-workers/internal/common/metrics"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Table and Schema describe one catalog entry in enumeration order.
type Table struct {
	Name    string
	Columns []string
}

type Schema struct {
	Name   string
	Tables []Table
}

// snapshot is immutable once published.
type snapshot struct {
	schemas []Schema
	index   map[string]map[string][]string
	tables  map[string]struct{}
}

func newSnapshot(schemas []Schema) *snapshot {
	s := &snapshot{
		schemas: schemas,
		index:   make(map[string]map[string][]string, len(schemas)),
		tables:  make(map[string]struct{}),
	}
	for _, sc := range schemas {
		cols := make(map[string][]string, len(sc.Tables))
		for _, t := range sc.Tables {
			cols[t.Name] = t.Columns
			s.tables[t.Name] = struct{}{}
		}
		s.index[sc.Name] = cols
	}
	return s
}

// Cache holds the schema to table to columns catalog. Reads are served from
// the current snapshot; Refresh swaps in a new one.
type Cache struct {
	source      Source
	logger      Logger
	parallelism int

	mu        sync.RWMutex
	snap      *snapshot
	refreshed time.Time
}

type Option func(*Cache)

// WithParallelism bounds how many schemas are introspected at once.
func WithParallelism(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// NewCache returns an empty cache bound to source. Call Refresh to populate it.
func NewCache(source Source, log Logger, opts ...Option) *Cache {
	c := &Cache{
		source:      source,
		logger:      log,
		parallelism: 4,
		snap:        newSnapshot(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewStaticCache builds a cache from a fixed listing. It has no source, so
// Refresh is a no-op.
func NewStaticCache(schemas ...Schema) *Cache {
	return &Cache{snap: newSnapshot(schemas), refreshed: time.Now()}
}

// Refresh reloads the whole catalog. On failure the previous snapshot is kept
// and the error wraps ErrCatalogAccessFailed.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	start := time.Now()

	schemas, err := c.load(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("schema catalog refresh failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return err
	}

	snap := newSnapshot(schemas)
	c.mu.Lock()
	c.snap = snap
	c.refreshed = time.Now()
	c.mu.Unlock()

	metrics.CatalogTables.Set(float64(len(snap.tables)))
	if c.logger != nil {
		c.logger.Info("schema catalog refreshed", map[string]interface{}{
			"schemaCount": len(schemas),
			"tableCount":  len(snap.tables),
			"durationMs":  time.Since(start).Milliseconds(),
		})
	}
	return nil
}

func (c *Cache) load(ctx context.Context) ([]Schema, error) {
	names, err := c.source.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Schema, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for i, name := range names {
		g.Go(func() error {
			tables, err := c.source.ListTables(gctx, name)
			if err != nil {
				return fmt.Errorf("list tables for %s: %w", name, err)
			}
			sc := Schema{Name: name, Tables: make([]Table, 0, len(tables))}
			for _, t := range tables {
				cols, err := c.source.ListColumns(gctx, name, t)
				if err != nil {
					return fmt.Errorf("list columns for %s.%s: %w", name, t, err)
				}
				sc.Tables = append(sc.Tables, Table{Name: t, Columns: cols})
			}
			out[i] = sc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Schemas returns schema names in catalog order.
func (c *Cache) Schemas() []string {
	snap := c.current()
	out := make([]string, len(snap.schemas))
	for i, s := range snap.schemas {
		out[i] = s.Name
	}
	return out
}

func (c *Cache) HasSchema(name string) bool {
	_, ok := c.current().index[name]
	return ok
}

// Tables returns the tables of schema in catalog order.
func (c *Cache) Tables(schema string) []string {
	for _, s := range c.current().schemas {
		if s.Name != schema {
			continue
		}
		out := make([]string, len(s.Tables))
		for i, t := range s.Tables {
			out[i] = t.Name
		}
		return out
	}
	return nil
}

// HasTable reports whether name is a table in any schema.
func (c *Cache) HasTable(name string) bool {
	_, ok := c.current().tables[name]
	return ok
}

func (c *Cache) Columns(schema, table string) ([]string, bool) {
	cols, ok := c.current().index[schema][table]
	if !ok {
		return nil, false
	}
	return append([]string(nil), cols...), true
}

// Dump returns a copy of the full catalog.
func (c *Cache) Dump() map[string]map[string][]string {
	snap := c.current()
	out := make(map[string]map[string][]string, len(snap.index))
	for schema, tables := range snap.index {
		t := make(map[string][]string, len(tables))
		for name, cols := range tables {
			t[name] = append([]string(nil), cols...)
		}
		out[schema] = t
	}
	return out
}

func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}
