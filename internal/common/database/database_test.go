package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/common/config"
)

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := OpenRedis(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), config.RedisConfig{Address: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func newFakeCluster(t *testing.T, status int) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"version":{"number":"8.11.0"},"tagline":"You Know, for Search"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenElasticsearch(t *testing.T) {
	server := newFakeCluster(t, http.StatusOK)

	es, err := OpenElasticsearch(context.Background(), config.ElasticsearchConfig{URL: server.URL})
	require.NoError(t, err)
	assert.NotNil(t, es)
}

func TestOpenElasticsearch_ErrorStatus(t *testing.T) {
	server := newFakeCluster(t, http.StatusUnauthorized)

	_, err := OpenElasticsearch(context.Background(), config.ElasticsearchConfig{Addresses: []string{server.URL}})
	assert.Error(t, err)
}

func TestOpenElasticsearch_NoAddresses(t *testing.T) {
	_, err := OpenElasticsearch(context.Background(), config.ElasticsearchConfig{})
	assert.Error(t, err)
}

func TestOpenPostgres_DefersDial(t *testing.T) {
	db, err := OpenPostgres(config.PostgresConfig{Host: "127.0.0.1", Port: 1, Database: "x", User: "u", SSLMode: "disable", MaxConnections: 4})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}
