package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RecordsRead("song_data", 71)
	m.RecordsRead("song_data", 1)
	m.TableWritten("dim_songs", 72, 70, 4096)
	m.ObserveStage("song_data", 2*time.Second, nil)
	m.ObserveStage("log_data", time.Second, errors.New("boom"))
	m.MarkSuccess(time.Unix(1700000000, 0))

	assert.Equal(t, 72.0, testutil.ToFloat64(m.recordsRead.WithLabelValues("song_data")))
	assert.Equal(t, 72.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("dim_songs")))
	assert.Equal(t, 70.0, testutil.ToFloat64(m.filesWritten.WithLabelValues("dim_songs")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.bytesWritten.WithLabelValues("dim_songs")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestPusher_PushesRegistry(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := New()
	m.RecordsRead("log_data", 8056)

	pusher := NewPusher(server.URL, "songplays_etl", map[string]string{"run_id": "abc", "": "skipped"})
	require.NoError(t, pusher.Push(context.Background(), m.Registry()))

	assert.Equal(t, "/metrics/job/songplays_etl/run_id/abc", gotPath)
	assert.Contains(t, gotBody, "etl_records_read_total")
}

func TestPusher_RequiresEndpointAndJob(t *testing.T) {
	m := New()
	assert.Error(t, NewPusher("", "job", nil).Push(context.Background(), m.Registry()))
	assert.Error(t, NewPusher("http://localhost:9091", " ", nil).Push(context.Background(), m.Registry()))

	var nilPusher *Pusher
	assert.NoError(t, nilPusher.Push(context.Background(), m.Registry()))
}
