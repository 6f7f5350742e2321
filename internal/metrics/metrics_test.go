package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/event"
)

func TestRecord_FromBus(t *testing.T) {
	m := New()
	bus := event.NewBus(nil)
	m.Attach(bus)

	bus.Publish(event.NewStateChangedEvent("starting", "running"))
	bus.Publish(event.NewAgentLaunchedEvent("testing0", 10))
	bus.Publish(event.NewAgentLaunchedEvent("testing1", 11))
	bus.Publish(event.NewMessagesDrainedEvent("testing0", 3, 2))
	bus.Publish(event.NewMessagesDrainedEvent("testing0", 2, 6))
	bus.Publish(event.NewSequenceAnomalyEvent("testing0", 5, 6))
	bus.Publish(event.NewDrainFailedEvent("testing1", errors.ErrCorrupted))
	bus.Publish(event.NewSnapshotEvent("run", "running", []event.AgentSnapshot{{Agent: "testing0", Dropped: 4}}))
	bus.Publish(event.NewAgentExitedEvent("testing1", 11, errors.ErrAgentExited))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("testing0")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Count.WithLabelValues("testing0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("testing0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DrainFailures.WithLabelValues("testing1")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Dropped.WithLabelValues("testing0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentExits.WithLabelValues("testing1", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues("starting")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Record(event.NewMessagesDrainedEvent("testing0", 1, 0))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `fanout_messages_received_total{agent="testing0"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr, nil) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.Contains(body, "process_"), "process collector registered")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
