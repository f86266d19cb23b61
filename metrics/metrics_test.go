package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/engine-bridge/handle"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.Registry() == nil {
		t.Error("registry should not be nil")
	}
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.RecordLoad("")

	n, err := testutil.GatherAndCount(c.Registry(), "hwbridge_loader_loads_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	// Should not panic
	c.RecordLoad("version_mismatch")
	c.RecordSessionStart(nil)
	c.RecordSessionEnd()
	c.RecordCall("send_ipc", time.Millisecond, nil)
	c.RecordFrame(10, nil)
	c.RecordBarrier()
	c.RecordRateLimitWait(time.Millisecond)
	c.RecordPreview("success", time.Millisecond)
	c.RecordInbound("to-net")
	c.RecordInboundDropped()
	c.SetInboundQueueDepth(3)
	if c.Registry() != nil {
		t.Error("nil collector registry should be nil")
	}
	if c.HandleObserver() != nil {
		t.Error("nil collector observer should be nil")
	}
}

func TestCollector_Sessions(t *testing.T) {
	c := NewCollector("test")

	c.RecordSessionStart(nil)
	c.RecordSessionStart(nil)
	c.RecordSessionStart(errors.New("trap"))
	c.RecordSessionEnd()

	if got := testutil.ToFloat64(c.sessions); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sessionStarts.WithLabelValues("error")); got != 1 {
		t.Errorf("failed starts = %v, want 1", got)
	}
}

func TestCollector_Frames(t *testing.T) {
	c := NewCollector("test")

	c.RecordFrame(5, nil)
	c.RecordFrame(7, nil)
	c.RecordFrame(3, errors.New("rejected"))
	c.RecordBarrier()

	if got := testutil.ToFloat64(c.framesSent); got != 2 {
		t.Errorf("frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.frameBytes); got != 12 {
		t.Errorf("bytes = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.framesRejected); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.barriers); got != 1 {
		t.Errorf("barriers = %v, want 1", got)
	}
}

func TestCollector_Inbound(t *testing.T) {
	c := NewCollector("test")

	c.RecordInbound("to-net")
	c.RecordInbound("to-net")
	c.RecordInbound("game-finished")
	c.RecordInboundDropped()
	c.SetInboundQueueDepth(4)

	if got := testutil.ToFloat64(c.inbound.WithLabelValues("to-net")); got != 2 {
		t.Errorf("to-net = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.inboundDropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.inboundQueue); got != 4 {
		t.Errorf("queue = %v, want 4", got)
	}
}

func TestCollector_Calls(t *testing.T) {
	c := NewCollector("test")

	// Should not panic
	c.RecordCall("generate_preview", 20*time.Millisecond, nil)
	c.RecordCall("send_ipc", time.Microsecond, errors.New("rejected"))
	c.RecordPreview("timeout", time.Second)
	c.RecordRateLimitWait(5 * time.Millisecond)

	if got := testutil.ToFloat64(c.calls.WithLabelValues("send_ipc", "error")); got != 1 {
		t.Errorf("send_ipc errors = %v, want 1", got)
	}
}

func TestCollector_HandleObserver(t *testing.T) {
	c := NewCollector("test")
	table := handle.NewTable()
	table.Subscribe(c.HandleObserver())

	h, _ := table.Insert(1, nil)
	table.Insert(2, nil)
	if got := testutil.ToFloat64(c.instances); got != 2 {
		t.Errorf("instances = %v, want 2", got)
	}

	table.Remove(h)
	if got := testutil.ToFloat64(c.instances); got != 1 {
		t.Errorf("instances after remove = %v, want 1", got)
	}

	_ = table.Close()
	if got := testutil.ToFloat64(c.instances); got != 0 {
		t.Errorf("instances after close = %v, want 0", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.RecordFrame(3, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_ipc_frames_total 1") {
		t.Errorf("frames counter missing from:\n%s", rec.Body.String())
	}

	var nilCollector *Collector
	rec = httptest.NewRecorder()
	nilCollector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("nil collector status = %d", rec.Code)
	}
}
