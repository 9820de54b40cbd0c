package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountAndExport(t *testing.T) {
	m := NewMetrics()
	m.ObserveIngest("ingested")
	m.ObserveIngest("ingested")
	m.ObserveIngest("rejected")
	m.ObserveBuild("success", 2*time.Second)
	m.ObserveBuild("", time.Second)
	m.SetQueueLength(7)

	if got := promtest.ToFloat64(m.ingest.WithLabelValues("ingested")); got != 2 {
		t.Fatalf("ingested: want=2 got=%v", got)
	}
	if got := promtest.ToFloat64(m.builds.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unlabeled build: want=1 got=%v", got)
	}
	if got := promtest.ToFloat64(m.queueLength); got != 7 {
		t.Fatalf("queue length: want=7 got=%v", got)
	}

	path := filepath.Join(t.TempDir(), "sub", "dbprocessing.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `dbprocessing_ingest_total{result="rejected"} 1`) {
		t.Fatalf("textfile missing ingest counter:\n%s", raw)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIngest("ingested")
	m.ObserveBuild("failure", time.Second)
	m.SetQueueLength(1)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil WriteTextfile: %v", err)
	}
}
