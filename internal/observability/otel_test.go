package observability

import (
	"context"
	"testing"

	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"": 1, "0.25": 0.25, "-3": 0, "9": 1, "junk": 1}
	for in, want := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", in)
		if got := sampleRatio(); got != want {
			t.Fatalf("ratio(%q): want=%v got=%v", in, want, got)
		}
	}
}

func TestOTLPHeaders(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "a=1, b = 2 ,bad,=x,c=")
	got := otlpHeaders()
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("headers: got=%v", got)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitTracing(context.Background(), logger.NewNop(), TraceConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
