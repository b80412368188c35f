package monitoring

import (
	"testing"

	"github.com/cs-au-dk/jstar/analysis/cfg"
)

func TestMonitorDedup(t *testing.T) {
	m := NewMonitor()
	n := cfg.NewSyntheticNode("site")
	m.Report(n, HIGH, "problem %d", 1)
	m.Report(n, HIGH, "problem %d", 1)
	m.Report(n, HIGH, "problem %d", 2)

	if got := len(m.Messages()); got != 2 {
		t.Errorf("monitor kept %d messages, want 2", got)
	}
}

func TestMonitorStatistics(t *testing.T) {
	m := NewMonitor()
	if got := m.Statistics(); got != (Statistics{}) {
		t.Errorf("fresh monitor has statistics %+v", got)
	}
	stats := Statistics{Steps: 12, Locations: 5, CallEdges: 2, EvalCacheHits: 1}
	m.RecordStatistics(stats)
	if got := m.Statistics(); got != stats {
		t.Errorf("statistics = %+v, want %+v", got, stats)
	}
}

func TestMonitorOrdering(t *testing.T) {
	m := NewMonitor()
	n := cfg.NewSyntheticNode("site")
	m.Report(n, LOW, "low")
	m.Report(n, HIGH, "high")
	m.Report(n, MEDIUM, "medium")

	msgs := m.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Severity != HIGH || msgs[1].Severity != MEDIUM || msgs[2].Severity != LOW {
		t.Errorf("messages not ordered by severity: %v", msgs)
	}
}
