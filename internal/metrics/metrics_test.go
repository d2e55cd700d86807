package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventReceived(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.EventReceived("0", "MESSAGE_CREATE", 120)
	m.EventReceived("0", "MESSAGE_CREATE", 80)
	m.EventReceived("1", "GUILD_CREATE", 4000)

	expected := `
		# HELP discord_events_total Total dispatch events received, by shard and dispatch type
		# TYPE discord_events_total counter
		discord_events_total{shard="0",type="MESSAGE_CREATE"} 2
		discord_events_total{shard="1",type="GUILD_CREATE"} 1
	`
	if err := testutil.CollectAndCompare(m.EventsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected events_total: %v", err)
	}

	if got := testutil.ToFloat64(m.EventBytesTotal.WithLabelValues("0")); got != 200 {
		t.Errorf("event bytes for shard 0 = %v, want 200", got)
	}
}

func TestShardObserved(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ShardObserved("3", 5, 0.042)

	if got := testutil.ToFloat64(m.ShardStatus.WithLabelValues("3")); got != 5 {
		t.Errorf("shard status = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.ShardLatency.WithLabelValues("3")); got != 0.042 {
		t.Errorf("shard latency = %v, want 0.042", got)
	}

	// A zero latency means no heartbeat has been acknowledged yet; the
	// previous sample must survive.
	m.ShardObserved("3", 1, 0)
	if got := testutil.ToFloat64(m.ShardLatency.WithLabelValues("3")); got != 0.042 {
		t.Errorf("shard latency after zero sample = %v, want 0.042", got)
	}
}

func TestLifecycleCounters(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.Disconnected("0")
	m.Disconnected("0")
	m.IdentifyStarted("0")
	m.ResumeStarted("0")

	if got := testutil.ToFloat64(m.DisconnectsTotal.WithLabelValues("0")); got != 2 {
		t.Errorf("disconnects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IdentifiesTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("identifies = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ResumesTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("resumes = %v, want 1", got)
	}
}

func TestFanoutObserved(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.FanoutObserved(150, 3)

	if got := testutil.ToFloat64(m.FanoutPublished); got != 150 {
		t.Errorf("fanout published = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.FanoutDropped); got != 3 {
		t.Errorf("fanout dropped = %v, want 3", got)
	}
}
