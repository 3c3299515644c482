package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	t.Run("CommandsTotal", func(t *testing.T) {
		before := testutil.ToFloat64(CommandsTotal.WithLabelValues("test_verb"))
		CommandsTotal.WithLabelValues("test_verb").Inc()
		after := testutil.ToFloat64(CommandsTotal.WithLabelValues("test_verb"))
		if after != before+1 {
			t.Errorf("Expected counter to increment, got %v -> %v", before, after)
		}
	})

	t.Run("ModerationActions", func(t *testing.T) {
		before := testutil.ToFloat64(ModerationActions.WithLabelValues("test_action"))
		ModerationActions.WithLabelValues("test_action").Inc()
		after := testutil.ToFloat64(ModerationActions.WithLabelValues("test_action"))
		if after != before+1 {
			t.Errorf("Expected counter to increment, got %v -> %v", before, after)
		}
	})

	t.Run("CommandDuration", func(t *testing.T) {
		// histograms: no-panic observation is the registration check
		CommandDuration.WithLabelValues("test_verb").Observe(0.05)
	})
}

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)
	IncConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before+1 {
		t.Errorf("Expected gauge %v after inc, got %v", before+1, got)
	}
	DecConnection()
	if got := testutil.ToFloat64(ActiveConnections); got != before {
		t.Errorf("Expected gauge %v after dec, got %v", before, got)
	}
}

func TestSessionsByStateGauge(t *testing.T) {
	SessionsByState.WithLabelValues("guest").Inc()
	SessionsByState.WithLabelValues("guest").Dec()
	if got := testutil.ToFloat64(SessionsByState.WithLabelValues("test_state")); got != 0 {
		t.Errorf("Expected untouched state gauge to read 0, got %v", got)
	}
}
