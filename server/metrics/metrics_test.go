package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats struct {
	sessions int
	loading  int
}

func (f fixedStats) Count() int          { return f.sessions }
func (f fixedStats) LoadingWidgets() int { return f.loading }

func TestCollectorReportsSessions(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, Register(fixedStats{sessions: 3, loading: 2}, registry))

	families, err := registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, values["vizboard_active_sessions"])
	assert.Equal(t, 2.0, values["vizboard_loading_widgets"])

	assert.Error(t, Register(fixedStats{}, registry), "registering twice fails")
}
