package metrics

import (
	"strings"
	"testing"
	"time"

	"bank-node/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.Metrics = (*Prometheus)(nil)
	_ ports.Metrics = Nop{}
)

func TestPrometheus_Register(t *testing.T) {
	m := NewPrometheus()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	// A second registration of the same collectors must fail.
	assert.Error(t, m.Register(reg))
}

func TestPrometheus_Sessions(t *testing.T) {
	m := NewPrometheus()
	require.NoError(t, m.Register(prometheus.NewRegistry()))

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sessionsTotal))
}

func TestPrometheus_CommandHandled(t *testing.T) {
	m := NewPrometheus()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.CommandHandled("AD", "ok", 2*time.Millisecond)
	m.CommandHandled("AD", "ok", 3*time.Millisecond)
	m.CommandHandled("AW", "client_error", time.Millisecond)
	m.CommandHandled("", "client_error", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.commandCounter.WithLabelValues("AD", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commandCounter.WithLabelValues("AW", "client_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commandCounter.WithLabelValues("unknown", "client_error")))

	expected := `
# HELP bank_commands_total number of protocol commands handled
# TYPE bank_commands_total counter
bank_commands_total{command="AD",outcome="ok"} 2
bank_commands_total{command="AW",outcome="client_error"} 1
bank_commands_total{command="unknown",outcome="client_error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bank_commands_total"))
	assert.Equal(t, 3, testutil.CollectAndCount(m.commandDuration))
}

func TestNop(t *testing.T) {
	var m Nop
	m.SessionOpened()
	m.SessionClosed()
	m.CommandHandled("AB", "ok", time.Millisecond)
}
