package observability

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGateDecisions(t *testing.T) {
	c := GateDecisions.WithLabelValues("forbidden", "user_management")
	before := testutil.ToFloat64(c)

	c.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestSessionValidations(t *testing.T) {
	for _, status := range []string{"valid", "expired", "none", "error"} {
		t.Run(status, func(t *testing.T) {
			c := SessionValidations.WithLabelValues(status)
			before := testutil.ToFloat64(c)
			c.Inc()
			assert.Equal(t, before+1, testutil.ToFloat64(c))
		})
	}
}

func TestCSRFFailures(t *testing.T) {
	before := testutil.ToFloat64(CSRFFailures)
	CSRFFailures.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CSRFFailures))
}

func TestSessionLookupDuration(t *testing.T) {
	assert.NotPanics(t, func() {
		SessionLookupDuration.Observe(0.002)
	})
}

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 7, InUse: 3, Idle: 4})

	assert.Equal(t, float64(7), testutil.ToFloat64(DBConnectionsOpen))
	assert.Equal(t, float64(3), testutil.ToFloat64(DBConnectionsInUse))
	assert.Equal(t, float64(4), testutil.ToFloat64(DBConnectionsIdle))
}

func TestHTTPMetrics(t *testing.T) {
	c := HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/auth/login", "401")
	before := testutil.ToFloat64(c)
	c.Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/v1/auth/login", "401").Observe(0.05)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
