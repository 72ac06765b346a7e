package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, id := range []string{"a", "b", "c"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/patients/:id", "200"))
	assert.Equal(t, 3.0, got)
}

func TestBusinessCounters(t *testing.T) {
	m := New()
	m.BillCreated()
	m.BillCreated()
	m.PaymentRecorded("cash", decimal.RequireFromString("700.00"))
	m.PaymentRecorded("upi", decimal.RequireFromString("50.50"))
	m.PatientRegistered()
	m.PatientDischarged()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.billsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsRecorded.WithLabelValues("cash")))
	assert.Equal(t, 750.5, testutil.ToFloat64(m.paymentAmount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.patientsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.patientsDischarged))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.BillCreated()

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hms_bills_created_total 1")
}
