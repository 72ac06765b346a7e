// Package telemetry exposes Prometheus metrics for the HTTP layer and for
// billing and registration events.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	billsCreated       prometheus.Counter
	paymentsRecorded   *prometheus.CounterVec
	paymentAmount      prometheus.Counter
	patientsRegistered prometheus.Counter
	patientsDischarged prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hms_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_bills_created_total",
			Help: "Bills created",
		}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hms_payments_recorded_total",
			Help: "Payments recorded against bills",
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_payment_amount_total",
			Help: "Sum of recorded payment amounts",
		}),
		patientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_patients_registered_total",
			Help: "Patients registered",
		}),
		patientsDischarged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_patients_discharged_total",
			Help: "Patients discharged",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.billsCreated,
		m.paymentsRecorded,
		m.paymentAmount,
		m.patientsRegistered,
		m.patientsDischarged,
	)
	return m
}

// Middleware records request count and latency keyed by route template, so
// /patients/:id is one series regardless of the id.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) BillCreated() { m.billsCreated.Inc() }

func (m *Metrics) PaymentRecorded(method string, amount decimal.Decimal) {
	m.paymentsRecorded.WithLabelValues(method).Inc()
	m.paymentAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) PatientRegistered() { m.patientsRegistered.Inc() }

func (m *Metrics) PatientDischarged() { m.patientsDischarged.Inc() }
