package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests   *prometheus.CounterVec
	LatencyMS  *prometheus.HistogramVec
	BotUpdates *prometheus.CounterVec
	Orders     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New регистрирует коллекторы в reg. Для тестов передаётся свежий prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		BotUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "bot_updates_total",
			Help:      "Telegram updates processed, by kind.",
		}, []string{"kind"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "orders_total",
			Help:      "Order lifecycle transitions, by resulting status.",
		}, []string{"status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.BotUpdates, m.Orders)
	return m
}

// Nop - метрики, которые никуда не экспортируются
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) Order(status string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(status).Inc()
}

func (m *Metrics) BotUpdate(kind string) {
	if m == nil {
		return
	}
	m.BotUpdates.WithLabelValues(kind).Inc()
}

// Middleware считает запросы по шаблону маршрута
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
