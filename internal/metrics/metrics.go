package metrics

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// PublishesTotal counts broker publishes by outcome ("ok" / "error").
	PublishesTotal *prometheus.CounterVec

	// MessagesExcludedTotal counts messages stopped by the exclusion engine.
	MessagesExcludedTotal prometheus.Counter

	// StoreTasksDroppedTotal counts async store tasks dropped because the
	// worker queue was saturated.
	StoreTasksDroppedTotal prometheus.Counter

	// StoreFailuresTotal counts failed blob writes on the async store path.
	StoreFailuresTotal prometheus.Counter

	// TransformationsTotal counts transformation attempts by terminal status.
	TransformationsTotal *prometheus.CounterVec

	// TransformRetriesTotal counts scheduled transformation retries.
	TransformRetriesTotal prometheus.Counter

	// DeadLetteredTotal counts messages published to the dead-letter destination.
	DeadLetteredTotal prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable
// expansion. Returns nil for an empty string.
func ParseLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initOnce sync.Once

// Init registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers.
func Init(constLabels prometheus.Labels) {
	initOnce.Do(func() {
		initInner(constLabels)
	})
}

func initInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	PublishesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_publishes_total",
			Help: "Broker publishes by outcome",
		},
		[]string{"outcome"},
	)

	MessagesExcludedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "bridge_messages_excluded_total",
		Help: "Messages stopped by the exclusion engine",
	})

	StoreTasksDroppedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "bridge_store_tasks_dropped_total",
		Help: "Async store tasks dropped due to a saturated worker queue",
	})

	StoreFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "bridge_store_failures_total",
		Help: "Failed blob writes on the async store path",
	})

	TransformationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transformations_total",
			Help: "Transformation attempts by terminal status",
		},
		[]string{"status"},
	)

	TransformRetriesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "bridge_transform_retries_total",
		Help: "Scheduled transformation retries",
	})

	DeadLetteredTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "bridge_dead_lettered_total",
		Help: "Messages published to the dead-letter destination",
	})
}

// Inc increments a counter when metrics are initialized; tests that never
// call Init can still exercise the instrumented code paths.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncLabel increments one label of a counter vec when metrics are initialized.
func IncLabel(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// Middleware records HTTP request metrics for Prometheus.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
