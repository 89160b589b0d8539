package corvus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricCommands = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "corvus_smtpclient_command_duration_seconds",
		Help:    "SMTP client command duration and reply codes in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30, 60, 120},
	},
	[]string{
		"cmd",
		"code",
	},
)

func observeCommand(cmd string, code int, start time.Time) {
	metricCommands.WithLabelValues(cmd, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
}
