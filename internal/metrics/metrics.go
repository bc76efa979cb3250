// Package metrics holds the Prometheus collectors exported by the battctl
// daemon. Collectors are registered on a package registry rather than the
// global default one so tests and one-shot CLI commands stay isolated.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the registry every battctl collector is registered on.
	Registry = prometheus.NewRegistry()

	// HelperCommandsTotal counts privileged helper invocations by command
	// keyword and resulting status name.
	HelperCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battctl_helper_commands_total",
			Help: "Total number of privileged helper invocations.",
		},
		[]string{"command", "status"},
	)

	// HelperCommandLatency records how long helper invocations take.
	HelperCommandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "battctl_helper_command_latency_seconds",
			Help:    "Latency of privileged helper invocations.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"command"},
	)

	// ThresholdOutcomesTotal counts threshold-applied outcomes per device.
	ThresholdOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battctl_threshold_outcomes_total",
			Help: "Total number of threshold-applied outcomes.",
		},
		[]string{"device", "outcome"},
	)

	// EndThreshold is the last verified end threshold per battery.
	EndThreshold = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "battctl_end_threshold_percent",
			Help: "Last verified charge end threshold.",
		},
		[]string{"device", "battery"},
	)

	// StartThreshold is the last verified start threshold per battery.
	StartThreshold = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "battctl_start_threshold_percent",
			Help: "Last verified charge start threshold.",
		},
		[]string{"device", "battery"},
	)

	// BatteryLevel is the battery percentage observed for force discharge.
	BatteryLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "battctl_battery_level_percent",
			Help: "Battery level reported by the power daemon.",
		},
	)

	// InstallationStatus is 1 for the current helper installation status
	// label and 0 for the others.
	InstallationStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "battctl_installation_status",
			Help: "Privileged helper installation status (1 = current).",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		HelperCommandsTotal,
		HelperCommandLatency,
		ThresholdOutcomesTotal,
		EndThreshold,
		StartThreshold,
		BatteryLevel,
		InstallationStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// SetInstallationStatus marks status as current among the known labels.
func SetInstallationStatus(status string, known []string) {
	for _, s := range known {
		v := 0.0
		if s == status {
			v = 1
		}
		InstallationStatus.WithLabelValues(s).Set(v)
	}
}

// Handler serves the battctl registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
