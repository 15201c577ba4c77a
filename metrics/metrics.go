package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "ptf"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of test runs",
	}, []string{
		"program",
		"result",
	})

	runExitCode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_exit_code",
		Help:      "Exit code of the last test run",
	}, []string{
		"program",
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of test runs",
	}, []string{
		"program",
		"run_id",
	})

	phaseDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "phase_duration_seconds",
		Help:      "Duration of individual run phases",
	}, []string{
		"program",
		"run_id",
		"phase",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRun emits the final result of a test run.
func RecordRun(program, runID string, code int, reason string, duration time.Duration) {
	result := "pass"
	if code != 0 {
		result = "fail"
		if reason != "" {
			result = reason
		}
	}
	if Debug {
		log.Debug("metric record",
			"m", "runs_total",
			"program", program,
			"run_id", runID,
			"code", code,
			"result", result)
	}
	runsTotal.WithLabelValues(program, result).Inc()
	runExitCode.WithLabelValues(program, runID).Set(float64(code))
	runDuration.WithLabelValues(program, runID).Set(duration.Seconds())
}

// RecordPhase emits the duration of one lifecycle phase.
func RecordPhase(program, runID, phase string, duration time.Duration) {
	phaseDuration.WithLabelValues(program, runID, phase).Set(duration.Seconds())
}
