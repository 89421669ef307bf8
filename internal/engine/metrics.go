package engine

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/conductor/internal/engine"

var (
	runCounter          metric.Int64Counter
	runDuration         metric.Float64Histogram
	stepAttemptCounter  metric.Int64Counter
	stepRetryCounter    metric.Int64Counter
	reviewCycleCounter  metric.Int64Counter
	reviewRejectCounter metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metrics for the engine. Instruments
// are no-ops unless an SDK meter provider is installed.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	runCounter, err = meter.Int64Counter(
		"conductor.engine.runs",
		metric.WithDescription("Total workflow runs by terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create run counter: %v", err))
	}

	runDuration, err = meter.Float64Histogram(
		"conductor.engine.run.duration",
		metric.WithDescription("Duration of workflow runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create run duration: %v", err))
	}

	stepAttemptCounter, err = meter.Int64Counter(
		"conductor.engine.step.attempts",
		metric.WithDescription("Total step attempts by status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step attempt counter: %v", err))
	}

	stepRetryCounter, err = meter.Int64Counter(
		"conductor.engine.step.retries",
		metric.WithDescription("Step re-attempts after transient failures"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step retry counter: %v", err))
	}

	reviewCycleCounter, err = meter.Int64Counter(
		"conductor.engine.review.cycles",
		metric.WithDescription("Review remediation cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create review cycle counter: %v", err))
	}

	reviewRejectCounter, err = meter.Int64Counter(
		"conductor.engine.review.rejections",
		metric.WithDescription("Review gate rejections"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create review rejection counter: %v", err))
	}
}

func init() {
	initMetrics()
}

func statusAttr(status RunStatus) attribute.KeyValue {
	return attribute.String("status", string(status))
}

func stepStatusAttr(status StepStatus) attribute.KeyValue {
	return attribute.String("status", string(status))
}
