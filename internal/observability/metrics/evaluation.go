package metrics

import (
	"strconv"
	"time"

	"Dexter-Chain/internal/validation"
)

var (
	findings = newCounterVec("dexter_findings_total",
		"Validation findings produced by rules and subagents.", "category", "severity", "passed")
	transactions = newCounterVec("dexter_transactions_evaluated_total",
		"Evaluated transactions by validity.", "valid")
	optimizationRounds = newHistogramVec("dexter_optimization_rounds",
		"Optimization rounds needed per refinement run.", []float64{0, 1, 2, 3, 5}, "valid")
	jobs = newCounterVec("dexter_jobs_total",
		"Evaluation job transitions by stage.", "stage")
)

// ObserveFindings counts every finding of a batch by category, severity and
// outcome, plus evaluated transactions by validity.
func ObserveFindings(batch validation.BatchResult) {
	for _, tr := range batch.TransactionResults {
		transactions.inc(strconv.FormatBool(tr.Valid))
		for _, r := range tr.Results {
			findings.inc(string(r.Category), string(r.Severity), strconv.FormatBool(r.Passed))
		}
	}
}

// ObserveOptimization records how many rounds a refinement run took.
func ObserveOptimization(iterations int, valid bool) {
	optimizationRounds.observe(float64(iterations), strconv.FormatBool(valid))
}

// ObserveJob counts job lifecycle transitions such as succeeded, retry or terminal.
func ObserveJob(stage string) {
	jobs.inc(stage)
}

var queueWait = newHistogramVec("dexter_queue_wait_seconds",
	"Time a job spent in the queue before a worker picked it up.", []float64{0.01, 0.1, 0.5, 1, 5, 30, 120}, "driver")

// ObserveQueueWait records how long a job waited in the named queue driver.
func ObserveQueueWait(driver string, wait time.Duration) {
	queueWait.observe(wait.Seconds(), driver)
}
