package model

import "fmt"

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Analysis is the document written to the metrics collection, one per Metric
// Record. Every field is derived from the triggering storage object, so
// reprocessing the same object under at-least-once delivery writes a
// value-equivalent document.
type Analysis struct {
	Metrics        *ComputedMetrics `json:"metrics" firestore:"metrics"`
	InputFile      string           `json:"input_file" firestore:"input_file"`
	PageURL        string           `json:"page_url" firestore:"page_url"`
	FetchTimestamp string           `json:"fetch_timestamp" firestore:"fetch_timestamp"`
	Status         string           `json:"status" firestore:"status"`
}

// NewAnalysis builds the analysis document for one Metric Record. The page
// fails when its first meaningful paint exceeds maxPaintMillis.
func NewAnalysis(bucket, object, pageURL, fetchTimestamp string, metrics *ComputedMetrics, maxPaintMillis int64) *Analysis {
	status := StatusPass
	if metrics.FirstMeaningfulPaint > maxPaintMillis {
		status = StatusFail
	}

	return &Analysis{
		Metrics:        metrics,
		InputFile:      GSURL(bucket, object),
		PageURL:        pageURL,
		FetchTimestamp: fetchTimestamp,
		Status:         status,
	}
}

func (a *Analysis) Violation() bool {
	return a.Status == StatusFail
}

// GSURL returns the gs:// URL of an object.
func GSURL(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}
