package model

import (
	"encoding/json"
	"fmt"
)

// Metric is a single counter from the browser's Performance domain, e.g.
// NavigationStart or JSHeapUsedSize. Timing counters are reported in seconds
// since an arbitrary epoch, sizes in bytes.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MetricsPayload is the Metric Record as persisted to the metrics bucket:
// the raw Performance.getMetrics snapshot of one page load.
type MetricsPayload struct {
	Metrics []Metric `json:"metrics"`
}

func (p *MetricsPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ComputedMetrics is the derived view of a Metric Record. Event times are
// milliseconds relative to NavigationStart, heap sizes are carried through
// as-is.
type ComputedMetrics struct {
	DomContentLoaded     int64   `json:"DomContentLoaded" firestore:"DomContentLoaded"`
	FirstMeaningfulPaint int64   `json:"FirstMeaningfulPaint" firestore:"FirstMeaningfulPaint"`
	JSHeapTotalSize      float64 `json:"JSHeapTotalSize" firestore:"JSHeapTotalSize"`
	JSHeapUsedSize       float64 `json:"JSHeapUsedSize" firestore:"JSHeapUsedSize"`
}

// ParseMetrics decodes a stored Metric Record and computes the derived
// metrics. A record missing any of the required counters is an error, never
// a zero-filled result: a degenerate analysis must not be persisted.
func ParseMetrics(data []byte) (*ComputedMetrics, error) {
	var payload MetricsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid metric record: %w", err)
	}

	kv := make(map[string]float64, len(payload.Metrics))
	for _, m := range payload.Metrics {
		kv[m.Name] = m.Value
	}

	domContentLoaded, err := calcEventTime(kv, "DomContentLoaded")
	if err != nil {
		return nil, err
	}

	firstMeaningfulPaint, err := calcEventTime(kv, "FirstMeaningfulPaint")
	if err != nil {
		return nil, err
	}

	heapTotal, ok := kv["JSHeapTotalSize"]
	if !ok {
		return nil, fmt.Errorf("metric record missing counter JSHeapTotalSize")
	}

	heapUsed, ok := kv["JSHeapUsedSize"]
	if !ok {
		return nil, fmt.Errorf("metric record missing counter JSHeapUsedSize")
	}

	return &ComputedMetrics{
		DomContentLoaded:     domContentLoaded,
		FirstMeaningfulPaint: firstMeaningfulPaint,
		JSHeapTotalSize:      heapTotal,
		JSHeapUsedSize:       heapUsed,
	}, nil
}

// calcEventTime converts an absolute event timestamp (seconds) to
// milliseconds elapsed since NavigationStart.
func calcEventTime(kv map[string]float64, name string) (int64, error) {
	start, ok := kv["NavigationStart"]
	if !ok {
		return 0, fmt.Errorf("metric record missing counter NavigationStart")
	}

	v, ok := kv[name]
	if !ok {
		return 0, fmt.Errorf("metric record missing counter %s", name)
	}

	return int64((v - start) * 1000), nil
}
