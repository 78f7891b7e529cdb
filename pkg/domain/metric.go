package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// MetricValue is the directional score of one execution attempt.
//
// It is a tagged variant: either an ordinary value with a polarity
// (Maximize) or the Worst sentinel, which represents "no usable result".
// The zero value is an ordinary metric with an absent value.
type MetricValue struct {
	value    *float64
	maximize bool
	worst    bool
}

// NewMetric creates an ordinary metric.
func NewMetric(value float64, maximize bool) MetricValue {
	v := value
	return MetricValue{value: &v, maximize: maximize}
}

// AbsentMetric creates an ordinary metric without a value.
func AbsentMetric(maximize bool) MetricValue {
	return MetricValue{maximize: maximize}
}

// WorstMetric returns the sentinel that loses every comparison against a
// usable metric.
func WorstMetric() MetricValue {
	return MetricValue{worst: true}
}

// Value returns the numeric value and whether it is present.
func (m MetricValue) Value() (float64, bool) {
	if m.worst || m.value == nil {
		return 0, false
	}
	return *m.value, true
}

// Maximize reports the polarity of the metric. Worst metrics have none.
func (m MetricValue) Maximize() bool { return m.maximize }

// IsWorst reports whether m is the Worst sentinel.
func (m MetricValue) IsWorst() bool { return m.worst }

// tier ranks metrics that cannot be compared numerically:
// Worst (0) < absent (1) < usable (2).
func (m MetricValue) tier() int {
	switch {
	case m.worst:
		return 0
	case m.value == nil || math.IsNaN(*m.value):
		return 1
	}
	return 2
}

// Compare orders a against b under a's polarity.
// It returns +1 if a is better, -1 if b is better and 0 on a tie.
// Worst loses to everything else and ties only with Worst; absent values
// lose to usable ones and are never compared numerically.
func Compare(a, b MetricValue) int {
	ta, tb := a.tier(), b.tier()
	if ta != tb {
		if ta > tb {
			return 1
		}
		return -1
	}
	if ta < 2 {
		return 0
	}

	x, y := *a.value, *b.value
	if x == y {
		return 0
	}
	if a.maximize == (x > y) {
		return 1
	}
	return -1
}

// Better reports whether m is strictly better than other.
func (m MetricValue) Better(other MetricValue) bool {
	return Compare(m, other) > 0
}

func (m MetricValue) String() string {
	if m.worst {
		return "Metric(worst)"
	}
	dir := "↓"
	if m.maximize {
		dir = "↑"
	}
	if m.value == nil {
		return fmt.Sprintf("Metric%s(none)", dir)
	}
	return fmt.Sprintf("Metric%s(%.4f)", dir, *m.value)
}

type metricJSON struct {
	Value    *float64 `json:"value"`
	Maximize bool     `json:"maximize"`
	Worst    bool     `json:"worst,omitempty"`
}

// MarshalJSON encodes the metric as {"value":…, "maximize":…, "worst":…}.
func (m MetricValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricJSON{Value: m.value, Maximize: m.maximize, Worst: m.worst})
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (m *MetricValue) UnmarshalJSON(data []byte) error {
	var raw metricJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Worst {
		*m = WorstMetric()
		return nil
	}
	*m = MetricValue{value: raw.Value, maximize: raw.Maximize}
	return nil
}
