package config

import (
	"iter"
	"slices"
)

// anomaly records a single rejected field value together with the
// fallback it was replaced by.
type anomaly struct {
	field    string
	reason   string
	actual   any
	fallback any
}

// AnomalyCollector gathers the anomalies found while validating a stage
// configuration. A stage keeps running on fallback values instead of
// refusing to start, the collected anomalies are surfaced as warnings.
type AnomalyCollector struct {
	anomalies []anomaly
}

func newAnomalyCollector() *AnomalyCollector {
	return &AnomalyCollector{}
}

func (ac *AnomalyCollector) add(field, reason string, actual, fallback any) {
	ac.anomalies = append(ac.anomalies, anomaly{
		field:    field,
		reason:   reason,
		actual:   actual,
		fallback: fallback,
	})
}

func (ac *AnomalyCollector) iter() iter.Seq[anomaly] {
	return slices.Values(ac.anomalies)
}
