package config

import (
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

// Validator is an utility struct for validating a configuration.
type Validator struct {
	tel *telemetry.Telemetry

	anomalyCollector *AnomalyCollector
}

// NewValidator returns a new validator.
func NewValidator(tel *telemetry.Telemetry) *Validator {
	return &Validator{
		tel: tel,

		anomalyCollector: newAnomalyCollector(),
	}
}

// Validate validates the given configuration.
func (v *Validator) Validate(config Config) {
	config.Validate(v.anomalyCollector)

	for anomaly := range v.anomalyCollector.iter() {
		v.handleAnomaly(anomaly)
	}
}

func (v *Validator) handleAnomaly(an anomaly) {
	v.tel.LogWarn("config anomaly",
		"field", an.field, "reason", an.reason,
		"actual", an.actual, "fallback", an.fallback)
}
