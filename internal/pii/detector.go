package pii

import (
	"fmt"

	"go.uber.org/zap"
)

// Detector runs a registry against arbitrary text and logs what it saw.
// Matched values are never logged, only categories and counts.
type Detector struct {
	registry *Registry
	logger   *zap.Logger
}

// New creates a detector over the built-in registry restricted to the
// configured detector names ("all" enables every pattern)
func New(detectors []string, logger *zap.Logger) (*Detector, error) {
	if len(detectors) == 0 {
		detectors = []string{"all"}
	}

	reg, err := DefaultRegistry().Subset(detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	logger.Info("PII detector initialized",
		zap.Int("total_rules", DefaultRegistry().Len()),
		zap.Int("enabled_rules", reg.Len()),
	)

	return NewWithRegistry(reg, logger), nil
}

// NewWithRegistry creates a detector over an injected registry
func NewWithRegistry(reg *Registry, logger *zap.Logger) *Detector {
	return &Detector{registry: reg, logger: logger}
}

// Registry returns the registry the detector scans with
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Detect returns every finding in text, in registry order
func (d *Detector) Detect(text string) Findings {
	findings := d.registry.Detect(text)

	for _, f := range findings {
		d.logger.Debug("PII detected",
			zap.String("entity_type", f.Category),
			zap.Int("count", len(f.Matches)),
		)
	}

	return findings
}
