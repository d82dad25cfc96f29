package cognitive

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/blksails/e2e-agents/types"
)

// DefaultQuadrant is the configuration used when no file is supplied:
// supervised mode with both built-in triggers enabled.
func DefaultQuadrant() types.CognitiveQuadrant {
	return types.CognitiveQuadrant{
		Mode: types.ModeSupervised,
		Thresholds: types.Thresholds{
			AutoApprove:   0.85,
			RequireReview: 0.60,
			AutoCorrect:   0.70,
		},
		InterventionTriggers: []string{TriggerLowConfidence, TriggerCriticalIssue},
	}
}

// LoadConfig reads a quadrant configuration from a YAML file, filling any
// omitted field from the defaults.
func LoadConfig(path string) (types.CognitiveQuadrant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.CognitiveQuadrant{}, fmt.Errorf("failed to read quadrant config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML quadrant configuration bytes.
func ParseConfig(data []byte) (types.CognitiveQuadrant, error) {
	q := DefaultQuadrant()
	if err := yaml.Unmarshal(data, &q); err != nil {
		return types.CognitiveQuadrant{}, fmt.Errorf("failed to parse quadrant config: %w", err)
	}
	if err := validateQuadrant(q); err != nil {
		return types.CognitiveQuadrant{}, err
	}
	return q, nil
}

func validateQuadrant(q types.CognitiveQuadrant) error {
	switch q.Mode {
	case types.ModeAutonomous, types.ModeSupervised, types.ModeCollaborative, types.ModeManual:
	default:
		return fmt.Errorf("unknown cognitive mode %q", q.Mode)
	}
	for name, v := range map[string]float64{
		"auto_approve":   q.Thresholds.AutoApprove,
		"require_review": q.Thresholds.RequireReview,
		"auto_correct":   q.Thresholds.AutoCorrect,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s out of range [0,1]: %v", name, v)
		}
	}
	return nil
}

// Manager holds the process-wide quadrant and supports hot updates. Reads
// vastly outnumber writes; decisions copy the value out and stay pure.
type Manager struct {
	mu       sync.RWMutex
	quadrant types.CognitiveQuadrant
}

// NewManager creates a Manager seeded with the given quadrant.
func NewManager(q types.CognitiveQuadrant) *Manager {
	return &Manager{quadrant: q}
}

// Current returns the quadrant in effect.
func (m *Manager) Current() types.CognitiveQuadrant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quadrant
}

// Update replaces the quadrant after validation.
func (m *Manager) Update(q types.CognitiveQuadrant) error {
	if err := validateQuadrant(q); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quadrant = q
	return nil
}

// Decide evaluates the critique against the quadrant currently in effect.
func (m *Manager) Decide(c types.CritiqueResult) Decision {
	return Decide(c, m.Current())
}
