package forecast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Score is what a scoring function returns for one snapshot
type Score struct {
	// Value is the predicted glucose at the end of the horizon, mg/dL
	Value float64
	// Certainty is nil when the scorer cannot express one
	Certainty *float64
	// Contributions maps each signal type to its share of Value - CurrentGlucose
	Contributions map[models.SignalType]float64
	// Path holds optional intermediate predictions ending at the horizon
	Path []float64
}

// Scorer is a pluggable scoring function selected by name
type Scorer interface {
	Name() string
	Score(ctx context.Context, snap *models.FeatureSnapshot, horizon time.Duration) (*Score, error)
}

// Registry holds the scorers a deployment can select from
type Registry struct {
	mu      sync.RWMutex
	scorers map[string]Scorer
}

// NewRegistry creates a registry with the given scorers
func NewRegistry(scorers ...Scorer) *Registry {
	r := &Registry{scorers: make(map[string]Scorer)}
	for _, s := range scorers {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any scorer with the same name
func (r *Registry) Register(s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[s.Name()] = s
}

// Get returns the scorer registered under name
func (r *Registry) Get(name string) (Scorer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scorers[name]
	return s, ok
}

// Names lists registered scorer names in lexical order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scorers))
	for name := range r.scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
