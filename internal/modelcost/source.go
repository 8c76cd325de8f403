package modelcost

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// FallbackPolicy selects behavior when the primary cost source is empty.
type FallbackPolicy string

const (
	// FallbackStatic substitutes the static fallback table.
	FallbackStatic FallbackPolicy = "static"
	// FallbackFail refuses to start without a primary table.
	FallbackFail FallbackPolicy = "fail"
)

// ErrNoCostTable indicates no usable cost table could be resolved.
var ErrNoCostTable = errors.New("modelcost: no cost table available")

// ConfigSource resolves the model cost table from configuration. The server
// copy is authoritative; client-side cost tables are display-only and are
// never consulted for authorization.
type ConfigSource struct {
	primary  map[string]int64
	fallback map[string]int64
	policy   FallbackPolicy
}

// NewConfigSource constructs a ConfigSource.
func NewConfigSource(primary, fallback map[string]int64, policy FallbackPolicy) *ConfigSource {
	if policy == "" {
		policy = FallbackStatic
	}
	return &ConfigSource{primary: primary, fallback: fallback, policy: policy}
}

// Resolve builds the cost table Store, applying the fallback policy when the
// primary table is empty.
func (s *ConfigSource) Resolve() (*Store, error) {
	if s == nil {
		return nil, ErrNoCostTable
	}
	if store := NewStore(s.primary); store.Len() > 0 {
		return store, nil
	}
	switch s.policy {
	case FallbackStatic:
		store := NewStore(s.fallback)
		if store.Len() == 0 {
			return nil, ErrNoCostTable
		}
		log.Warnf("modelcost: primary cost table empty, using static fallback with %d models", store.Len())
		return store, nil
	case FallbackFail:
		return nil, ErrNoCostTable
	default:
		return nil, ErrNoCostTable
	}
}
