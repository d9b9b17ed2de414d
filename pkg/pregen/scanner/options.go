// Package scanner walks a storage backend and builds a manifest of every
// original image together with the thumbnails that already exist for it.
package scanner

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
)

// Strategy selects how existing thumbnails are discovered.
type Strategy string

const (
	// StrategyFullIndex lists every thumbnail of a collection once and
	// matches originals against that index.
	StrategyFullIndex Strategy = "full-index"

	// StrategyOnDemand issues one prefix listing per original.
	StrategyOnDemand Strategy = "on-demand"

	// StrategyAuto picks on-demand for small limited scans and full-index
	// otherwise. It is resolved before scanning starts.
	StrategyAuto Strategy = "auto"
)

// AutoOnDemandLimit is the largest limit for which StrategyAuto resolves to
// on-demand lookups.
const AutoOnDemandLimit = 100

// OnDemandMaxKeys bounds the per-original thumbnail listing.
const OnDemandMaxKeys = 100

// DefaultProgressInterval is how many records pass between progress log lines.
const DefaultProgressInterval = 500

// ErrInvalidStrategy is returned for unknown strategy names.
var ErrInvalidStrategy = errors.New("invalid scan strategy")

// ParseStrategy converts a flag value into a Strategy. Empty means full-index.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyFullIndex, nil
	case StrategyFullIndex, StrategyOnDemand, StrategyAuto:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want full-index, on-demand or auto)", ErrInvalidStrategy, s)
	}
}

// Resolve turns StrategyAuto into a concrete strategy for the given limit.
func (s Strategy) Resolve(limit int) Strategy {
	if s != StrategyAuto {
		return s
	}
	if limit > 0 && limit <= AutoOnDemandLimit {
		return StrategyOnDemand
	}
	return StrategyFullIndex
}

// Options configures a scan.
type Options struct {
	// Collections restricts the scan. Empty scans every collection found
	// under the storage prefix.
	Collections []string

	// Limit stops the scan once this many originals have been recorded.
	// Zero means no limit.
	Limit int

	// Strategy selects thumbnail discovery. Empty means full-index; auto
	// must be asked for and is resolved by Validate.
	Strategy Strategy

	// Progress receives scan events. Nil discards them.
	Progress Progress

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultOptions returns options for an unlimited full scan.
func DefaultOptions() Options {
	return Options{Strategy: StrategyFullIndex}
}

// Validate checks the options and resolves defaults.
func (o *Options) Validate() error {
	if o.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", o.Limit)
	}
	if o.Strategy == "" {
		o.Strategy = StrategyFullIndex
	}
	if _, err := ParseStrategy(string(o.Strategy)); err != nil {
		return err
	}
	o.Strategy = o.Strategy.Resolve(o.Limit)
	if o.Progress == nil {
		o.Progress = NopProgress{}
	}
	return nil
}
