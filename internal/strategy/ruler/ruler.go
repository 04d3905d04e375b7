// Package ruler escalates signal thresholds for pairs that keep signaling.
package ruler

import (
	"context"
	"fmt"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Table is an ordered, versioned list of threshold profiles.
// Index 0 is the most permissive; higher indexes are stricter.
type Table struct {
	Version  string
	Profiles []domain.ThresholdProfile
}

// DefaultTable is the profile ladder used in production.
var DefaultTable = Table{
	Version: "v1",
	Profiles: []domain.ThresholdProfile{
		{StdDev: 2.0, RSILow: 30, RSIHigh: 70},
		{StdDev: 1.9, RSILow: 31, RSIHigh: 70},
		{StdDev: 1.8, RSILow: 32, RSIHigh: 70},
		{StdDev: 1.7, RSILow: 33, RSIHigh: 70},
		{StdDev: 1.6, RSILow: 34, RSIHigh: 70},
		{StdDev: 1.5, RSILow: 35, RSIHigh: 70},
	},
}

// Validate reports a configuration error for unusable tables.
func (t Table) Validate() error {
	if len(t.Profiles) == 0 {
		return fmt.Errorf("ruler %q has no profiles: %w", t.Version, ports.ErrConfiguration)
	}
	for i, p := range t.Profiles {
		switch {
		case p.StdDev <= 0:
			return fmt.Errorf("ruler %q profile %d: stdDev must be positive: %w", t.Version, i, ports.ErrConfiguration)
		case p.RSILow < 0 || p.RSIHigh > 100:
			return fmt.Errorf("ruler %q profile %d: RSI thresholds must be within [0,100]: %w", t.Version, i, ports.ErrConfiguration)
		case p.RSILow >= p.RSIHigh:
			return fmt.Errorf("ruler %q profile %d: rsiLow must be below rsiHigh: %w", t.Version, i, ports.ErrConfiguration)
		}
	}
	return nil
}

// Selection is the outcome of a lookup.
type Selection struct {
	Index   int
	Profile domain.ThresholdProfile
	Version string
}

// Selector picks a profile per pair from its recent signal history.
type Selector struct {
	table     Table
	baseHours int
	signals   ports.SignalRepository
	now       func() time.Time
}

// NewSelector validates the table and returns a selector.
func NewSelector(table Table, baseHours int, signals ports.SignalRepository) (*Selector, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if baseHours <= 0 {
		return nil, fmt.Errorf("baseHours must be positive, got %d: %w", baseHours, ports.ErrConfiguration)
	}
	if signals == nil {
		return nil, fmt.Errorf("signal repository is required for ruler selector")
	}
	return &Selector{table: table, baseHours: baseHours, signals: signals, now: time.Now}, nil
}

// Table returns the selector's table.
func (s *Selector) Table() Table {
	return s.table
}

// Select returns the first profile index i such that no signal in the given
// direction exists for the pair within the last (i+1)*baseHours hours.
// When every window has a signal the strictest profile is returned.
func (s *Selector) Select(ctx context.Context, pair domain.Pair, direction domain.Direction) (Selection, error) {
	last := len(s.table.Profiles) - 1
	now := s.now()

	// One query over the widest window; narrower windows are checked in memory.
	widest := now.Add(-time.Duration(len(s.table.Profiles)*s.baseHours) * time.Hour)
	recent, err := s.signals.QuerySignals(ctx, ports.SignalFilter{
		Pair:      &pair,
		Direction: direction,
		Since:     widest,
	}, ports.SortNewestFirst, 1)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to query recent %s signals for %s: %w", direction, pair, err)
	}

	var latest time.Time
	if len(recent) > 0 {
		latest = recent[0].EmittedAt
	}

	for i := range s.table.Profiles {
		cutoff := now.Add(-time.Duration((i+1)*s.baseHours) * time.Hour)
		if latest.IsZero() || latest.Before(cutoff) {
			return s.selection(i), nil
		}
	}
	return s.selection(last), nil
}

func (s *Selector) selection(i int) Selection {
	return Selection{Index: i, Profile: s.table.Profiles[i], Version: s.table.Version}
}
