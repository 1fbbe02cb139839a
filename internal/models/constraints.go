package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConstraints wraps every constraint validation failure
var ErrInvalidConstraints = errors.New("invalid constraints")

// PositionBound is an inclusive [Min, Max] count bound for a position
type PositionBound struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Exact reports whether the bound collapses to a single value
func (b PositionBound) Exact() bool {
	return b.Min == b.Max
}

// ConstraintSet holds the hard constraints a squad must satisfy
type ConstraintSet struct {
	Budget         int                        `json:"budget" validate:"gte=0"`
	RequiredCount  int                        `json:"required_count" validate:"gt=0"`
	PositionBounds map[Position]PositionBound `json:"position_bounds"`
	// TeamBounds overrides DefaultTeamMax for individual teams
	TeamBounds     map[string]int `json:"team_bounds,omitempty"`
	DefaultTeamMax int            `json:"default_team_max" validate:"gte=0"`
	ExcludedTeams  []string       `json:"excluded_teams,omitempty"`

	RetainFrom       []int `json:"retain_from,omitempty"`
	TransfersAllowed *int  `json:"transfers_allowed,omitempty"`

	RequireFullAvailability bool `json:"require_full_availability"`
}

// Validate rejects out-of-range values
func (c ConstraintSet) Validate() error {
	if c.Budget < 0 {
		return fmt.Errorf("%w: budget must be non-negative", ErrInvalidConstraints)
	}
	if c.RequiredCount <= 0 {
		return fmt.Errorf("%w: required_count must be positive", ErrInvalidConstraints)
	}
	if c.DefaultTeamMax < 0 {
		return fmt.Errorf("%w: default_team_max must be non-negative", ErrInvalidConstraints)
	}

	minTotal, maxTotal := 0, 0
	for pos, b := range c.PositionBounds {
		if !pos.Valid() {
			return fmt.Errorf("%w: unknown position %q", ErrInvalidConstraints, pos)
		}
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("%w: position %s bound (%d,%d) is invalid", ErrInvalidConstraints, pos, b.Min, b.Max)
		}
		minTotal += b.Min
		maxTotal += b.Max
	}
	if len(c.PositionBounds) == len(Positions) && (minTotal > c.RequiredCount || maxTotal < c.RequiredCount) {
		return fmt.Errorf("%w: position bounds [%d,%d] cannot add up to %d players",
			ErrInvalidConstraints, minTotal, maxTotal, c.RequiredCount)
	}
	if len(c.PositionBounds) > 0 && minTotal > c.RequiredCount {
		return fmt.Errorf("%w: position minimums %d exceed required count %d", ErrInvalidConstraints, minTotal, c.RequiredCount)
	}

	for team, max := range c.TeamBounds {
		if max < 0 {
			return fmt.Errorf("%w: team %s bound must be non-negative", ErrInvalidConstraints, team)
		}
	}

	if c.TransfersAllowed != nil {
		if len(c.RetainFrom) == 0 {
			return fmt.Errorf("%w: transfers_allowed requires retain_from", ErrInvalidConstraints)
		}
		t := *c.TransfersAllowed
		if t < 0 || t > c.RequiredCount {
			return fmt.Errorf("%w: transfers_allowed %d outside [0,%d]", ErrInvalidConstraints, t, c.RequiredCount)
		}
		if c.RequiredCount-t > len(c.RetainFrom) {
			return fmt.Errorf("%w: cannot retain %d of %d reference players", ErrInvalidConstraints, c.RequiredCount-t, len(c.RetainFrom))
		}
	}
	seen := make(map[int]bool, len(c.RetainFrom))
	for _, id := range c.RetainFrom {
		if seen[id] {
			return fmt.Errorf("%w: duplicate retain_from id %d", ErrInvalidConstraints, id)
		}
		seen[id] = true
	}
	return nil
}

// TeamMax returns the maximum number of players selectable from team.
// ok is false when the team is unbounded.
func (c ConstraintSet) TeamMax(team string) (max int, ok bool) {
	for _, excluded := range c.ExcludedTeams {
		if excluded == team {
			return 0, true
		}
	}
	if max, ok := c.TeamBounds[team]; ok {
		return max, true
	}
	if c.DefaultTeamMax > 0 {
		return c.DefaultTeamMax, true
	}
	return 0, false
}

// WithTeamLimits returns a copy whose TeamBounds also carries the team
// table limits. Explicit TeamBounds entries win.
func (c ConstraintSet) WithTeamLimits(limits map[string]int) ConstraintSet {
	if len(limits) == 0 {
		return c
	}
	bounds := make(map[string]int, len(c.TeamBounds)+len(limits))
	for team, max := range limits {
		bounds[team] = max
	}
	for team, max := range c.TeamBounds {
		bounds[team] = max
	}
	c.TeamBounds = bounds
	return c
}

// RetainCount is the number of reference players that must stay, or -1
// when no retention constraint applies.
func (c ConstraintSet) RetainCount() int {
	if c.TransfersAllowed == nil || len(c.RetainFrom) == 0 {
		return -1
	}
	return c.RequiredCount - *c.TransfersAllowed
}

// SortedPositions returns the bounded positions in element_type order
func (c ConstraintSet) SortedPositions() []Position {
	positions := make([]Position, 0, len(c.PositionBounds))
	for pos := range c.PositionBounds {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].ElementType() < positions[j].ElementType()
	})
	return positions
}

// Check verifies every squad invariant and returns the first violation
func (c ConstraintSet) Check(squad Squad) error {
	if squad.Len() != c.RequiredCount {
		return fmt.Errorf("squad has %d players, want %d", squad.Len(), c.RequiredCount)
	}

	seen := make(map[int]bool, squad.Len())
	for _, p := range squad.Players {
		if seen[p.ID] {
			return fmt.Errorf("player %d selected twice", p.ID)
		}
		seen[p.ID] = true
	}

	if cost := squad.Cost(); cost > c.Budget {
		return fmt.Errorf("squad cost %d exceeds budget %d", cost, c.Budget)
	}

	counts := squad.CountByPosition()
	for pos, b := range c.PositionBounds {
		n := counts[pos]
		if n < b.Min || n > b.Max {
			return fmt.Errorf("position %s has %d players, want [%d,%d]", pos, n, b.Min, b.Max)
		}
	}

	for team, n := range squad.CountByTeam() {
		if max, ok := c.TeamMax(team); ok && n > max {
			return fmt.Errorf("team %s has %d players, max %d", team, n, max)
		}
	}

	if c.RequireFullAvailability {
		for _, p := range squad.Players {
			if p.Availability() < FullAvailability {
				return fmt.Errorf("player %d availability %.0f below %.0f", p.ID, p.Availability(), FullAvailability)
			}
		}
	}

	if keep := c.RetainCount(); keep >= 0 {
		retained := 0
		for _, id := range c.RetainFrom {
			if seen[id] {
				retained++
			}
		}
		if retained != keep {
			return fmt.Errorf("squad retains %d reference players, want %d", retained, keep)
		}
	}
	return nil
}
