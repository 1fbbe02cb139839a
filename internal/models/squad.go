package models

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Squad is an unordered collection of distinct players. Aggregates are
// always derived from the members.
type Squad struct {
	Players []Player `json:"players"`
}

// NewSquad copies players into a new squad
func NewSquad(players ...Player) Squad {
	members := make([]Player, len(players))
	copy(members, players)
	return Squad{Players: members}
}

// Concat joins squads in order; used by the group combiner
func Concat(parts ...Squad) Squad {
	n := 0
	for _, part := range parts {
		n += part.Len()
	}
	members := make([]Player, 0, n)
	for _, part := range parts {
		members = append(members, part.Players...)
	}
	return Squad{Players: members}
}

func (s Squad) Len() int {
	return len(s.Players)
}

// IDs returns member ids sorted ascending
func (s Squad) IDs() []int {
	ids := make([]int, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}
	sort.Ints(ids)
	return ids
}

// Contains reports whether a player id is a member
func (s Squad) Contains(id int) bool {
	for _, p := range s.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Without returns a copy of the squad with the given player removed
func (s Squad) Without(id int) Squad {
	members := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.ID != id {
			members = append(members, p)
		}
	}
	return Squad{Players: members}
}

// With returns a copy of the squad with the player appended
func (s Squad) With(p Player) Squad {
	members := make([]Player, len(s.Players), len(s.Players)+1)
	copy(members, s.Players)
	return Squad{Players: append(members, p)}
}

func (s Squad) Cost() int {
	total := 0
	for _, p := range s.Players {
		total += p.Cost
	}
	return total
}

// Column lists a metric for every member, missing values as 0
func (s Squad) Column(metric string) []float64 {
	col := make([]float64, len(s.Players))
	for i, p := range s.Players {
		col[i] = p.Metric(metric)
	}
	return col
}

// Sum adds a metric over all members
func (s Squad) Sum(metric string) float64 {
	return floats.Sum(s.Column(metric))
}

// Mean averages a metric over all members; 0 for an empty squad
func (s Squad) Mean(metric string) float64 {
	if len(s.Players) == 0 {
		return 0
	}
	return stat.Mean(s.Column(metric), nil)
}

func (s Squad) CountByPosition() map[Position]int {
	counts := make(map[Position]int)
	for _, p := range s.Players {
		counts[p.Position]++
	}
	return counts
}

func (s Squad) CountByTeam() map[string]int {
	counts := make(map[string]int)
	for _, p := range s.Players {
		counts[p.Team]++
	}
	return counts
}

// HasDuplicates reports whether any player id appears twice
func (s Squad) HasDuplicates() bool {
	seen := make(map[int]bool, len(s.Players))
	for _, p := range s.Players {
		if seen[p.ID] {
			return true
		}
		seen[p.ID] = true
	}
	return false
}

// Captains picks captain and vice captain by ep_next, then total points.
// Both are zero-valued when the squad is too small.
func (s Squad) Captains() (captain, vice Player) {
	ordered := make([]Player, len(s.Players))
	copy(ordered, s.Players)
	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := ordered[i].Metric(MetricEPNext), ordered[j].Metric(MetricEPNext)
		if ei != ej {
			return ei > ej
		}
		return ordered[i].Metric(MetricTotalPoints) > ordered[j].Metric(MetricTotalPoints)
	})
	if len(ordered) > 0 {
		captain = ordered[0]
	}
	if len(ordered) > 1 {
		vice = ordered[1]
	}
	return captain, vice
}

// Evaluation keys understood by Evaluation.Field
const (
	EvalCost             = "cost"
	EvalPoints           = "points"
	EvalEPThis           = "ep_this"
	EvalEPNext           = "ep_next"
	EvalAvgSelectPercent = "avg_select_percent"
	EvalAvgForm          = "avg_form"
	MeanPrefix           = "avg_"
)

// Evaluation is the aggregate summary of a squad
type Evaluation struct {
	Cost             int                `json:"cost"`
	Points           float64            `json:"points"`
	EPThis           float64            `json:"ep_this"`
	EPNext           float64            `json:"ep_next"`
	AvgSelectPercent float64            `json:"avg_select_percent"`
	AvgForm          float64            `json:"avg_form"`
	Means            map[string]float64 `json:"means,omitempty"`
}

// Field looks up an aggregate by key; prefixed means use "avg_<column>"
func (e Evaluation) Field(key string) (float64, bool) {
	switch key {
	case EvalCost:
		return float64(e.Cost), true
	case EvalPoints:
		return e.Points, true
	case EvalEPThis:
		return e.EPThis, true
	case EvalEPNext:
		return e.EPNext, true
	case EvalAvgSelectPercent:
		return e.AvgSelectPercent, true
	case EvalAvgForm:
		return e.AvgForm, true
	}
	v, ok := e.Means[key]
	return v, ok
}

// Evaluate computes the squad aggregates. For every metric column whose name
// starts with one of meanPrefixes, the mean is reported as "avg_<column>".
func (s Squad) Evaluate(meanPrefixes ...string) Evaluation {
	e := Evaluation{
		Cost:             s.Cost(),
		Points:           s.Sum(MetricTotalPoints),
		EPThis:           s.Sum(MetricEPThis),
		EPNext:           s.Sum(MetricEPNext),
		AvgSelectPercent: s.Mean(MetricSelectedByPercent),
		AvgForm:          s.Mean(MetricForm),
	}
	if len(meanPrefixes) == 0 {
		return e
	}

	columns := make(map[string]bool)
	for _, p := range s.Players {
		for name := range p.Metrics {
			for _, prefix := range meanPrefixes {
				if strings.HasPrefix(name, prefix) {
					columns[name] = true
				}
			}
		}
	}
	e.Means = make(map[string]float64, len(columns))
	for col := range columns {
		e.Means[MeanPrefix+col] = s.Mean(col)
	}
	return e
}
