package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Position is the closed set of squad positions
type Position string

const (
	Goalkeeper Position = "Goalkeeper"
	Defender   Position = "Defender"
	Midfielder Position = "Midfielder"
	Forward    Position = "Forward"
)

// Positions lists every position in element_type order
var Positions = []Position{Goalkeeper, Defender, Midfielder, Forward}

// Metric names shared by the scoring model, evaluation and the data loaders
const (
	MetricCost               = "now_cost"
	MetricTotalPoints        = "total_points"
	MetricEPThis             = "ep_this"
	MetricEPNext             = "ep_next"
	MetricSelectedByPercent  = "selected_by_percent"
	MetricForm               = "form"
	MetricBonus              = "bonus"
	MetricDreamteamCount     = "dreamteam_count"
	MetricAvailability       = "chance_of_playing_next_round"
	MetricTransfersIn        = "transfers_in"
	MetricTransfersOut       = "transfers_out"
	MetricTransfersInEvent   = "transfers_in_event"
	MetricTransfersOutEvent  = "transfers_out_event"
	MetricStrengthAttackHome = "team_strength_attack_home"
	MetricStrengthAttackAway = "team_strength_attack_away"
	MetricStrengthDefHome    = "team_strength_defence_home"
	MetricStrengthDefAway    = "team_strength_defence_away"
	MetricStrengthAllHome    = "team_strength_overall_home"
	MetricStrengthAllAway    = "team_strength_overall_away"
)

// FullAvailability is the availability value of a player certain to play
const FullAvailability = 100.0

// ParsePosition accepts the long name, the short code (GKP/GK, DEF, MID, FWD)
// or the numeric element_type (1-4).
func ParsePosition(s string) (Position, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GOALKEEPER", "GKP", "GK", "1":
		return Goalkeeper, nil
	case "DEFENDER", "DEF", "2":
		return Defender, nil
	case "MIDFIELDER", "MID", "3":
		return Midfielder, nil
	case "FORWARD", "FWD", "4":
		return Forward, nil
	}
	return "", fmt.Errorf("unknown position %q", s)
}

// Valid reports whether p is one of the known positions
func (p Position) Valid() bool {
	switch p {
	case Goalkeeper, Defender, Midfielder, Forward:
		return true
	}
	return false
}

// ElementType returns the FPL numeric code of the position
func (p Position) ElementType() int {
	for i, pos := range Positions {
		if pos == p {
			return i + 1
		}
	}
	return 0
}

// UnmarshalJSON accepts either a string form or the numeric element_type
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		s = strconv.Itoa(int(v))
	default:
		return fmt.Errorf("invalid position value %s", string(data))
	}
	parsed, err := ParsePosition(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// UnmarshalText lets positions be used as JSON object keys
func (p *Position) UnmarshalText(text []byte) error {
	parsed, err := ParsePosition(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Player is a selectable entity. It is treated as immutable for an optimization run.
type Player struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	Position Position           `json:"position"`
	Team     string             `json:"team"`
	Cost     int                `json:"cost"`
	Metrics  map[string]float64 `json:"metrics"`
}

// Metric returns the named metric, treating missing values as 0.
// now_cost is served from Cost so it can be used in weight specs.
func (p Player) Metric(name string) float64 {
	if name == MetricCost {
		return float64(p.Cost)
	}
	v, ok := p.Metrics[name]
	if !ok || math.IsNaN(v) {
		return 0
	}
	return v
}

// Availability returns the chance of playing next round in [0,100]
func (p Player) Availability() float64 {
	return p.Metric(MetricAvailability)
}

// WithMetric returns a copy of the player with the metric set
func (p Player) WithMetric(name string, value float64) Player {
	metrics := make(map[string]float64, len(p.Metrics)+1)
	for k, v := range p.Metrics {
		metrics[k] = v
	}
	metrics[name] = value
	p.Metrics = metrics
	return p
}

// Validate checks the fields required by the optimization core
func (p Player) Validate() error {
	if !p.Position.Valid() {
		return fmt.Errorf("player %d: invalid position %q", p.ID, p.Position)
	}
	if p.Team == "" {
		return fmt.Errorf("player %d: missing team", p.ID)
	}
	if p.Cost < 0 {
		return fmt.Errorf("player %d: negative cost %d", p.ID, p.Cost)
	}
	if a, ok := p.Metrics[MetricAvailability]; ok && (a < 0 || a > FullAvailability) {
		return fmt.Errorf("player %d: availability %.1f outside [0,100]", p.ID, a)
	}
	for name, v := range p.Metrics {
		if math.IsInf(v, 0) {
			return fmt.Errorf("player %d: metric %s is infinite", p.ID, name)
		}
	}
	return nil
}

// Team carries the per-team selection limit
type Team struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	MaxSelectable int    `json:"max_selectable"`
}

// Pool is an immutable snapshot of the selectable universe
type Pool struct {
	Players []Player `json:"players"`
	Teams   []Team   `json:"teams,omitempty"`
}

// Validate checks every player and rejects duplicate ids
func (p Pool) Validate() error {
	seen := make(map[int]bool, len(p.Players))
	for _, player := range p.Players {
		if seen[player.ID] {
			return fmt.Errorf("duplicate player id %d", player.ID)
		}
		seen[player.ID] = true
		if err := player.Validate(); err != nil {
			return err
		}
	}
	for _, team := range p.Teams {
		if team.Code == "" {
			return fmt.Errorf("team with empty code")
		}
		if team.MaxSelectable < 0 {
			return fmt.Errorf("team %s: negative max_selectable", team.Code)
		}
	}
	return nil
}

// ByID indexes the pool players by id
func (p Pool) ByID() map[int]Player {
	index := make(map[int]Player, len(p.Players))
	for _, player := range p.Players {
		index[player.ID] = player
	}
	return index
}

// TeamLimits returns the per-team maximum from the team table
func (p Pool) TeamLimits() map[string]int {
	limits := make(map[string]int, len(p.Teams))
	for _, team := range p.Teams {
		limits[team.Code] = team.MaxSelectable
	}
	return limits
}
