package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/scoring"
)

// FPL game rules
const (
	DefaultBudget         = 1000
	DefaultSquadSize      = 15
	DefaultPlayersPerTeam = 3
	// DefaultWeightColumn is where the run-level weights are attached
	DefaultWeightColumn = "weights"
)

// RunConfig is the validated, immutable description of one optimization run
type RunConfig struct {
	Constraints models.ConstraintSet  `json:"constraints"`
	Weights     models.WeightSpec     `json:"weights"`
	PickGroups  []optimizer.PickGroup `json:"pick_groups" validate:"dive"`
	RankKeys    []string              `json:"rank_keys"`
	// DrawsPerGroup and TopPerGroup override the service defaults when set
	DrawsPerGroup int `json:"draws_per_group" validate:"gte=0"`
	TopPerGroup   int `json:"top_per_group" validate:"gte=0"`
	TopN          int `json:"top_n" validate:"gte=0"`
}

var validate = validator.New()

// Validate runs the struct tags and the cross-field rules
func (rc RunConfig) Validate() error {
	if err := validate.Struct(rc); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	if err := rc.Constraints.Validate(); err != nil {
		return err
	}
	if err := rc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	return rc.validateGroups()
}

func (rc RunConfig) validateGroups() error {
	if len(rc.PickGroups) == 0 {
		return nil
	}

	names := make(map[string]bool, len(rc.PickGroups))
	budget, players := 0, 0
	perPosition := make(map[models.Position]int)
	for _, g := range rc.PickGroups {
		if names[g.Name] {
			return fmt.Errorf("invalid run config: duplicate pick group %q", g.Name)
		}
		names[g.Name] = true
		if err := g.Weights.Validate(); err != nil {
			return fmt.Errorf("invalid run config: pick group %s: %w", g.Name, err)
		}
		budget += g.Budget
		for pos, n := range g.Positions {
			if !pos.Valid() || n < 0 {
				return fmt.Errorf("invalid run config: pick group %s has bad quota %s=%d", g.Name, pos, n)
			}
			perPosition[pos] += n
			players += n
		}
	}

	if budget > rc.Constraints.Budget {
		return fmt.Errorf("invalid run config: pick group budgets %d exceed budget %d", budget, rc.Constraints.Budget)
	}
	if players != rc.Constraints.RequiredCount {
		return fmt.Errorf("invalid run config: pick groups select %d players, want %d", players, rc.Constraints.RequiredCount)
	}
	for pos, bound := range rc.Constraints.PositionBounds {
		if n := perPosition[pos]; n < bound.Min || n > bound.Max {
			return fmt.Errorf("invalid run config: pick groups select %d %s, want [%d,%d]", n, pos, bound.Min, bound.Max)
		}
	}
	return nil
}

// DecodeRunConfig reads a JSON run config and rejects unknown keys. Omitted
// sections fall back to the defaults: constraints, weights, and the default
// pick groups and rank keys only when the constraints were defaulted too.
func DecodeRunConfig(r io.Reader) (RunConfig, error) {
	var rc RunConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		return RunConfig{}, fmt.Errorf("decode run config: %w", err)
	}
	rc.applyDefaults()
	if err := rc.Validate(); err != nil {
		return RunConfig{}, err
	}
	return rc, nil
}

func (rc *RunConfig) applyDefaults() {
	defaults := DefaultRunConfig()
	defaultedConstraints := rc.Constraints.RequiredCount == 0
	if defaultedConstraints {
		rc.Constraints = defaults.Constraints
	}
	if rc.Weights.Name == "" && len(rc.Weights.Additive) == 0 && len(rc.Weights.Similarity) == 0 {
		rc.Weights = defaults.Weights
	}
	if rc.PickGroups == nil && defaultedConstraints {
		rc.PickGroups = defaults.PickGroups
		if rc.RankKeys == nil {
			rc.RankKeys = defaults.RankKeys
		}
	}
	if rc.RankKeys == nil {
		rc.RankKeys = []string{models.EvalEPNext, models.EvalPoints}
	}
	if rc.TopN == 0 {
		rc.TopN = defaults.TopN
	}
}

// LoadRunConfig reads a run config file; an empty path yields the defaults
func LoadRunConfig(path string) (RunConfig, error) {
	if path == "" {
		rc := DefaultRunConfig()
		return rc, rc.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read run config: %w", err)
	}
	return DecodeRunConfig(bytes.NewReader(data))
}

// DefaultConstraints are the FPL squad rules
func DefaultConstraints() models.ConstraintSet {
	return models.ConstraintSet{
		Budget:        DefaultBudget,
		RequiredCount: DefaultSquadSize,
		PositionBounds: map[models.Position]models.PositionBound{
			models.Goalkeeper: {Min: 2, Max: 2},
			models.Defender:   {Min: 5, Max: 5},
			models.Midfielder: {Min: 5, Max: 5},
			models.Forward:    {Min: 3, Max: 3},
		},
		DefaultTeamMax: DefaultPlayersPerTeam,
	}
}

// DefaultWeights balances expected points, price, form and popularity,
// scaled down for doubtful players
func DefaultWeights() models.WeightSpec {
	return models.WeightSpec{
		Name: DefaultWeightColumn,
		Additive: map[string]float64{
			models.MetricEPThis:            100,
			models.MetricEPNext:            70,
			models.MetricCost:              30,
			models.MetricTotalPoints:       50,
			scoring.MetricStrengthOverall:  5,
			models.MetricSelectedByPercent: 5,
			scoring.MetricTransfersInOut:   50,
			models.MetricForm:              50,
		},
		Multiplicative: map[string]float64{
			models.MetricAvailability: 10,
		},
	}
}

// DefaultPickGroups splits the squad into four price tiers
func DefaultPickGroups() []optimizer.PickGroup {
	return []optimizer.PickGroup{
		{
			Name:   "tier_1",
			Budget: 250,
			Weights: models.WeightSpec{Name: "tier_1", Additive: map[string]float64{
				models.MetricCost: 10, models.MetricTotalPoints: 10, scoring.MetricStrengthAttack: 1, models.MetricSelectedByPercent: 10,
			}},
			Positions: map[models.Position]int{models.Midfielder: 2},
		},
		{
			Name:   "tier_2",
			Budget: 250,
			Weights: models.WeightSpec{Name: "tier_2", Additive: map[string]float64{
				models.MetricCost: 2, models.MetricTotalPoints: 5, scoring.MetricStrengthAttack: 1, models.MetricSelectedByPercent: 10,
			}},
			Positions: map[models.Position]int{models.Forward: 3},
		},
		{
			Name:   "tier_3",
			Budget: 315,
			Weights: models.WeightSpec{Name: "tier_3", Additive: map[string]float64{
				models.MetricCost: 1, models.MetricTotalPoints: 3, scoring.MetricStrengthOverall: -2,
				scoring.MetricStrengthDefence: 1, models.MetricSelectedByPercent: 10,
			}},
			Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 3, models.Midfielder: 2},
		},
		{
			Name:   "tier_4",
			Budget: 185,
			Weights: models.WeightSpec{Name: "tier_4", Additive: map[string]float64{
				models.MetricCost: -5, models.MetricTotalPoints: 3, scoring.MetricStrengthOverall: 1, models.MetricSelectedByPercent: 10,
			}},
			Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 2, models.Midfielder: 1},
		},
	}
}

// DefaultRunConfig is the standard FPL run
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Constraints: DefaultConstraints(),
		Weights:     DefaultWeights(),
		PickGroups:  DefaultPickGroups(),
		RankKeys:    []string{"avg_w_tier_1", "avg_w_tier_2", models.EvalEPNext, models.EvalPoints},
		TopN:        10,
	}
}
