package optimizer

import (
	"math"
	"math/rand"

	"github.com/mroth/weightedrand/v2"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

const (
	// DefaultMaxRetries caps how many candidates one decision point may try
	// before it is abandoned
	DefaultMaxRetries = 20
	// DefaultMaxAttempts caps the draws of a whole pick
	DefaultMaxAttempts = 1000

	weightScale = 1e6
)

// PickRequest describes one weighted draw of a partial squad
type PickRequest struct {
	Players   []models.Player
	WeightKey string
	Budget    int
	// Positions is the number of players still needed per position
	Positions map[models.Position]int
	// TeamQuota is the remaining per-team capacity. Teams missing from a
	// non-nil map cannot be picked; a nil map leaves teams unbounded.
	TeamQuota map[string]int
}

// Selection is a successful pick
type Selection struct {
	Squad      models.Squad `json:"squad"`
	Leftover   int          `json:"leftover"`
	MeanWeight float64      `json:"mean_weight"`
	Attempts   int          `json:"attempts"`
	// Degenerate counts the draws that fell back to uniform because every
	// candidate weight was zero
	Degenerate int `json:"degenerate"`
}

// Sampler draws squads at random with probability proportional to a weight
// column, backtracking out of dead ends
type Sampler struct {
	MaxRetries  int
	MaxAttempts int
	log         *logrus.Logger
}

// NewSampler creates a sampler; zero limits take the defaults
func NewSampler(maxRetries, maxAttempts int, log *logrus.Logger) *Sampler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Sampler{MaxRetries: maxRetries, MaxAttempts: maxAttempts, log: log}
}

// FullTeamQuota gives every team in players the same remaining capacity
func FullTeamQuota(players []models.Player, max int) map[string]int {
	quota := make(map[string]int)
	for _, p := range players {
		quota[p.Team] = max
	}
	return quota
}

// frame is one decision point: which arena slots it has already tried
type frame struct {
	tried   map[int]bool
	retries int
}

type pickState struct {
	req        PickRequest
	weights    []float64
	used       []bool
	positions  map[models.Position]int
	teams      map[string]int
	budget     int
	remaining  int
	chosen     []int
	degenerate int
}

func newPickState(req PickRequest) *pickState {
	st := &pickState{
		req:       req,
		weights:   make([]float64, len(req.Players)),
		used:      make([]bool, len(req.Players)),
		positions: make(map[models.Position]int, len(req.Positions)),
		budget:    req.Budget,
	}
	for i, p := range req.Players {
		w := p.Metric(req.WeightKey)
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		st.weights[i] = w
	}
	for pos, n := range req.Positions {
		if n > 0 {
			st.positions[pos] = n
			st.remaining += n
		}
	}
	if req.TeamQuota != nil {
		st.teams = make(map[string]int, len(req.TeamQuota))
		for team, n := range req.TeamQuota {
			st.teams[team] = n
		}
	}
	return st
}

func (st *pickState) selectable(i int) bool {
	p := st.req.Players[i]
	if st.used[i] || st.positions[p.Position] <= 0 || p.Cost > st.budget {
		return false
	}
	if st.teams != nil && st.teams[p.Team] <= 0 {
		return false
	}
	return true
}

func (st *pickState) commit(i int) {
	p := st.req.Players[i]
	st.used[i] = true
	st.positions[p.Position]--
	if st.teams != nil {
		st.teams[p.Team]--
	}
	st.budget -= p.Cost
	st.remaining--
	st.chosen = append(st.chosen, i)
}

func (st *pickState) undo() int {
	i := st.chosen[len(st.chosen)-1]
	st.chosen = st.chosen[:len(st.chosen)-1]
	p := st.req.Players[i]
	st.used[i] = false
	st.positions[p.Position]++
	if st.teams != nil {
		st.teams[p.Team]++
	}
	st.budget += p.Cost
	st.remaining++
	return i
}

// draw picks one slot from candidates proportionally to weight. Zero weight
// means zero probability unless every candidate is zero, then it is uniform.
func (st *pickState) draw(rng *rand.Rand, candidates []int) int {
	choices := make([]weightedrand.Choice[int, int64], 0, len(candidates))
	for _, i := range candidates {
		w := st.weights[i]
		if w <= 0 {
			continue
		}
		scaled := int64(math.Round(w * weightScale))
		if scaled < 1 {
			scaled = 1
		}
		choices = append(choices, weightedrand.NewChoice(i, scaled))
	}

	if len(choices) == 0 {
		st.degenerate++
		return candidates[rng.Intn(len(candidates))]
	}

	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		// weight overflow; draw uniformly
		return candidates[rng.Intn(len(candidates))]
	}
	return chooser.PickSource(rng)
}

// Pick draws a partial squad filling req.Positions within req.Budget.
// A decision point whose candidates are exhausted, or that has used up
// MaxRetries, is abandoned and the previous choice is undone. The pick fails
// when the first decision point is abandoned or MaxAttempts draws are spent.
func (s *Sampler) Pick(rng *rand.Rand, req PickRequest) (Selection, bool) {
	st := newPickState(req)
	if st.remaining == 0 {
		return Selection{Leftover: req.Budget}, true
	}

	stack := []*frame{{tried: make(map[int]bool)}}
	attempts := 0
	candidates := make([]int, 0, len(req.Players))

	for st.remaining > 0 {
		if attempts >= s.MaxAttempts {
			s.log.WithFields(logrus.Fields{
				"weight_key": req.WeightKey,
				"attempts":   attempts,
				"depth":      len(st.chosen),
			}).Debug("Sampler attempt budget exhausted")
			return Selection{}, false
		}

		top := stack[len(stack)-1]
		candidates = candidates[:0]
		if top.retries < s.MaxRetries {
			for i := range req.Players {
				if !top.tried[i] && st.selectable(i) {
					candidates = append(candidates, i)
				}
			}
		}

		if len(candidates) == 0 {
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				s.log.WithFields(logrus.Fields{
					"weight_key": req.WeightKey,
					"attempts":   attempts,
				}).Debug("Sampler exhausted every first choice")
				return Selection{}, false
			}
			undone := st.undo()
			parent := stack[len(stack)-1]
			parent.tried[undone] = true
			parent.retries++
			continue
		}

		attempts++
		st.commit(st.draw(rng, candidates))
		if st.remaining > 0 {
			stack = append(stack, &frame{tried: make(map[int]bool)})
		}
	}

	members := make([]models.Player, len(st.chosen))
	total := 0.0
	for k, i := range st.chosen {
		members[k] = req.Players[i]
		total += st.weights[i]
	}
	return Selection{
		Squad:      models.NewSquad(members...),
		Leftover:   st.budget,
		MeanWeight: total / float64(len(members)),
		Attempts:   attempts,
		Degenerate: st.degenerate,
	}, true
}
