package milp

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	DefaultMaxNodes  = 5000
	defaultTolerance = 1e-9
	integralityTol   = 1e-6
	feasibilityTol   = 1e-6
)

// BranchAndBound solves 0/1 problems by depth-first branch and bound over
// LP relaxations solved with gonum's simplex.
type BranchAndBound struct {
	MaxNodes  int
	Tolerance float64
	logger    *logrus.Entry
}

// NewBranchAndBound creates a solver with the given node limit (0 uses the default)
func NewBranchAndBound(maxNodes int, logger *logrus.Logger) *BranchAndBound {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BranchAndBound{
		MaxNodes:  maxNodes,
		Tolerance: defaultTolerance,
		logger:    logger.WithField("component", "branch_and_bound"),
	}
}

type relaxOutcome int

const (
	relaxFeasible relaxOutcome = iota
	relaxInfeasible
	relaxFailed
	relaxCancelled
)

// node fixes variables (-1 free, 0 or 1 fixed) and remembers which free
// variables already needed an explicit x <= 1 row
type node struct {
	fixed   []int8
	bounded []bool
}

func (nd node) child(v int, value int8, bounded []bool) node {
	fixed := make([]int8, len(nd.fixed))
	copy(fixed, nd.fixed)
	fixed[v] = value
	return node{fixed: fixed, bounded: bounded}
}

// Solve implements Solver
func (bb *BranchAndBound) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	n := p.NumVars()
	if n == 0 {
		return nil, ErrNoVariables
	}
	start := time.Now()

	root := node{fixed: make([]int8, n), bounded: make([]bool, n)}
	for i := range root.fixed {
		root.fixed[i] = -1
	}
	stack := []node{root}

	var (
		best       []float64
		bestObj    = math.Inf(-1)
		nodes      int
		hitLimit   bool
		unresolved bool
	)
	if hint := p.Hint(); hint != nil && feasible(p, hint) {
		best = hint
		bestObj = objectiveValue(p, hint)
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return &Solution{Status: NotSolved, Nodes: nodes}, err
		}
		if nodes >= bb.MaxNodes {
			hitLimit = true
			break
		}
		nodes++

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		outcome, obj, x, bounded := bb.relax(ctx, p, current)
		switch outcome {
		case relaxCancelled:
			return &Solution{Status: NotSolved, Nodes: nodes}, ctx.Err()
		case relaxInfeasible:
			continue
		case relaxFailed:
			unresolved = true
			continue
		}
		if best != nil && obj <= bestObj+feasibilityTol {
			continue
		}

		branchVar, fractional := mostFractional(x, current.fixed)
		if !fractional {
			rounded := make([]float64, n)
			for i, v := range x {
				rounded[i] = math.Round(v)
			}
			if !feasible(p, rounded) {
				unresolved = true
				continue
			}
			best = rounded
			bestObj = objectiveValue(p, rounded)
			continue
		}

		// up is explored first
		stack = append(stack, current.child(branchVar, 0, bounded), current.child(branchVar, 1, bounded))
	}

	sol := &Solution{Nodes: nodes}
	switch {
	case best != nil && !hitLimit && !unresolved:
		sol.Status = Optimal
		sol.Values = best
		sol.Objective = bestObj
	case best == nil && !hitLimit && !unresolved:
		sol.Status = Infeasible
	default:
		sol.Status = NotSolved
	}

	bb.logger.WithFields(logrus.Fields{
		"problem":     p.Name,
		"variables":   n,
		"constraints": len(p.Constraints()),
		"nodes":       nodes,
		"hinted":      p.Hint() != nil,
		"hit_limit":   hitLimit,
		"unresolved":  unresolved,
		"status":      sol.Status.String(),
		"duration":    time.Since(start),
	}).Debug("Branch and bound finished")

	return sol, nil
}

// relax solves the LP relaxation of a node. Fixed variables are substituted
// out and every row becomes a <= row with its own slack so A has full row
// rank. The x <= 1 bounds are added lazily: only variables the relaxation
// pushes above 1 (or that appear in no row) get a row, and the LP is solved
// again until every bound holds. The grown bound set is returned so children
// start from it.
func (bb *BranchAndBound) relax(ctx context.Context, p *Problem, nd node) (relaxOutcome, float64, []float64, []bool) {
	n := p.NumVars()
	col := make([]int, n)
	free := make([]int, 0, n)
	fixedObj := 0.0
	for i, f := range nd.fixed {
		if f < 0 {
			col[i] = len(free)
			free = append(free, i)
		} else {
			col[i] = -1
			fixedObj += p.objective[i] * float64(f)
		}
	}
	nf := len(free)

	var rows [][]float64
	var rhs []float64
	addRow := func(coefs []float64, b float64, sign float64) bool {
		allZero := true
		row := make([]float64, nf)
		for j, c := range coefs {
			row[j] = sign * c
			if c != 0 {
				allZero = false
			}
		}
		b *= sign
		if allZero {
			return b >= -feasibilityTol
		}
		rows = append(rows, row)
		rhs = append(rhs, b)
		return true
	}

	for _, c := range p.constraints {
		coefs := make([]float64, nf)
		b := c.RHS
		for _, t := range c.Terms {
			if j := col[t.Var]; j >= 0 {
				coefs[j] += t.Coef
			} else {
				b -= t.Coef * float64(nd.fixed[t.Var])
			}
		}
		ok := true
		switch c.Sense {
		case LessEq:
			ok = addRow(coefs, b, 1)
		case GreaterEq:
			ok = addRow(coefs, b, -1)
		case Equal:
			ok = addRow(coefs, b, 1) && addRow(coefs, b, -1)
		}
		if !ok {
			return relaxInfeasible, 0, nil, nd.bounded
		}
	}

	x := make([]float64, n)
	for i, f := range nd.fixed {
		if f >= 0 {
			x[i] = float64(f)
		}
	}
	if nf == 0 {
		return relaxFeasible, fixedObj, x, nd.bounded
	}

	bounded := nd.bounded
	owned := false
	bound := func(i int) {
		if !owned {
			bounded = append([]bool(nil), bounded...)
			owned = true
		}
		bounded[i] = true
	}

	// a variable outside every row would be a zero column
	touched := make([]bool, nf)
	for _, row := range rows {
		for j, v := range row {
			if v != 0 {
				touched[j] = true
			}
		}
	}
	for j, i := range free {
		if !touched[j] && !bounded[i] {
			bound(i)
		}
	}

	c := make([]float64, nf)
	for j, i := range free {
		c[j] = -p.objective[i]
	}

	for {
		if ctx.Err() != nil {
			return relaxCancelled, 0, nil, bounded
		}

		var boundCols []int
		for j, i := range free {
			if bounded[i] {
				boundCols = append(boundCols, j)
			}
		}
		m := len(rows) + len(boundCols)
		A := mat.NewDense(m, nf+m, nil)
		b := make([]float64, m)
		for r, row := range rows {
			for j, v := range row {
				if v != 0 {
					A.Set(r, j, v)
				}
			}
			b[r] = rhs[r]
		}
		for k, j := range boundCols {
			A.Set(len(rows)+k, j, 1)
			b[len(rows)+k] = 1
		}
		for r := 0; r < m; r++ {
			A.Set(r, nf+r, 1)
		}
		cost := append(c[:nf:nf], make([]float64, m)...)

		optF, optX, err := bb.simplex(ctx, cost, A, b)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return relaxCancelled, 0, nil, bounded
			case errors.Is(err, lp.ErrInfeasible):
				return relaxInfeasible, 0, nil, bounded
			case errors.Is(err, lp.ErrUnbounded) && len(boundCols) < nf:
				for _, i := range free {
					if !bounded[i] {
						bound(i)
					}
				}
				continue
			}
			bb.logger.WithError(err).WithField("problem", p.Name).Debug("LP relaxation failed")
			return relaxFailed, 0, nil, bounded
		}

		violated := false
		for j, i := range free {
			if !bounded[i] && optX[j] > 1+integralityTol {
				bound(i)
				violated = true
			}
		}
		if violated {
			continue
		}

		for j, i := range free {
			x[i] = clamp01(optX[j])
		}
		return relaxFeasible, fixedObj - optF, x, bounded
	}
}

// simplex runs gonum's solver but stops waiting once ctx is done. An
// abandoned solve finishes in the background and its result is dropped.
func (bb *BranchAndBound) simplex(ctx context.Context, c []float64, A mat.Matrix, b []float64) (float64, []float64, error) {
	type result struct {
		opt float64
		x   []float64
		err error
	}
	done := make(chan result, 1)
	go func() {
		opt, x, err := lp.Simplex(c, A, b, bb.Tolerance, nil)
		done <- result{opt: opt, x: x, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-done:
		return r.opt, r.x, r.err
	}
}

func mostFractional(x []float64, fixed []int8) (int, bool) {
	idx, bestDist := -1, 1.0
	for i, v := range x {
		if fixed[i] >= 0 {
			continue
		}
		frac := v - math.Floor(v)
		if frac < integralityTol || frac > 1-integralityTol {
			continue
		}
		if d := math.Abs(frac - 0.5); d < bestDist {
			idx, bestDist = i, d
		}
	}
	return idx, idx >= 0
}

func feasible(p *Problem, x []float64) bool {
	for _, c := range p.constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		scale := math.Max(1, math.Abs(c.RHS))
		switch c.Sense {
		case LessEq:
			if lhs > c.RHS+feasibilityTol*scale {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-feasibilityTol*scale {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > feasibilityTol*scale {
				return false
			}
		}
	}
	return true
}

func objectiveValue(p *Problem, x []float64) float64 {
	total := 0.0
	for i, c := range p.objective {
		total += c * x[i]
	}
	return total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
