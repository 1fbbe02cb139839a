// Package milp is a small 0/1 integer linear programming layer: binary
// variables, labeled linear constraints, one maximize objective, and a
// tri-state solve outcome.
package milp

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoVariables     = errors.New("milp: problem has no variables")
	ErrUnknownVariable = errors.New("milp: unknown variable")
	ErrDuplicateName   = errors.New("milp: duplicate variable name")
)

// Sense is the relation of a constraint row to its right-hand side
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "=="
	}
	return "?"
}

// Var is a handle to a binary decision variable
type Var int

// Term is coefficient * variable
type Term struct {
	Var  Var
	Coef float64
}

// Constraint is a labeled linear row: sum(terms) <sense> RHS
type Constraint struct {
	Label string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a maximization over binary variables
type Problem struct {
	Name        string
	names       []string
	index       map[string]Var
	constraints []Constraint
	objective   []float64
	hint        []float64
}

// NewProblem creates an empty maximization problem
func NewProblem(name string) *Problem {
	return &Problem{
		Name:  name,
		index: make(map[string]Var),
	}
}

// AddBinary declares a 0/1 variable with a unique name
func (p *Problem) AddBinary(name string) (Var, error) {
	if _, exists := p.index[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	v := Var(len(p.names))
	p.names = append(p.names, name)
	p.index[name] = v
	p.objective = append(p.objective, 0)
	return v, nil
}

// Lookup returns the variable declared under name
func (p *Problem) Lookup(name string) (Var, bool) {
	v, ok := p.index[name]
	return v, ok
}

// NumVars returns the number of declared variables
func (p *Problem) NumVars() int {
	return len(p.names)
}

// VarName returns the declared name of v
func (p *Problem) VarName(v Var) string {
	if int(v) < 0 || int(v) >= len(p.names) {
		return ""
	}
	return p.names[v]
}

// AddConstraint appends a labeled row. Terms on the same variable are summed.
func (p *Problem) AddConstraint(label string, terms []Term, sense Sense, rhs float64) error {
	for _, t := range terms {
		if int(t.Var) < 0 || int(t.Var) >= len(p.names) {
			return fmt.Errorf("%w in constraint %q", ErrUnknownVariable, label)
		}
	}
	row := make([]Term, len(terms))
	copy(row, terms)
	p.constraints = append(p.constraints, Constraint{Label: label, Terms: row, Sense: sense, RHS: rhs})
	return nil
}

// Constraints returns the declared rows
func (p *Problem) Constraints() []Constraint {
	return p.constraints
}

// SetObjective replaces the maximize objective
func (p *Problem) SetObjective(terms []Term) error {
	obj := make([]float64, len(p.names))
	for _, t := range terms {
		if int(t.Var) < 0 || int(t.Var) >= len(p.names) {
			return fmt.Errorf("%w in objective", ErrUnknownVariable)
		}
		obj[t.Var] += t.Coef
	}
	p.objective = obj
	return nil
}

// SetHint records a known assignment (the selected variables set to 1) that
// solvers may start from. An infeasible hint is ignored.
func (p *Problem) SetHint(selected []Var) error {
	hint := make([]float64, len(p.names))
	for _, v := range selected {
		if int(v) < 0 || int(v) >= len(p.names) {
			return fmt.Errorf("%w in hint", ErrUnknownVariable)
		}
		hint[v] = 1
	}
	p.hint = hint
	return nil
}

// Hint returns the assignment recorded by SetHint, or nil
func (p *Problem) Hint() []float64 {
	return p.hint
}

// Status is the tri-state outcome of a solve
type Status int

const (
	// Optimal means an integer solution was found and proven optimal
	Optimal Status = iota
	// Infeasible means no assignment satisfies the constraints
	Infeasible
	// NotSolved covers every other outcome: node limit, cancellation,
	// numerical failure. No values are reported.
	NotSolved
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	}
	return "not_solved"
}

// Solution is a solve outcome. Values is only populated when Optimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Value returns the 0/1 value of v in an optimal solution
func (s *Solution) Value(v Var) float64 {
	if s == nil || s.Status != Optimal || int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Selected reports whether v is set in an optimal solution
func (s *Solution) Selected(v Var) bool {
	return s.Value(v) > 0.5
}

// Solver is any backend that honours the binary/linear/tri-state contract
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}
