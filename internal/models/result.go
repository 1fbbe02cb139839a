package models

// Status tags the outcome of an optimization call. Anything other than
// StatusOK means no squad is available for the given inputs.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInfeasible       Status = "infeasible"
	StatusEmptyCombination Status = "empty_combination"
)

// SquadResult is the outcome of a single-squad optimization
type SquadResult struct {
	Status Status `json:"status"`
	Squad  Squad  `json:"squad"`
	// Objective is the summed weight of the selected players
	Objective float64 `json:"objective"`
	Detail    string  `json:"detail,omitempty"`
}

// OK reports whether the result carries a valid squad
func (r SquadResult) OK() bool {
	return r.Status == StatusOK
}

// Infeasible builds a no-solution result with a reason
func Infeasible(detail string) SquadResult {
	return SquadResult{Status: StatusInfeasible, Detail: detail}
}

// RankedSquad is a squad paired with its evaluation
type RankedSquad struct {
	Squad      Squad      `json:"squad"`
	Evaluation Evaluation `json:"evaluation"`
}

// TransferCandidate pairs a removed and an added player with the
// evaluation of the resulting squad
type TransferCandidate struct {
	Out        Player     `json:"out"`
	In         Player     `json:"in"`
	Squad      Squad      `json:"squad"`
	Evaluation Evaluation `json:"evaluation"`
}

// IsHold reports whether the candidate keeps the outgoing player
func (t TransferCandidate) IsHold() bool {
	return t.Out.ID == t.In.ID
}
