package payment

import (
	"fmt"

	"github.com/cassiomorais/notifications/internal/domain/errors"
)

// Ordering is the outcome of comparing two transaction states.
type Ordering int

const (
	// Regress means the candidate state ranks the same as or below the current one.
	Regress Ordering = iota
	// Advance means the candidate state ranks strictly above the current one.
	Advance
)

func (o Ordering) String() string {
	if o == Advance {
		return "advance"
	}
	return "regress"
}

// Success and Failure share the terminal rank: once either is reached no
// notification can move the transaction again.
var stateRanks = map[TransactionState]int{
	StateInitial: 0,
	StatePending: 1,
	StateSuccess: 2,
	StateFailure: 2,
}

// IsValid checks that the state belongs to the closed set of transaction states.
func (s TransactionState) IsValid() bool {
	_, ok := stateRanks[s]
	return ok
}

// CompareStates decides whether a transaction in state current may move to candidate.
func CompareStates(current, candidate TransactionState) (Ordering, error) {
	currentRank, okCurrent := stateRanks[current]
	candidateRank, okCandidate := stateRanks[candidate]
	if !okCurrent || !okCandidate {
		return Regress, fmt.Errorf("wrong transaction state passed. currentState: %q, newState: %q: %w",
			current, candidate, errors.ErrUnknownTransactionState)
	}
	if candidateRank > currentRank {
		return Advance, nil
	}
	return Regress, nil
}
