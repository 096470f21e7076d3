package queue

import "fmt"

// DependentRollbackError is the synthesized reason passed to a
// mutation's error callback when it survives a sibling's failure only
// to have its own forward patches fail to re-apply during that
// sibling's rebase (spec §4.D step 3.d, §7).
type DependentRollbackError struct {
	MutationID uint64
	Cause      error
}

func (e *DependentRollbackError) Error() string {
	return fmt.Sprintf("dependent mutation %d rolled back during rebase: %v", e.MutationID, e.Cause)
}

func (e *DependentRollbackError) Unwrap() error { return e.Cause }
