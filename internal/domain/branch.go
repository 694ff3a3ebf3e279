package domain

import "time"

// TimelineBranch is an independent date cursor representing one
// counterfactual continuation of the simulation
type TimelineBranch struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BranchedFrom Date      `json:"branched_from"`
	CurrentDate  Date      `json:"current_date"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a copy safe to hand to observers
func (b *TimelineBranch) Clone() *TimelineBranch {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
