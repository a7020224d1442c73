package marketplace

import (
	"gigflow/internal/models"
	"gigflow/internal/money"
)

// Funding is the budget reconciliation of a hire selection.
type Funding struct {
	Fundable   bool         `json:"fundable"`
	MissingFee bool         `json:"missing_fee"`
	OverBudget bool         `json:"over_budget"`
	Total      money.Amount `json:"total"`
}

// budgetLimit returns the gig budget when one is defined. Zero counts as
// "a combinar", the same as null.
func budgetLimit(b money.Amount) (money.Cents, bool) {
	if !b.Valid || b.Cents <= 0 {
		return 0, false
	}
	return b.Cents, true
}

// CanFundSelection sums the expected fees of selection against the gig's
// total budget. An empty selection is never fundable.
func CanFundSelection(budget money.Amount, selection []models.Application) Funding {
	var f Funding
	var total money.Cents
	for i := range selection {
		fee := selection[i].ExpectedFee
		if !fee.Valid {
			f.MissingFee = true
			continue
		}
		total += fee.Cents
	}
	if limit, ok := budgetLimit(budget); ok && total > limit {
		f.OverBudget = true
	}
	f.Total = money.NewAmount(total)
	f.Fundable = len(selection) > 0 && !f.MissingFee && !f.OverBudget
	return f
}
