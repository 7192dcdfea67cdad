package service

import (
	"fmt"
	"strings"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/ayo6706/poolcredit/internal/models"
)

var loanTransitions = map[string]map[string]struct{}{
	domain.LoanStatusOpen: {
		domain.LoanStatusRepaid:     {},
		domain.LoanStatusLiquidated: {},
	},
	domain.LoanStatusRepaid:     {},
	domain.LoanStatusLiquidated: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := loanTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// loanStatus derives the lifecycle state from the repaid flag and settlement path.
func loanStatus(loan models.Loan) string {
	if !loan.Repaid {
		return domain.LoanStatusOpen
	}
	if loan.SettledVia == domain.SettlementPathLiquidation {
		return domain.LoanStatusLiquidated
	}
	return domain.LoanStatusRepaid
}

func statusForPath(path string) string {
	if path == domain.SettlementPathLiquidation {
		return domain.LoanStatusLiquidated
	}
	return domain.LoanStatusRepaid
}

func checkLoanTransition(loan models.Loan, next string) error {
	current := loanStatus(loan)
	if current != domain.LoanStatusOpen {
		return domain.ErrLoanAlreadyRepaid
	}
	if !canTransition(current, next) {
		return fmt.Errorf("invalid loan state transition: %s -> %s", current, next)
	}
	return nil
}
