package domain

// Reserve asset and loan terms.
const (
	// WrappedNativeAsset is the wrapped native reserve asset used on mainnet deployments.
	WrappedNativeAsset = "So11111111111111111111111111111111111111112"

	ReserveDecimals int32 = 9

	LoanDurationSeconds int64 = 60 * 60 * 24
)

// Address derivation seeds.
const (
	SeedConfig   = "config"
	SeedVault    = "vault"
	SeedSurplus  = "surplus"
	SeedPoolLoan = "pool_loan"
	SeedLPToken  = "lp_token"
)

const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"

	// Treasury ledgers. LedgerBalance backs TreasuryConfig.Balance, LedgerSurplus backs TreasuryConfig.Surplus.
	LedgerBalance = "balance"
	LedgerSurplus = "surplus"

	EntryReasonDeposit         = "deposit"
	EntryReasonWithdraw        = "withdraw"
	EntryReasonLoanFee         = "loan_fee"
	EntryReasonLoanPrincipal   = "loan_principal"
	EntryReasonSettlement      = "settlement_return"
	EntryReasonSurplus         = "settlement_surplus"
	EntryReasonSurplusWithdraw = "surplus_withdraw"
	EntryReasonResidualSweep   = "residual_lp_sweep"

	LoanStatusOpen       = "OPEN"
	LoanStatusRepaid     = "REPAID"
	LoanStatusLiquidated = "LIQUIDATED"

	SettlementPathRepay       = "repay"
	SettlementPathLiquidation = "liquidation"
)
