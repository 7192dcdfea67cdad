package custody

import "github.com/ayo6706/poolcredit/internal/domain"

// Authority is the capability to move tokens out of accounts owned by its subject.
// Outside this package an Authority can only be built from an authenticated signer
// identity or from derivation seeds, so the treasury and loan authorities are never
// represented as plain owner strings.
type Authority struct {
	subject string
}

// Signer is the authority of an authenticated caller.
func Signer(identity string) Authority {
	return Authority{subject: identity}
}

// Derived is the authority of an address derived from seeds.
func Derived(seeds ...string) Authority {
	return Authority{subject: DeriveAddress(seeds...)}
}

// TreasuryAuthority controls the vault and surplus accounts.
func TreasuryAuthority() Authority {
	return Derived(domain.SeedConfig)
}

// LoanAuthority controls the LP custody account of the loan keyed by pool.
func LoanAuthority(pool string) Authority {
	return Derived(domain.SeedPoolLoan, pool)
}

// Subject is the owner identity the authority acts for.
func (a Authority) Subject() string {
	return a.subject
}

func (a Authority) IsZero() bool {
	return a.subject == ""
}
