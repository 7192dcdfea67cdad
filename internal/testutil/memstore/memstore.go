// Package memstore is an in-memory repository.Querier for unit tests. Transactions run
// against a copy of the state that replaces the live state only when fn succeeds, and
// errors mirror what Postgres returns (pgx.ErrNoRows, unique violations).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/poolcredit/internal/models"
	"github.com/ayo6706/poolcredit/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Store serializes all transactions behind one mutex.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
}

type state struct {
	treasury *models.TreasuryConfig
	entries  []models.TreasuryEntry
	loans    map[string]models.Loan
	loanSeq  map[string]int
	assets   map[string]models.Asset
	accounts map[string]models.TokenAccount
	audit    []repository.InsertAuditLogParams
}

func New() *Store {
	return &Store{
		state: &state{
			loans:    map[string]models.Loan{},
			loanSeq:  map[string]int{},
			assets:   map[string]models.Asset{},
			accounts: map[string]models.TokenAccount{},
		},
		faults: map[string]error{},
	}
}

func (s *state) clone() *state {
	c := &state{
		entries:  append([]models.TreasuryEntry(nil), s.entries...),
		loans:    make(map[string]models.Loan, len(s.loans)),
		loanSeq:  make(map[string]int, len(s.loanSeq)),
		assets:   make(map[string]models.Asset, len(s.assets)),
		accounts: make(map[string]models.TokenAccount, len(s.accounts)),
		audit:    append([]repository.InsertAuditLogParams(nil), s.audit...),
	}
	if s.treasury != nil {
		cfg := *s.treasury
		c.treasury = &cfg
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.loanSeq {
		c.loanSeq[k] = v
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

// Queries returns an autocommit query set.
func (s *Store) Queries() repository.Querier {
	return &querier{store: s}
}

// RunInTx applies fn's writes atomically; any error discards them.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&querier{store: s, tx: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// RunInReadTx runs fn against a snapshot taken at the start. Writes made by other
// transactions while fn runs are not visible to it, and fn's own writes are discarded.
func (s *Store) RunInReadTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()
	return fn(&querier{store: s, tx: snapshot})
}

// FailOn makes the named Querier method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// AuditLog returns a copy of the audit records written so far.
func (s *Store) AuditLog() []repository.InsertAuditLogParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.InsertAuditLogParams(nil), s.state.audit...)
}

// TreasuryEntries returns a copy of the journaled treasury entries.
func (s *Store) TreasuryEntries() []models.TreasuryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TreasuryEntry(nil), s.state.entries...)
}

type querier struct {
	store *Store
	tx    *state
}

// view runs fn against the transaction state, or the live state under the store lock.
func (q *querier) view(method string, fn func(st *state) error) error {
	if q.tx != nil {
		if err := q.store.faults[method]; err != nil {
			return err
		}
		return fn(q.tx)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	if err := q.store.faults[method]; err != nil {
		return err
	}
	return fn(q.store.state)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", Message: fmt.Sprintf("duplicate key value violates unique constraint %q", constraint), ConstraintName: constraint}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", Message: fmt.Sprintf("insert violates foreign key constraint %q", constraint), ConstraintName: constraint}
}

func (q *querier) GetTreasuryConfig(ctx context.Context) (models.TreasuryConfig, error) {
	var out models.TreasuryConfig
	err := q.view("GetTreasuryConfig", func(st *state) error {
		if st.treasury == nil {
			return pgx.ErrNoRows
		}
		out = *st.treasury
		return nil
	})
	return out, err
}

func (q *querier) GetTreasuryConfigForUpdate(ctx context.Context) (models.TreasuryConfig, error) {
	var out models.TreasuryConfig
	err := q.view("GetTreasuryConfigForUpdate", func(st *state) error {
		if st.treasury == nil {
			return pgx.ErrNoRows
		}
		out = *st.treasury
		return nil
	})
	return out, err
}

func (q *querier) InsertTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) error {
	return q.view("InsertTreasuryConfig", func(st *state) error {
		if st.treasury != nil {
			return uniqueViolation("treasury_config_pkey")
		}
		now := time.Now().UTC()
		cfg.CreatedAt, cfg.UpdatedAt = now, now
		st.treasury = &cfg
		return nil
	})
}

func (q *querier) UpdateTreasuryConfig(ctx context.Context, cfg models.TreasuryConfig) (int64, error) {
	var rows int64
	err := q.view("UpdateTreasuryConfig", func(st *state) error {
		if st.treasury == nil {
			return nil
		}
		st.treasury.Balance = cfg.Balance
		st.treasury.Surplus = cfg.Surplus
		st.treasury.FixedFee = cfg.FixedFee
		st.treasury.Paused = cfg.Paused
		st.treasury.UpdatedAt = time.Now().UTC()
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) InsertTreasuryEntry(ctx context.Context, entry models.TreasuryEntry) error {
	return q.view("InsertTreasuryEntry", func(st *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.CreatedAt = time.Now().UTC()
		st.entries = append(st.entries, entry)
		return nil
	})
}

func (q *querier) GetTreasuryEntryNet(ctx context.Context, ledger string) (decimal.Decimal, error) {
	net := decimal.Zero
	err := q.view("GetTreasuryEntryNet", func(st *state) error {
		for _, e := range st.entries {
			if e.Ledger != ledger {
				continue
			}
			if e.Direction == "credit" {
				net = net.Add(decimal.NewFromUint64(e.Amount))
			} else {
				net = net.Sub(decimal.NewFromUint64(e.Amount))
			}
		}
		return nil
	})
	return net, err
}

func (q *querier) InsertLoan(ctx context.Context, loan models.Loan) error {
	return q.view("InsertLoan", func(st *state) error {
		if _, ok := st.loans[loan.Pool]; ok {
			return uniqueViolation("loans_pkey")
		}
		now := time.Now().UTC()
		loan.CreatedAt, loan.UpdatedAt = now, now
		st.loans[loan.Pool] = loan
		st.loanSeq[loan.Pool] = len(st.loanSeq)
		return nil
	})
}

func (q *querier) GetLoan(ctx context.Context, pool string) (models.Loan, error) {
	return q.getLoan("GetLoan", pool)
}

func (q *querier) GetLoanForUpdate(ctx context.Context, pool string) (models.Loan, error) {
	return q.getLoan("GetLoanForUpdate", pool)
}

func (q *querier) getLoan(method, pool string) (models.Loan, error) {
	var out models.Loan
	err := q.view(method, func(st *state) error {
		loan, ok := st.loans[pool]
		if !ok {
			return pgx.ErrNoRows
		}
		out = loan
		return nil
	})
	return out, err
}

func (q *querier) UpdateLoan(ctx context.Context, loan models.Loan) (int64, error) {
	var rows int64
	err := q.view("UpdateLoan", func(st *state) error {
		cur, ok := st.loans[loan.Pool]
		if !ok || (cur.Repaid && !loan.Repaid) {
			return nil
		}
		cur.PrincipalReserveAmount = loan.PrincipalReserveAmount
		cur.PrincipalCollateralAmount = loan.PrincipalCollateralAmount
		cur.LPAmount = loan.LPAmount
		cur.Repaid = loan.Repaid
		cur.SettledVia = loan.SettledVia
		cur.SettledBy = loan.SettledBy
		cur.ReserveReturned = loan.ReserveReturned
		cur.SurplusReserveAmount = loan.SurplusReserveAmount
		cur.CollateralReceived = loan.CollateralReceived
		cur.SettledAt = loan.SettledAt
		cur.UpdatedAt = time.Now().UTC()
		st.loans[loan.Pool] = cur
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) ListLoansByBorrower(ctx context.Context, arg repository.ListLoansByBorrowerParams) ([]models.Loan, error) {
	var out []models.Loan
	err := q.view("ListLoansByBorrower", func(st *state) error {
		var matched []models.Loan
		for _, loan := range st.loans {
			if loan.Borrower == arg.Borrower {
				matched = append(matched, loan)
			}
		}
		// newest first
		sort.Slice(matched, func(i, j int) bool {
			return st.loanSeq[matched[i].Pool] > st.loanSeq[matched[j].Pool]
		})
		out = page(matched, arg.Offset, arg.Limit)
		return nil
	})
	return out, err
}

func (q *querier) ListExpiredOpenLoans(ctx context.Context, arg repository.ListExpiredOpenLoansParams) ([]models.Loan, error) {
	var out []models.Loan
	err := q.view("ListExpiredOpenLoans", func(st *state) error {
		expired := expiredOpen(st, arg.NowUnix)
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].StartTime.Before(expired[j].StartTime)
		})
		out = page(expired, 0, arg.Limit)
		return nil
	})
	return out, err
}

func (q *querier) CountExpiredOpenLoans(ctx context.Context, nowUnix int64) (int64, error) {
	var n int64
	err := q.view("CountExpiredOpenLoans", func(st *state) error {
		n = int64(len(expiredOpen(st, nowUnix)))
		return nil
	})
	return n, err
}

func expiredOpen(st *state, nowUnix int64) []models.Loan {
	var out []models.Loan
	for _, loan := range st.loans {
		if !loan.Repaid && loan.DeadlineUnix() < nowUnix {
			out = append(out, loan)
		}
	}
	return out
}

func page(loans []models.Loan, offset, limit int32) []models.Loan {
	if int(offset) >= len(loans) {
		return nil
	}
	loans = loans[offset:]
	if limit > 0 && int(limit) < len(loans) {
		loans = loans[:limit]
	}
	return loans
}

func (q *querier) InsertAsset(ctx context.Context, asset models.Asset) error {
	return q.view("InsertAsset", func(st *state) error {
		if _, ok := st.assets[asset.ID]; ok {
			return uniqueViolation("assets_pkey")
		}
		asset.CreatedAt = time.Now().UTC()
		st.assets[asset.ID] = asset
		return nil
	})
}

func (q *querier) GetAsset(ctx context.Context, id string) (models.Asset, error) {
	return q.getAsset("GetAsset", id)
}

func (q *querier) GetAssetForUpdate(ctx context.Context, id string) (models.Asset, error) {
	return q.getAsset("GetAssetForUpdate", id)
}

func (q *querier) getAsset(method, id string) (models.Asset, error) {
	var out models.Asset
	err := q.view(method, func(st *state) error {
		asset, ok := st.assets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = asset
		return nil
	})
	return out, err
}

func (q *querier) UpdateAsset(ctx context.Context, asset models.Asset) (int64, error) {
	var rows int64
	err := q.view("UpdateAsset", func(st *state) error {
		cur, ok := st.assets[asset.ID]
		if !ok {
			return nil
		}
		cur.Supply = asset.Supply
		cur.MintAuthority = asset.MintAuthority
		cur.FreezeAuthority = asset.FreezeAuthority
		st.assets[asset.ID] = cur
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) InsertTokenAccount(ctx context.Context, account models.TokenAccount) error {
	return q.view("InsertTokenAccount", func(st *state) error {
		if _, ok := st.accounts[account.Address]; ok {
			return uniqueViolation("token_accounts_pkey")
		}
		if _, ok := st.assets[account.Asset]; !ok {
			return foreignKeyViolation("token_accounts_asset_fkey")
		}
		now := time.Now().UTC()
		account.CreatedAt, account.UpdatedAt = now, now
		st.accounts[account.Address] = account
		return nil
	})
}

func (q *querier) GetTokenAccount(ctx context.Context, address string) (models.TokenAccount, error) {
	return q.getTokenAccount("GetTokenAccount", address)
}

func (q *querier) GetTokenAccountForUpdate(ctx context.Context, address string) (models.TokenAccount, error) {
	return q.getTokenAccount("GetTokenAccountForUpdate", address)
}

func (q *querier) getTokenAccount(method, address string) (models.TokenAccount, error) {
	var out models.TokenAccount
	err := q.view(method, func(st *state) error {
		acc, ok := st.accounts[address]
		if !ok {
			return pgx.ErrNoRows
		}
		out = acc
		return nil
	})
	return out, err
}

func (q *querier) SetTokenAccountAmount(ctx context.Context, address string, amount uint64) (int64, error) {
	var rows int64
	err := q.view("SetTokenAccountAmount", func(st *state) error {
		acc, ok := st.accounts[address]
		if !ok {
			return nil
		}
		acc.Amount = amount
		acc.UpdatedAt = time.Now().UTC()
		st.accounts[address] = acc
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.view("InsertAuditLog", func(st *state) error {
		st.audit = append(st.audit, arg)
		id = int64(len(st.audit))
		return nil
	})
	return id, err
}

var _ repository.Querier = (*querier)(nil)
