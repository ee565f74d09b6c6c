/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. The ledger
 * procedures run as single transactions: the touched balance rows are locked
 * with SELECT ... FOR UPDATE, the DEBIT/CREDIT operation pair is inserted
 * with one shared timestamp, both cached amounts are recomputed from the
 * operations table, and the counterparty sums are verified in both
 * directions before the commit. Any failure rolls the whole transaction
 * back, so no partial ledger state is ever observable.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serchip/wallet-service/internal/domain"
	"github.com/shopspring/decimal"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db             *pgxpool.Pool
	systemUsername string
}

// NewPostgresRepository creates a new instance of PostgresRepository.
// systemUsername names the reserved user owning the system reserve balance.
func NewPostgresRepository(db *pgxpool.Pool, systemUsername string) *PostgresRepository {
	return &PostgresRepository{db: db, systemUsername: systemUsername}
}

const selectAccountByBalanceID = `
	SELECT b.id, b.user_id, u.username, u.is_active, b.amount::text, b.currency
	FROM balances b
	JOIN users u ON u.id = b.user_id
	WHERE b.id = $1
`

const selectAccountByUsername = `
	SELECT b.id, b.user_id, u.username, u.is_active, b.amount::text, b.currency
	FROM balances b
	JOIN users u ON u.id = b.user_id
	WHERE u.username = $1
`

func scanBalanceAccount(row pgx.Row) (*domain.BalanceAccount, error) {
	var acct domain.BalanceAccount
	var amountText, currency string
	if err := row.Scan(&acct.ID, &acct.UserID, &acct.Username, &acct.IsActive, &amountText, &currency); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, err
	}
	acct.Amount = amount
	acct.Currency = domain.Currency(currency)
	return &acct, nil
}

// CreateAccount creates a user with a zero balance, or returns the existing
// balance when the username is already taken. The unique constraint on
// username makes concurrent creation safe: the loser of the race falls
// through to the select and sees the winner's row.
func (r *PostgresRepository) CreateAccount(ctx context.Context, username string) (*domain.BalanceAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx,
		"INSERT INTO users (username, is_active) VALUES ($1, true) ON CONFLICT (username) DO NOTHING RETURNING id",
		username,
	).Scan(&userID)
	switch {
	case err == nil:
		if _, err := tx.Exec(ctx, "INSERT INTO balances (user_id) VALUES ($1)", userID); err != nil {
			return nil, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		// Username already exists; its balance is selected below.
	default:
		return nil, err
	}

	acct, err := scanBalanceAccount(tx.QueryRow(ctx, selectAccountByUsername, username))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acct, nil
}

// GetBalance retrieves a balance joined with its owning user.
func (r *PostgresRepository) GetBalance(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error) {
	acct, err := scanBalanceAccount(r.db.QueryRow(ctx, selectAccountByBalanceID, balanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return acct, nil
}

// Credit tops up a balance from the system reserve. The reserve balance is
// created lazily inside the same transaction, guarded by the unique
// constraints on users.username and balances.user_id, and is allowed to go
// negative: it represents external money entering the ledger. Target and
// reserve rows are locked in ascending id order, the same discipline as
// Transfer, so a credit cannot deadlock against a transfer naming the
// reserve. A missing target rolls the whole transaction back, including any
// reserve creation.
func (r *PostgresRepository) Credit(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	systemID, err := r.ensureSystemBalance(ctx, tx)
	if err != nil {
		return nil, err
	}

	locked, err := lockBalances(ctx, tx, balanceID, systemID)
	if err != nil {
		return nil, err
	}
	if _, ok := locked[balanceID]; !ok {
		return nil, ErrBalanceNotFound
	}

	if err := recordOperationPair(ctx, tx, systemID, balanceID, amount); err != nil {
		return nil, err
	}
	if err := recomputeAmounts(ctx, tx, systemID, balanceID); err != nil {
		return nil, err
	}
	if err := verifyCounterpartySums(ctx, tx, systemID, balanceID); err != nil {
		return nil, err
	}

	acct, err := scanBalanceAccount(tx.QueryRow(ctx, selectAccountByBalanceID, balanceID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acct, nil
}

// Transfer moves amount between two balances. Both rows are locked in
// ascending id order to avoid deadlocks between opposing transfers, and the
// funds precondition is evaluated on the locked source row so concurrent
// transfers cannot overdraw it.
func (r *PostgresRepository) Transfer(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	locked, err := lockBalances(ctx, tx, fromBalanceID, toBalanceID)
	if err != nil {
		return nil, err
	}
	sourceAmount, ok := locked[fromBalanceID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	if sourceAmount.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}
	if _, ok := locked[toBalanceID]; !ok {
		return nil, ErrRecipientNotFound
	}

	if err := recordOperationPair(ctx, tx, fromBalanceID, toBalanceID, amount); err != nil {
		return nil, err
	}
	if err := recomputeAmounts(ctx, tx, fromBalanceID, toBalanceID); err != nil {
		return nil, err
	}
	if err := verifyCounterpartySums(ctx, tx, fromBalanceID, toBalanceID); err != nil {
		return nil, err
	}

	acct, err := scanBalanceAccount(tx.QueryRow(ctx, selectAccountByBalanceID, fromBalanceID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acct, nil
}

// ListOperations returns one page of a balance's ledger plus the unpaginated
// total for the same filters.
func (r *PostgresRepository) ListOperations(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM balances WHERE id = $1)", balanceID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBalanceNotFound
	}

	listSQL, countSQL, listArgs, countArgs, err := buildListQuery(balanceID, q)
	if err != nil {
		return nil, err
	}

	page := &domain.OperationPage{Items: []domain.Operation{}}
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&page.TotalCount); err != nil {
		return nil, err
	}
	if page.TotalCount == 0 {
		return page, nil
	}

	rows, err := r.db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var op domain.Operation
		var opType, amountText string
		if err := rows.Scan(&op.ID, &op.Created, &opType, &amountText, &op.OwnerBalanceID, &op.MoreBalanceID); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, err
		}
		op.OperationType = domain.OperationType(opType)
		op.Amount = amount
		page.Items = append(page.Items, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// ensureSystemBalance returns the system reserve balance id, creating the
// reserved system user (inactive) and its zero balance when absent. ON
// CONFLICT DO NOTHING on the unique keys makes concurrent first credits
// converge on a single reserve. The row is not locked here; the caller locks
// it together with the target through lockBalances.
func (r *PostgresRepository) ensureSystemBalance(ctx context.Context, tx pgx.Tx) (int64, error) {
	if _, err := tx.Exec(ctx,
		"INSERT INTO users (username, is_active) VALUES ($1, false) ON CONFLICT (username) DO NOTHING",
		r.systemUsername,
	); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO balances (user_id) SELECT id FROM users WHERE username = $1 ON CONFLICT (user_id) DO NOTHING",
		r.systemUsername,
	); err != nil {
		return 0, err
	}

	var id int64
	err := tx.QueryRow(ctx,
		"SELECT b.id FROM balances b JOIN users u ON u.id = b.user_id WHERE u.username = $1",
		r.systemUsername,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// lockBalancesSQL locks balance rows in ascending id order. Every mutating
// procedure takes its row locks through this one query, so two transactions
// touching the same pair of balances always acquire them in the same order.
const lockBalancesSQL = "SELECT id, amount::text FROM balances WHERE id = ANY($1) ORDER BY id FOR UPDATE"

// lockBalances locks the given balance rows in ascending id order and
// returns the current amount of each row found.
func lockBalances(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, lockBalancesSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[int64]decimal.Decimal, len(ids))
	for rows.Next() {
		var id int64
		var amountText string
		if err := rows.Scan(&id, &amountText); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, err
		}
		locked[id] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locked, nil
}

// recordOperationPair appends the two immutable rows of one money movement:
// a DEBIT owned by debitOwner and a CREDIT owned by creditOwner, with the
// same amount and the same timestamp, each naming the other as counterparty.
func recordOperationPair(ctx context.Context, tx pgx.Tx, debitOwnerID, creditOwnerID int64, amount decimal.Decimal) error {
	created := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		INSERT INTO operations (owner_balance_id, more_balance_id, created, operation_type, amount)
		VALUES ($1, $2, $3, 'DEBIT', $4::numeric), ($2, $1, $3, 'CREDIT', $4::numeric)`,
		debitOwnerID, creditOwnerID, created, amount.StringFixed(2),
	)
	return err
}

// recomputeAmounts re-derives the cached amount of each balance from its
// operations: sum of owned credits minus sum of owned debits, zero when the
// balance has no operations.
func recomputeAmounts(ctx context.Context, tx pgx.Tx, ids ...int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE balances SET amount = COALESCE((
			SELECT SUM(CASE WHEN o.operation_type = 'CREDIT' THEN o.amount ELSE -o.amount END)
			FROM operations o
			WHERE o.owner_balance_id = balances.id
		), 0)
		WHERE id = ANY($1)`,
		ids,
	)
	return err
}

// verifyCounterpartySums asserts, in both directions, that the credits one
// balance owns against the other equal the debits the other owns against it.
// A mismatch means the double-entry invariant broke; the caller must abort.
func verifyCounterpartySums(ctx context.Context, tx pgx.Tx, a, b int64) error {
	if err := verifyCounterpartySum(ctx, tx, a, b); err != nil {
		return err
	}
	return verifyCounterpartySum(ctx, tx, b, a)
}

func verifyCounterpartySum(ctx context.Context, tx pgx.Tx, a, b int64) error {
	var matched bool
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(o.amount) FILTER (WHERE o.owner_balance_id = $1 AND o.more_balance_id = $2 AND o.operation_type = 'CREDIT'), 0)
		     = COALESCE(SUM(o.amount) FILTER (WHERE o.owner_balance_id = $2 AND o.more_balance_id = $1 AND o.operation_type = 'DEBIT'), 0)
		FROM operations o`,
		a, b,
	).Scan(&matched)
	if err != nil {
		return err
	}
	if !matched {
		return ErrIntegrityViolation
	}
	return nil
}
