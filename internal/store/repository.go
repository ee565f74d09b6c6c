/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access performed by the wallet-service. The ledger procedures (credit,
 * transfer) are whole-transaction methods: each runs its record-pair,
 * recompute and verification steps inside a single database transaction so
 * that no partial ledger state is ever visible to callers.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/serchip/wallet-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// CreateAccount returns the balance for username, creating the user and
	// a zero balance when absent. Idempotent by username: calling it twice
	// returns the same balance and creates exactly one user/balance pair.
	CreateAccount(ctx context.Context, username string) (*domain.BalanceAccount, error)

	// GetBalance returns the balance joined with its owning user.
	// Fails with ErrBalanceNotFound when the id does not exist.
	GetBalance(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error)

	// Credit tops up balanceID from the system reserve balance, creating the
	// reserve (system user + zero balance) on first use. Inside one
	// transaction it records the DEBIT/CREDIT operation pair, recomputes
	// both cached amounts from the operations and verifies the counterparty
	// sums in both directions. The system balance may go negative.
	// Returns the refreshed target balance.
	Credit(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)

	// Transfer moves amount from one balance to another with the same
	// record-pair + recompute + verify sequence as Credit. The funds
	// precondition is checked on the row-locked source balance inside the
	// transaction; failure returns ErrInsufficientFunds and leaves no trace.
	// Returns the refreshed source balance.
	Transfer(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)

	// ListOperations returns the operations owned by balanceID, narrowed by
	// the caller-supplied filters, ordered by the sort spec (insertion order
	// by default) and paginated. The returned total honors the filters but
	// ignores pagination. Fails with ErrBalanceNotFound when the balance
	// does not exist.
	ListOperations(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error)
}
