/**
 * @description
 * This file defines the core domain models for the wallet-service: users,
 * balances and the append-only operation ledger, plus the query options used
 * by the operation listing endpoint.
 *
 * @notes
 * - Amounts are `decimal.Decimal` values with two fraction digits. They map
 *   to NUMERIC(12,2) columns and never pass through float64, which avoids
 *   floating-point inaccuracies with financial data.
 * - A balance's `amount` is a cached projection over its operations
 *   (sum of credits minus sum of debits); the operations table is the
 *   source of truth.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the closed set of supported currencies. Only USD is defined.
type Currency string

const CurrencyUSD Currency = "USD"

// OperationType distinguishes the two legs of a ledger entry pair.
type OperationType string

const (
	OperationDebit  OperationType = "DEBIT"
	OperationCredit OperationType = "CREDIT"
)

// User is the identity anchor owning exactly one balance.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

// BalanceAccount is a balance joined with its owning user, as returned by
// every read or mutation of the ledger.
type BalanceAccount struct {
	ID       int64           `json:"id"`
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	IsActive bool            `json:"is_active"`
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// Operation is one immutable row of the ledger. Every money movement between
// two balances produces exactly two Operation rows with identical amount and
// timestamp: a DEBIT owned by the sender and a CREDIT owned by the receiver,
// each pointing at the other through MoreBalanceID. Rows are never updated
// or deleted; if a referenced balance is removed the reference is cleared
// (SET NULL) but the row survives.
type Operation struct {
	ID             int64           `json:"id"`
	Created        time.Time       `json:"created"`
	OperationType  OperationType   `json:"operation_type"`
	Amount         decimal.Decimal `json:"amount"`
	OwnerBalanceID *int64          `json:"owner_balance_id"`
	MoreBalanceID  *int64          `json:"more_balance_id"`
}

// OperationFilter is one caller-supplied (field, value, op) triple for the
// operation listing endpoint. Value may be a scalar or a pipe/comma
// delimited list for the set-membership operators.
type OperationFilter struct {
	Field string
	Value string
	Op    string
}

// OperationSort is one caller-supplied (sort_by, sort_order) pair.
type OperationSort struct {
	Field     string
	Direction string
}

// OperationQuery bundles the filtering, sorting and pagination options of
// the operation listing endpoint.
type OperationQuery struct {
	Filters []OperationFilter
	Sorts   []OperationSort
	Limit   int
	Offset  int
}

// OperationPage is one page of ledger entries. TotalCount ignores
// pagination but honors the filters.
type OperationPage struct {
	Items      []Operation `json:"items"`
	TotalCount int64       `json:"totalCount"`
}
