/**
 * @description
 * This file contains the core business logic for the wallet-service. The
 * `Service` struct orchestrates the ledger use cases: account creation,
 * balance reads, crediting from the system reserve, transfers between
 * balances, and filtered operation listings. All transactional guarantees
 * live in the repository; the service validates input, delegates, and
 * publishes a ledger event after each committed movement.
 *
 * Event publishing is best effort: a broker failure is logged and the HTTP
 * response still reflects the committed ledger state.
 *
 * @dependencies
 * - context, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For event id generation.
 * - github.com/shopspring/decimal: Fixed-point amounts.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/serchip/wallet-service/internal/domain"
	"github.com/serchip/wallet-service/internal/store"
	"github.com/serchip/wallet-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	eventExchange string
}

// NewService creates a new wallet service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, eventExchange string) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		eventExchange: eventExchange,
	}
}

// CreateAccount returns the balance for username, creating the user and a
// zero balance when absent.
func (s *Service) CreateAccount(ctx context.Context, username string) (*domain.BalanceAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	return s.repo.CreateAccount(ctx, username)
}

// GetBalance returns the balance with the given id.
func (s *Service) GetBalance(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error) {
	return s.repo.GetBalance(ctx, balanceID)
}

// Credit tops up a balance from the system reserve and returns the refreshed
// balance.
func (s *Service) Credit(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	acct, err := s.repo.Credit(ctx, balanceID, amount)
	if err != nil {
		return nil, err
	}
	s.publishLedgerEvent(ctx, rabbitmq.LedgerOperationEvent{
		EventID:   uuid.New(),
		Kind:      "credited",
		BalanceID: acct.ID,
		Amount:    amount.StringFixed(2),
		Currency:  string(acct.Currency),
		Timestamp: time.Now().UTC(),
	}, rabbitmq.RoutingKeyBalanceCredited)
	return acct, nil
}

// Transfer moves amount between two balances and returns the refreshed
// source balance.
func (s *Service) Transfer(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	acct, err := s.repo.Transfer(ctx, fromBalanceID, toBalanceID, amount)
	if err != nil {
		return nil, err
	}
	s.publishLedgerEvent(ctx, rabbitmq.LedgerOperationEvent{
		EventID:               uuid.New(),
		Kind:                  "transferred",
		BalanceID:             acct.ID,
		CounterpartyBalanceID: toBalanceID,
		Amount:                amount.StringFixed(2),
		Currency:              string(acct.Currency),
		Timestamp:             time.Now().UTC(),
	}, rabbitmq.RoutingKeyBalanceTransferred)
	return acct, nil
}

// ListOperations returns one page of a balance's ledger.
func (s *Service) ListOperations(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error) {
	return s.repo.ListOperations(ctx, balanceID, q)
}

// validateAmount rejects non-positive values and values with sub-cent
// precision. Amounts are stored as NUMERIC(12, 2).
func validateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Service) publishLedgerEvent(ctx context.Context, event rabbitmq.LedgerOperationEvent, routingKey string) {
	if err := s.eventProducer.PublishLedgerOperationEvent(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=wallet_service msg=\"ledger event publish failed\" kind=%s balance_id=%d err=%v", event.Kind, event.BalanceID, err)
	}
}
