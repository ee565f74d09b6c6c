package app

import (
	"context"
	"errors"
	"testing"

	"github.com/serchip/wallet-service/internal/domain"
	"github.com/serchip/wallet-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

type mockRepository struct {
	createAccountFn  func(ctx context.Context, username string) (*domain.BalanceAccount, error)
	getBalanceFn     func(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error)
	creditFn         func(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)
	transferFn       func(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error)
	listOperationsFn func(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error)
}

func (m *mockRepository) CreateAccount(ctx context.Context, username string) (*domain.BalanceAccount, error) {
	return m.createAccountFn(ctx, username)
}

func (m *mockRepository) GetBalance(ctx context.Context, balanceID int64) (*domain.BalanceAccount, error) {
	return m.getBalanceFn(ctx, balanceID)
}

func (m *mockRepository) Credit(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	return m.creditFn(ctx, balanceID, amount)
}

func (m *mockRepository) Transfer(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
	return m.transferFn(ctx, fromBalanceID, toBalanceID, amount)
}

func (m *mockRepository) ListOperations(ctx context.Context, balanceID int64, q domain.OperationQuery) (*domain.OperationPage, error) {
	return m.listOperationsFn(ctx, balanceID, q)
}

type recordingPublisher struct {
	exchanges   []string
	routingKeys []string
	events      []rabbitmq.LedgerOperationEvent
	publishErr  error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return p.publishErr
}

func (p *recordingPublisher) PublishLedgerOperationEvent(ctx context.Context, exchange, routingKey string, event rabbitmq.LedgerOperationEvent) error {
	p.exchanges = append(p.exchanges, exchange)
	p.routingKeys = append(p.routingKeys, routingKey)
	p.events = append(p.events, event)
	return p.publishErr
}

func (p *recordingPublisher) Close() {}

func testAccount(id int64, username string, amount string) *domain.BalanceAccount {
	return &domain.BalanceAccount{
		ID:       id,
		UserID:   id,
		Username: username,
		IsActive: true,
		Amount:   decimal.RequireFromString(amount),
		Currency: domain.CurrencyUSD,
	}
}

func TestCreateAccount_TrimsUsername(t *testing.T) {
	var gotUsername string
	repo := &mockRepository{
		createAccountFn: func(ctx context.Context, username string) (*domain.BalanceAccount, error) {
			gotUsername = username
			return testAccount(1, username, "0"), nil
		},
	}
	svc := NewService(repo, &recordingPublisher{}, "ledger.events")

	acct, err := svc.CreateAccount(context.Background(), "  alice  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUsername != "alice" {
		t.Fatalf("expected trimmed username, repo saw %q", gotUsername)
	}
	if acct.Username != "alice" {
		t.Fatalf("expected alice, got %q", acct.Username)
	}
}

func TestCreateAccount_RejectsEmptyUsername(t *testing.T) {
	repo := &mockRepository{
		createAccountFn: func(ctx context.Context, username string) (*domain.BalanceAccount, error) {
			t.Fatal("repository must not be called for empty username")
			return nil, nil
		},
	}
	svc := NewService(repo, &recordingPublisher{}, "ledger.events")

	_, err := svc.CreateAccount(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("expected ErrEmptyUsername, got %v", err)
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "positive integer", amount: "22"},
		{name: "two decimal places", amount: "10.50"},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-1", wantErr: true},
		{name: "sub cent precision", amount: "1.005", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr && !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCredit_PublishesEvent(t *testing.T) {
	repo := &mockRepository{
		creditFn: func(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
			return testAccount(balanceID, "alice", "32.00"), nil
		},
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, "ledger.events")

	acct, err := svc.Credit(context.Background(), 3, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Amount.String() != "32" {
		t.Fatalf("expected refreshed amount 32, got %s", acct.Amount)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if publisher.exchanges[0] != "ledger.events" {
		t.Fatalf("expected configured exchange, got %q", publisher.exchanges[0])
	}
	if publisher.routingKeys[0] != rabbitmq.RoutingKeyBalanceCredited {
		t.Fatalf("expected credited routing key, got %q", publisher.routingKeys[0])
	}
	if event.Kind != "credited" || event.BalanceID != 3 || event.Amount != "10.00" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestCredit_InvalidAmountSkipsRepository(t *testing.T) {
	repo := &mockRepository{
		creditFn: func(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
			t.Fatal("repository must not be called for invalid amount")
			return nil, nil
		},
	}
	svc := NewService(repo, &recordingPublisher{}, "ledger.events")

	_, err := svc.Credit(context.Background(), 3, decimal.RequireFromString("-5"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTransfer_PublishesEventWithCounterparty(t *testing.T) {
	repo := &mockRepository{
		transferFn: func(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
			return testAccount(fromBalanceID, "alice", "22.00"), nil
		},
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, "ledger.events")

	if _, err := svc.Transfer(context.Background(), 3, 4, decimal.RequireFromString("10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if publisher.routingKeys[0] != rabbitmq.RoutingKeyBalanceTransferred {
		t.Fatalf("expected transferred routing key, got %q", publisher.routingKeys[0])
	}
	if event.Kind != "transferred" || event.BalanceID != 3 || event.CounterpartyBalanceID != 4 {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestTransfer_RepositoryErrorSkipsEvent(t *testing.T) {
	repoErr := errors.New("boom")
	repo := &mockRepository{
		transferFn: func(ctx context.Context, fromBalanceID, toBalanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
			return nil, repoErr
		},
	}
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, "ledger.events")

	_, err := svc.Transfer(context.Background(), 3, 4, decimal.RequireFromString("10"))
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event must be published on failure, got %d", len(publisher.events))
	}
}

func TestCredit_PublishFailureDoesNotFailRequest(t *testing.T) {
	repo := &mockRepository{
		creditFn: func(ctx context.Context, balanceID int64, amount decimal.Decimal) (*domain.BalanceAccount, error) {
			return testAccount(balanceID, "alice", "10.00"), nil
		},
	}
	publisher := &recordingPublisher{publishErr: errors.New("broker down")}
	svc := NewService(repo, publisher, "ledger.events")

	if _, err := svc.Credit(context.Background(), 3, decimal.RequireFromString("10")); err != nil {
		t.Fatalf("publish failure must not surface, got %v", err)
	}
}
