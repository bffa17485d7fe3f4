package funding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"
	"vtuplatform/internal/transaction"
	"vtuplatform/internal/wallet"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type fakeWalletStore struct {
	mu       sync.Mutex
	balances map[string]int64
	credits  int
}

func (f *fakeWalletStore) Credit(ctx context.Context, q database.Querier, userID string, amount money.Money) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[userID]; !ok {
		return nil, database.ErrNotFound
	}
	f.balances[userID] += amount.AmountMinor
	f.credits++
	return &wallet.Wallet{
		ID:      "wal_" + userID,
		UserID:  userID,
		Balance: money.New(f.balances[userID], money.NGN),
	}, nil
}

type fakeTxStore struct {
	mu    sync.Mutex
	byRef map[string]*transaction.Transaction
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{byRef: make(map[string]*transaction.Transaction)}
}

func (f *fakeTxStore) Create(ctx context.Context, q database.Querier, t *transaction.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byRef[t.ReferenceNumber]; exists {
		return transaction.ErrDuplicateReference
	}
	cp := *t
	f.byRef[t.ReferenceNumber] = &cp
	return nil
}

func (f *fakeTxStore) GetByReference(ctx context.Context, q database.Querier, reference string) (*transaction.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byRef[reference]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTxStore) MarkSuccessful(ctx context.Context, q database.Querier, reference string, status transaction.Status, providerResponse json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byRef[reference]
	if !ok {
		return database.ErrNotFound
	}
	if t.Status != transaction.StatusPending {
		return transaction.ErrAlreadySettled
	}
	t.Status = status
	t.ProviderResponse = providerResponse
	return nil
}

type fakeAccounts struct {
	byNumber map[string]*VirtualAccount
	byUser   map[string]*VirtualAccount
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byNumber: make(map[string]*VirtualAccount),
		byUser:   make(map[string]*VirtualAccount),
	}
}

func (f *fakeAccounts) Create(ctx context.Context, va *VirtualAccount) error {
	key := va.UserID + "/" + va.Provider
	if _, exists := f.byUser[key]; exists {
		return database.ErrAlreadyExists
	}
	f.byUser[key] = va
	f.byNumber[va.AccountNumber] = va
	return nil
}

func (f *fakeAccounts) GetByUser(ctx context.Context, userID, providerCode string) (*VirtualAccount, error) {
	va, ok := f.byUser[userID+"/"+providerCode]
	if !ok {
		return nil, database.ErrNotFound
	}
	return va, nil
}

func (f *fakeAccounts) GetByAccountNumber(ctx context.Context, accountNumber string) (*VirtualAccount, error) {
	va, ok := f.byNumber[accountNumber]
	if !ok {
		return nil, database.ErrNotFound
	}
	return va, nil
}

// fakeSource accepts exactly one signature and replays a scripted event.
type fakeSource struct {
	signature string
	event     *provider.FundingEvent
}

func (f *fakeSource) VerifyWebhook(ctx context.Context, signature string, body []byte) error {
	if signature != f.signature {
		return provider.ErrBadSignature
	}
	return nil
}

func (f *fakeSource) ParseWebhook(body []byte) (*provider.FundingEvent, error) {
	if f.event == nil {
		return nil, errors.New("malformed payload")
	}
	return f.event, nil
}

type fakeIssuer struct {
	calls int
	fail  bool
}

func (f *fakeIssuer) Code() string { return "payrant" }

func (f *fakeIssuer) CreateVirtualAccount(ctx context.Context, req provider.VirtualAccountRequest) (*provider.VirtualAccountDetails, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("issuing backend down")
	}
	return &provider.VirtualAccountDetails{
		AccountNumber: "9012345678",
		AccountName:   req.Name,
		BankName:      "Test Bank",
		Reference:     "VA-REF",
	}, nil
}

func newTestFundingService(wallets *fakeWalletStore, txs *fakeTxStore, accounts *fakeAccounts, issuer AccountIssuer) *Service {
	return NewService(fakeTxRunner{}, wallets, txs, accounts, issuer, nil, nil, discardLogger())
}

func TestDepositWebhookCreditsOnce(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	txs := newFakeTxStore()
	accounts := newFakeAccounts()
	accounts.Create(context.Background(), &VirtualAccount{
		UserID: "u1", Provider: "payrant", AccountNumber: "9012345678",
	})

	svc := newTestFundingService(wallets, txs, accounts, nil)
	svc.RegisterWebhookSource("payrant", &fakeSource{
		signature: "good",
		event: &provider.FundingEvent{
			Reference:     "DEP-1",
			AccountNumber: "9012345678",
			Amount:        money.NewFromMajor(5000, money.NGN),
		},
	})

	body := []byte(`{"event":"deposit.success"}`)
	if err := svc.HandleWebhook(context.Background(), "payrant", "good", body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if wallets.balances["u1"] != 500000 {
		t.Fatalf("balance = %d, want 500000", wallets.balances["u1"])
	}

	// Identical replay mutates nothing.
	err := svc.HandleWebhook(context.Background(), "payrant", "good", body)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("replay error = %v, want ErrAlreadyProcessed", err)
	}
	if wallets.balances["u1"] != 500000 {
		t.Fatalf("balance after replay = %d, want 500000", wallets.balances["u1"])
	}
	if wallets.credits != 1 {
		t.Fatalf("credits = %d, want exactly 1", wallets.credits)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	txs := newFakeTxStore()
	accounts := newFakeAccounts()

	svc := newTestFundingService(wallets, txs, accounts, nil)
	svc.RegisterWebhookSource("payrant", &fakeSource{signature: "good"})

	err := svc.HandleWebhook(context.Background(), "payrant", "forged", []byte(`{}`))
	if !errors.Is(err, provider.ErrBadSignature) {
		t.Fatalf("error = %v, want ErrBadSignature", err)
	}
	if wallets.credits != 0 {
		t.Fatal("a rejected webhook must not credit anything")
	}
}

func TestWebhookUnknownProvider(t *testing.T) {
	svc := newTestFundingService(&fakeWalletStore{balances: map[string]int64{}}, newFakeTxStore(), newFakeAccounts(), nil)

	err := svc.HandleWebhook(context.Background(), "nosuch", "sig", []byte(`{}`))
	if !errors.Is(err, ErrUnknownWebhookProvider) {
		t.Fatalf("error = %v, want ErrUnknownWebhookProvider", err)
	}
}

func TestWebhookUnknownAccount(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	svc := newTestFundingService(wallets, newFakeTxStore(), newFakeAccounts(), nil)
	svc.RegisterWebhookSource("payrant", &fakeSource{
		signature: "good",
		event: &provider.FundingEvent{
			Reference:     "DEP-9",
			AccountNumber: "0000000000",
			Amount:        money.NewFromMajor(100, money.NGN),
		},
	})

	err := svc.HandleWebhook(context.Background(), "payrant", "good", []byte(`{}`))
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("error = %v, want ErrUnknownReference", err)
	}
	if wallets.credits != 0 {
		t.Fatal("unknown account must not credit anything")
	}
}

func TestCheckoutWebhookSettlesPendingTopup(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	txs := newFakeTxStore()
	txs.Create(context.Background(), nil, &transaction.Transaction{
		ID:              "tx1",
		UserID:          "u1",
		Type:            transaction.TypeWalletTopup,
		Amount:          money.NewFromMajor(2000, money.NGN),
		Status:          transaction.StatusPending,
		ReferenceNumber: "FUND-ABC",
	})

	svc := newTestFundingService(wallets, txs, newFakeAccounts(), nil)
	svc.RegisterWebhookSource("vtpay", &fakeSource{
		signature: "good",
		event: &provider.FundingEvent{
			Reference: "FUND-ABC",
			Amount:    money.NewFromMajor(2000, money.NGN),
		},
	})

	if err := svc.HandleWebhook(context.Background(), "vtpay", "good", []byte(`{}`)); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	settled, _ := txs.GetByReference(context.Background(), nil, "FUND-ABC")
	if settled.Status != transaction.StatusSuccessful {
		t.Fatalf("status = %s, want successful", settled.Status)
	}
	if wallets.balances["u1"] != 200000 {
		t.Fatalf("balance = %d, want 200000", wallets.balances["u1"])
	}

	err := svc.HandleWebhook(context.Background(), "vtpay", "good", []byte(`{}`))
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("replay error = %v, want ErrAlreadyProcessed", err)
	}
	if wallets.credits != 1 {
		t.Fatalf("credits = %d, want exactly 1", wallets.credits)
	}
}

func TestFundingAccountIssuedLazilyOnce(t *testing.T) {
	wallets := &fakeWalletStore{balances: map[string]int64{"u1": 0}}
	issuer := &fakeIssuer{}
	svc := newTestFundingService(wallets, newFakeTxStore(), newFakeAccounts(), issuer)

	first, err := svc.FundingAccount(context.Background(), "u1", "u1@example.com", "Test User", "")
	if err != nil {
		t.Fatalf("first FundingAccount: %v", err)
	}
	if first.AccountNumber != "9012345678" {
		t.Fatalf("account number = %s", first.AccountNumber)
	}

	second, err := svc.FundingAccount(context.Background(), "u1", "u1@example.com", "Test User", "")
	if err != nil {
		t.Fatalf("second FundingAccount: %v", err)
	}
	if issuer.calls != 1 {
		t.Fatalf("issuer calls = %d, want 1 (account reused)", issuer.calls)
	}
	if second.AccountNumber != first.AccountNumber {
		t.Fatal("second call must return the stored account")
	}
}
