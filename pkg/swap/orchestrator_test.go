package swap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-relay/pkg/jupiter"
	"swap-relay/pkg/policy"
	"swap-relay/pkg/wallet"
)

const testQuotePayload = `{"inputMint": "in", "outAmount": "150000"}`

type fakeGateway struct {
	quoteErr  error
	swapErr   error
	quoteN    int
	swapN     int
	lastOwner string
}

func (g *fakeGateway) Quote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	g.quoteN++
	if g.quoteErr != nil {
		return nil, g.quoteErr
	}
	return &jupiter.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    amount,
		OutAmount:   150_000,
		SlippageBps: slippageBps,
		Payload:     json.RawMessage(testQuotePayload),
		ComputedAt:  time.Now(),
	}, nil
}

func (g *fakeGateway) SwapTransaction(_ context.Context, _ *jupiter.Quote, executorAddress string) ([]byte, error) {
	g.swapN++
	g.lastOwner = executorAddress
	if g.swapErr != nil {
		return nil, g.swapErr
	}
	// A minimal real transaction with the executor as fee payer, so the
	// orchestrator can deserialize and sign it.
	owner := solana.MustPublicKeyFromBase58(executorAddress)
	ix := system.NewTransferInstruction(1, owner, solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(owner))
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

type fakeRegistry struct {
	mu       sync.Mutex
	wallets  map[string]solana.PrivateKey
	retained map[string]bool
	created  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		wallets:  make(map[string]solana.PrivateKey),
		retained: make(map[string]bool),
	}
}

func (r *fakeRegistry) Create(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := solana.NewWallet()
	r.wallets[w.PublicKey().String()] = w.PrivateKey
	r.created++
	return w.PublicKey().String(), nil
}

func (r *fakeRegistry) Load(address string) (solana.PrivateKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.wallets[address]
	if !ok {
		return nil, errors.New("wallet: not found")
	}
	return key, nil
}

func (r *fakeRegistry) Retain(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[address]; ok {
		r.retained[address] = true
	}
}

func (r *fakeRegistry) Destroy(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.wallets, address)
	delete(r.retained, address)
}

func (r *fakeRegistry) Live(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wallets[address]
	return ok
}

func (r *fakeRegistry) isRetained(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retained[address]
}

type fakeSettler struct {
	err error
	n   int
}

func (s *fakeSettler) Settle(context.Context, solana.PrivateKey, solana.PublicKey, string) (solana.Signature, error) {
	s.n++
	if s.err != nil {
		return solana.Signature{}, s.err
	}
	return solana.Signature{7}, nil
}

type fakeLedger struct {
	lamports uint64
	tokens   uint64
	sendErr  error
}

func (f *fakeLedger) Balance(context.Context, solana.PublicKey) (uint64, error) {
	return f.lamports, nil
}

func (f *fakeLedger) TokenBalance(context.Context, solana.PublicKey) (uint64, error) {
	return f.tokens, nil
}

func (f *fakeLedger) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	return true, nil
}

func (f *fakeLedger) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeLedger) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return solana.Signature{9}, nil
}

func (f *fakeLedger) WaitForConfirmation(context.Context, solana.Signature) error {
	return nil
}

type fixture struct {
	orch     *Orchestrator
	gateway  *fakeGateway
	registry *fakeRegistry
	settler  *fakeSettler
	ledger   *fakeLedger
	store    *Store
}

func newFixture() *fixture {
	f := &fixture{
		gateway:  &fakeGateway{},
		registry: newFakeRegistry(),
		settler:  &fakeSettler{},
		ledger:   &fakeLedger{},
		store:    NewStore(),
	}
	f.orch = NewOrchestrator(f.gateway, f.registry, f.settler, f.ledger, f.store, 0, zerolog.Nop())
	return f
}

func validRequest() InitiateRequest {
	return InitiateRequest{
		SourceMint:         policy.MintSOL,
		DestinationMint:    policy.MintUSDC,
		Amount:             "1000000",
		DestinationAddress: solana.NewWallet().PublicKey().String(),
	}
}

func (f *fixture) initiate(t *testing.T) *Intent {
	t.Helper()
	intent, err := f.orch.Initiate(context.Background(), validRequest())
	require.NoError(t, err)
	return intent
}

// confirmed builds an approval carrying the quote the intent was created with.
func confirmed(depositAddress string) ConfirmRequest {
	return ConfirmRequest{
		DepositAddress: depositAddress,
		Confirmed:      true,
		QuoteSnapshot:  json.RawMessage(testQuotePayload),
	}
}

func TestInitiateRejectsSameAssetWithoutCreatingWallet(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.DestinationMint = req.SourceMint

	_, err := f.orch.Initiate(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.registry.created)
	assert.Zero(t, f.gateway.quoteN)
}

func TestInitiateRejectsBadDestinationAddress(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.DestinationAddress = "not-an-address"

	_, err := f.orch.Initiate(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.registry.created)
}

func TestInitiateDestroysWalletOnQuoteFailure(t *testing.T) {
	f := newFixture()
	f.gateway.quoteErr = errors.New("no route")

	_, err := f.orch.Initiate(context.Background(), validRequest())
	require.Error(t, err)

	assert.Equal(t, 1, f.registry.created)
	assert.Empty(t, f.registry.wallets, "failed quote must not leak a wallet")
}

func TestInitiateCreatesAwaitingIntentWithDistinctWallets(t *testing.T) {
	f := newFixture()

	first := f.initiate(t)
	second := f.initiate(t)

	assert.Equal(t, StateAwaitingConfirmation, first.State)
	assert.NotEqual(t, first.DepositAddress, second.DepositAddress)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, f.registry.Live(first.DepositAddress))

	got, err := f.orch.Get(first.DepositAddress)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestConfirmUnknownDepositAddress(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Confirm(context.Background(), confirmed("missing"))
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestConfirmRejectsMismatchedDestination(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	req := confirmed(intent.DepositAddress)
	req.DestinationAddress = solana.NewWallet().PublicKey().String()
	_, err := f.orch.Confirm(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.gateway.swapN)
}

func TestConfirmExpiredQuoteDoesNotExecute(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)
	intent.Quote.ComputedAt = time.Now().Add(-time.Hour)

	_, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))

	assert.ErrorIs(t, err, ErrQuoteExpired)
	assert.Zero(t, f.gateway.swapN)

	got, err := f.orch.Get(intent.DepositAddress)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, got.State)
}

func TestConfirmRequiresQuoteSnapshot(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	_, err := f.orch.Confirm(context.Background(), ConfirmRequest{
		DepositAddress: intent.DepositAddress,
		Confirmed:      true,
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Problems[0], "quoteSnapshot")
	assert.Zero(t, f.gateway.swapN)

	// The intent is still confirmable with the quote attached.
	got, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, got.State)
}

func TestConfirmSnapshotMismatch(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	req := confirmed(intent.DepositAddress)
	req.QuoteSnapshot = json.RawMessage(`{"outAmount": "999"}`)
	_, err := f.orch.Confirm(context.Background(), req)

	assert.ErrorIs(t, err, ErrQuoteMismatch)
	assert.Zero(t, f.gateway.swapN)
}

func TestConfirmAcceptsReformattedSnapshot(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	req := confirmed(intent.DepositAddress)
	req.QuoteSnapshot = json.RawMessage("{\n  \"inputMint\": \"in\",\n  \"outAmount\": \"150000\"\n}")
	got, err := f.orch.Confirm(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, StateSettled, got.State)
}

func TestCancelDestroysEmptyWallet(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	got, err := f.orch.Confirm(context.Background(), ConfirmRequest{
		DepositAddress: intent.DepositAddress,
		Confirmed:      false,
	})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, got.State)
	assert.Equal(t, "Swap was not confirmed by user", got.Result.Message)
	assert.False(t, got.WalletRetained)
	assert.False(t, f.registry.Live(intent.DepositAddress))
	assert.Zero(t, f.gateway.swapN)
}

func TestCancelRetainsFundedWallet(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)
	f.ledger.lamports = 500_000 // the user already deposited

	got, err := f.orch.Confirm(context.Background(), ConfirmRequest{
		DepositAddress: intent.DepositAddress,
		Confirmed:      false,
	})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, got.State)
	assert.True(t, got.WalletRetained)
	assert.True(t, f.registry.Live(intent.DepositAddress), "funded wallet must survive cancellation")
	assert.True(t, f.registry.isRetained(intent.DepositAddress), "funded wallet must be pinned against expiry")
}

func TestConfirmExecutesAndSettles(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	got, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)

	assert.Equal(t, StateSettled, got.State)
	require.NotNil(t, got.Result)
	assert.NotEmpty(t, got.Result.SwapTx)
	assert.NotEmpty(t, got.Result.TransferTx)
	assert.Equal(t, "Swap and transfer completed successfully", got.Result.Message)
	assert.Equal(t, intent.DepositAddress, f.gateway.lastOwner)
	assert.False(t, f.registry.Live(intent.DepositAddress), "settled wallet must be destroyed")
}

func TestConfirmIsIdempotentOnTerminalIntent(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	first, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)
	require.Equal(t, StateSettled, first.State)

	swapCalls := f.gateway.swapN
	second, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)

	assert.Equal(t, StateSettled, second.State)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, swapCalls, f.gateway.swapN, "terminal confirm must not re-execute")
}

func TestSwapFailureWithEmptyWalletDestroysIt(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)
	f.ledger.sendErr = errors.New("blockhash not found")

	got, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, StageSwap, got.FailureStage)
	assert.False(t, got.WalletRetained)
	assert.False(t, f.registry.Live(intent.DepositAddress))
}

func TestSwapFailureWithFundedWalletRetainsIt(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)
	f.ledger.sendErr = errors.New("blockhash not found")
	f.ledger.lamports = 1_000_000

	got, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, StageSwap, got.FailureStage)
	assert.True(t, got.WalletRetained)
	assert.True(t, f.registry.Live(intent.DepositAddress))
	assert.True(t, f.registry.isRetained(intent.DepositAddress))
}

func TestTransferFailureRetainsWallet(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)
	f.settler.err = errors.New("destination account rejected the deposit")

	got, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)

	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, StageTransfer, got.FailureStage)
	assert.True(t, got.WalletRetained)
	assert.True(t, f.registry.isRetained(intent.DepositAddress))
	require.NotNil(t, got.Result)
	assert.NotEmpty(t, got.Result.SwapTx, "the swap itself landed")
	assert.Empty(t, got.Result.TransferTx)

	// The proceeds sit inside the ephemeral wallet; it must stay loadable.
	_, err = f.registry.Load(intent.DepositAddress)
	assert.NoError(t, err)
}

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	f := newFixture()
	intent := f.initiate(t)

	// Status reads hand out copies, not the live intent the orchestrator
	// mutates under its lock.
	before, err := f.orch.Get(intent.DepositAddress)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, before.State)
	assert.Nil(t, before.Result)

	final, err := f.orch.Confirm(context.Background(), confirmed(intent.DepositAddress))
	require.NoError(t, err)
	require.Equal(t, StateSettled, final.State)

	// The earlier copy is untouched by execution.
	assert.Equal(t, StateAwaitingConfirmation, before.State)
	assert.Nil(t, before.Result)

	// And the outcome copy stays stable even if the caller mutates it.
	final.Result.SwapTx = "clobbered"
	after, err := f.orch.Get(intent.DepositAddress)
	require.NoError(t, err)
	assert.Equal(t, StateSettled, after.State)
	require.NotNil(t, after.Result)
	assert.NotEqual(t, "clobbered", after.Result.SwapTx)
}

// walletScheduler fires TTL expiry deterministically for registry-backed tests.
type walletScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *walletScheduler) Now() time.Time { return time.Now() }

func (s *walletScheduler) AfterFunc(_ time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.pending)
	s.pending = append(s.pending, fn)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending[idx] == nil {
			return false
		}
		s.pending[idx] = nil
		return true
	}
}

func (s *walletScheduler) fireAll() {
	s.mu.Lock()
	fns := make([]func(), len(s.pending))
	copy(fns, s.pending)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

// walletBackup is an in-memory wallet.Backup for registry-backed tests.
type walletBackup struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newWalletBackup() *walletBackup { return &walletBackup{entries: make(map[string][]byte)} }

func (b *walletBackup) Put(address string, ciphertext []byte, _ time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[address] = ciphertext
	return nil
}

func (b *walletBackup) Delete(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, address)
	return nil
}

func (b *walletBackup) PurgeOlderThan(time.Duration) (int, error) { return 0, nil }
func (b *walletBackup) Close() error                              { return nil }

func (b *walletBackup) has(address string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[address]
	return ok
}

type registryFixture struct {
	orch     *Orchestrator
	registry *wallet.Registry
	sched    *walletScheduler
	backup   *walletBackup
	ledger   *fakeLedger
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	cipher, err := wallet.NewCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)

	f := &registryFixture{
		sched:  &walletScheduler{},
		backup: newWalletBackup(),
		ledger: &fakeLedger{},
	}
	f.registry = wallet.NewRegistry(cipher, f.backup, zerolog.Nop(), wallet.WithScheduler(f.sched))
	f.orch = NewOrchestrator(&fakeGateway{}, f.registry, &fakeSettler{}, f.ledger, NewStore(), 0, zerolog.Nop())
	f.registry.SetReclaimGuard(f.orch.FundsAtRest)
	return f
}

func TestCancelledFundedWalletSurvivesExpiry(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.lamports = 750_000

	intent, err := f.orch.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := f.orch.Confirm(context.Background(), ConfirmRequest{
		DepositAddress: intent.DepositAddress,
		Confirmed:      false,
	})
	require.NoError(t, err)
	require.True(t, got.WalletRetained)

	f.sched.fireAll()

	// The stranded deposit's key and encrypted backup must outlive the TTL.
	_, err = f.registry.Load(intent.DepositAddress)
	assert.NoError(t, err)
	assert.True(t, f.backup.has(intent.DepositAddress))
}

func TestExpiryRetainsFundedUnconfirmedWallet(t *testing.T) {
	f := newRegistryFixture(t)
	f.ledger.lamports = 750_000

	intent, err := f.orch.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	// The user funds the deposit but never confirms; TTL fires.
	f.sched.fireAll()

	_, err = f.registry.Load(intent.DepositAddress)
	assert.NoError(t, err, "funded wallet must not be reclaimed by expiry")
	assert.True(t, f.backup.has(intent.DepositAddress))
}

func TestExpiryReclaimsEmptyUnconfirmedWallet(t *testing.T) {
	f := newRegistryFixture(t)

	intent, err := f.orch.Initiate(context.Background(), validRequest())
	require.NoError(t, err)

	f.sched.fireAll()

	_, err = f.registry.Load(intent.DepositAddress)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	assert.False(t, f.backup.has(intent.DepositAddress))
}
