package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a wallet was never created, already expired,
// or was destroyed after settlement.
var ErrNotFound = errors.New("wallet: not found")

const (
	// DefaultTTL is how long an unused ephemeral wallet survives before it
	// is reclaimed.
	DefaultTTL = time.Hour
	// DefaultBackupTimeout bounds how long Create waits on the durable
	// backup write before giving up on it.
	DefaultBackupTimeout = 2 * time.Second
	// BackupMaxAge is the startup purge horizon for stale backup entries.
	BackupMaxAge = 24 * time.Hour
)

// Scheduler abstracts deferred execution so expiry is testable without
// waiting wall-clock time.
type Scheduler interface {
	Now() time.Time
	// AfterFunc runs fn after d elapses and returns a function that stops
	// the pending call, reporting whether it was stopped before firing.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

type entry struct {
	secret    solana.PrivateKey
	createdAt time.Time
	used      bool
	retained  bool
	stop      func() bool
}

// Registry creates, stores, and reclaims ephemeral custodial keypairs. It is
// the single source of truth for whether a deposit address is still usable:
// all mutation goes through Create, Load, and Destroy, each a single atomic
// step under one lock.
type Registry struct {
	mu      sync.Mutex
	wallets map[string]*entry

	cipher        *Cipher
	backup        Backup
	sched         Scheduler
	ttl           time.Duration
	backupTimeout time.Duration
	guard         func(address string) bool
	log           zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithTTL overrides the wallet time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithScheduler injects a scheduler (tests use a manual one).
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

// WithBackupTimeout overrides the bounded wait on backup writes.
func WithBackupTimeout(d time.Duration) Option {
	return func(r *Registry) { r.backupTimeout = d }
}

// NewRegistry creates a registry backed by the given cipher and backup store.
func NewRegistry(cipher *Cipher, backup Backup, log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		wallets:       make(map[string]*entry),
		cipher:        cipher,
		backup:        backup,
		sched:         realScheduler{},
		ttl:           DefaultTTL,
		backupTimeout: DefaultBackupTimeout,
		log:           log.With().Str("component", "wallet-registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create generates a fresh keypair, stores it, schedules its expiry, and
// returns the public address. The durable backup write is bounded: a backup
// failure is logged but never fails wallet creation.
func (r *Registry) Create(ctx context.Context) (string, error) {
	account := solana.NewWallet()
	address := account.PublicKey().String()
	now := r.sched.Now()

	e := &entry{
		secret:    account.PrivateKey,
		createdAt: now,
	}

	r.mu.Lock()
	r.wallets[address] = e
	e.stop = r.sched.AfterFunc(r.ttl, func() { r.expire(address) })
	r.mu.Unlock()

	r.writeBackup(ctx, address, account.PrivateKey, now)

	r.log.Info().Str("address", address).Time("expires_at", now.Add(r.ttl)).Msg("generated ephemeral wallet")
	return address, nil
}

// Load retrieves the secret for a live wallet and marks it used. A used but
// live wallet may be loaded again (idempotent retry for the same in-flight
// intent); destroyed or expired wallets return ErrNotFound.
func (r *Registry) Load(address string) (solana.PrivateKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.wallets[address]
	if !ok {
		return nil, ErrNotFound
	}
	e.used = true
	return e.secret, nil
}

// Destroy zeroes the key material and removes both the in-memory entry and
// the durable backup. Safe to call more than once.
func (r *Registry) Destroy(address string) {
	r.mu.Lock()
	e, ok := r.wallets[address]
	if ok {
		if e.stop != nil {
			e.stop()
		}
		zero(e.secret)
		delete(r.wallets, address)
	}
	r.mu.Unlock()

	if err := r.backup.Delete(address); err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("failed to delete wallet backup")
	}
	if ok {
		r.log.Info().Str("address", address).Msg("destroyed ephemeral wallet")
	}
}

// Retain pins a wallet so TTL expiry never reclaims it: key material and the
// encrypted backup stay until an explicit Destroy. Call it the moment a wallet
// may hold user funds outside the normal settle path.
func (r *Registry) Retain(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.wallets[address]
	if !ok {
		return
	}
	if e.stop != nil {
		e.stop()
	}
	e.retained = true
	r.log.Warn().Str("address", address).Msg("wallet retained, exempt from expiry until destroyed")
}

// SetReclaimGuard installs a check consulted before an expiring wallet is
// reclaimed. A guard returning true retains the wallet instead; use it to keep
// key material for deposits that arrived but were never confirmed.
func (r *Registry) SetReclaimGuard(guard func(address string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = guard
}

// Live reports whether an address is still present in the registry.
func (r *Registry) Live(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wallets[address]
	return ok
}

// PurgeStaleBackups removes backup entries from previous runs.
func (r *Registry) PurgeStaleBackups() {
	n, err := r.backup.PurgeOlderThan(BackupMaxAge)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to purge stale wallet backups")
		return
	}
	if n > 0 {
		r.log.Info().Int("purged", n).Msg("purged stale wallet backups")
	}
}

// expire is the scheduled fate of a wallet the user never funds. A wallet
// that has been loaded for execution or explicitly retained is left alone;
// settlement decides whether it is destroyed. Before reclaiming, the guard
// gets a say: a deposit that arrived without a confirmation must not have its
// key zeroed out from under it.
func (r *Registry) expire(address string) {
	r.mu.Lock()
	e, ok := r.wallets[address]
	if !ok || e.used || e.retained {
		r.mu.Unlock()
		return
	}
	guard := r.guard
	r.mu.Unlock()

	// The guard may hit the ledger RPC, so it runs outside the lock.
	if guard != nil && guard(address) {
		r.Retain(address)
		return
	}

	r.mu.Lock()
	e, ok = r.wallets[address]
	if !ok || e.used || e.retained {
		r.mu.Unlock()
		return
	}
	zero(e.secret)
	delete(r.wallets, address)
	r.mu.Unlock()

	if err := r.backup.Delete(address); err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("failed to delete expired wallet backup")
	}
	r.log.Info().Str("address", address).Msg("expired unused ephemeral wallet")
}

func (r *Registry) writeBackup(ctx context.Context, address string, secret solana.PrivateKey, createdAt time.Time) {
	ciphertext, err := r.cipher.Encrypt(secret)
	if err != nil {
		r.log.Warn().Err(err).Str("address", address).Msg("failed to encrypt wallet backup")
		return
	}

	done := make(chan error, 1)
	go func() { done <- r.backup.Put(address, ciphertext, createdAt) }()

	select {
	case err := <-done:
		if err != nil {
			r.log.Warn().Err(err).Str("address", address).Msg("failed to write wallet backup")
		}
	case <-time.After(r.backupTimeout):
		r.log.Warn().Str("address", address).Msg("wallet backup write timed out")
	case <-ctx.Done():
		r.log.Warn().Err(ctx.Err()).Str("address", address).Msg("wallet backup write abandoned")
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
