// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/clock"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/sealed"
	"github.com/bureau-foundation/selfstore/lib/secret"
)

const (
	identityFile = "identity.key"
	stateFile    = "wallet.age"

	macContext = "selfstore.payment.proof-mac.v1"
)

// Spend is one payment made by the wallet.
type Spend struct {
	ID        string    `json:"id"`
	QuoteID   string    `json:"quote_id"`
	Amount    uint64    `json:"amount"`
	Created   time.Time `json:"created"`
	Confirmed bool      `json:"confirmed"`
	Proof     Proof     `json:"proof"`
}

// walletState is the sealed, persisted part of a wallet.
type walletState struct {
	Balance  uint64            `json:"balance"`
	Deposits map[string]uint64 `json:"deposits"`
	Spends   map[string]*Spend `json:"spends"`

	// Paid maps a hex chunk address to the spend that paid for it.
	Paid map[string]string `json:"paid"`
}

// WalletOptions configures a wallet.
type WalletOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Wallet is a local balance that pays for storage and tags the
// resulting proofs with a key derived from its identity. Re-paying for
// an address returns the proof that already covers it without a
// second debit. Safe for concurrent use.
type Wallet struct {
	mu       sync.Mutex
	dir      string
	identity *sealed.Identity
	macKey   [32]byte
	clock    clock.Clock
	logger   *slog.Logger
	state    walletState
}

// NewWallet creates an unpersisted wallet with a fresh identity.
func NewWallet(options WalletOptions) (*Wallet, error) {
	identity, err := sealed.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	return newWallet("", identity, options), nil
}

// OpenWallet loads the wallet in dir, creating the directory, an
// identity, and an empty state on first use. Every change is sealed
// back to dir/wallet.age before the call that made it returns.
func OpenWallet(dir string, options WalletOptions) (*Wallet, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating wallet directory: %w", err)
	}

	identity, err := loadOrCreateIdentity(filepath.Join(dir, identityFile))
	if err != nil {
		return nil, err
	}
	wallet := newWallet(dir, identity, options)

	ciphertext, err := os.ReadFile(filepath.Join(dir, stateFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := wallet.saveLocked(); err != nil {
			identity.Close()
			return nil, err
		}
		wallet.logger.Info("created wallet", "dir", dir)
		return wallet, nil
	case err != nil:
		identity.Close()
		return nil, fmt.Errorf("reading wallet state: %w", err)
	}

	plaintext, err := sealed.Open(ciphertext, identity)
	if err != nil {
		identity.Close()
		return nil, fmt.Errorf("unsealing wallet state: %w", err)
	}
	if err := codec.Unmarshal(plaintext, &wallet.state); err != nil {
		identity.Close()
		return nil, fmt.Errorf("decoding wallet state: %w", err)
	}
	wallet.state.ensureMaps()
	wallet.logger.Debug("opened wallet", "dir", dir, "balance", wallet.state.Balance)
	return wallet, nil
}

func loadOrCreateIdentity(path string) (*sealed.Identity, error) {
	private, err := secret.ReadFile(path)
	if err == nil {
		identity, err := sealed.LoadIdentity(private)
		if err != nil {
			private.Close()
		}
		return identity, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading wallet identity: %w", err)
	}
	identity, err := sealed.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := secret.WriteFile(path, identity.Private); err != nil {
		identity.Close()
		return nil, fmt.Errorf("writing wallet identity: %w", err)
	}
	return identity, nil
}

func newWallet(dir string, identity *sealed.Identity, options WalletOptions) *Wallet {
	wallet := &Wallet{
		dir:      dir,
		identity: identity,
		clock:    options.Clock,
		logger:   options.Logger,
	}
	if wallet.clock == nil {
		wallet.clock = clock.Real()
	}
	if wallet.logger == nil {
		wallet.logger = slog.New(slog.DiscardHandler)
	}
	blake3.DeriveKey(macContext, identity.Private.Bytes(), wallet.macKey[:])
	wallet.state.ensureMaps()
	return wallet
}

func (s *walletState) ensureMaps() {
	if s.Deposits == nil {
		s.Deposits = make(map[string]uint64)
	}
	if s.Spends == nil {
		s.Spends = make(map[string]*Spend)
	}
	if s.Paid == nil {
		s.Paid = make(map[string]string)
	}
}

// Close releases the identity. The wallet must not be used after.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.identity.Close()
}

// Recipient is the wallet's public age key.
func (w *Wallet) Recipient() string {
	return w.identity.Recipient
}

// Balance returns the unspent amount.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Balance
}

// Deposit credits amount under id. Repeating a deposit with the same
// id and amount is a no-op; reusing an id for a different amount is
// an error.
func (w *Wallet) Deposit(id string, amount uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.state.Deposits[id]; ok {
		if existing != amount {
			return fmt.Errorf("deposit %s already recorded for %d, not %d", id, existing, amount)
		}
		return nil
	}
	if amount > math.MaxUint64-w.state.Balance {
		return fmt.Errorf("%w: deposit %s of %d on a balance of %d", ErrAmountOverflow, id, amount, w.state.Balance)
	}
	w.state.Deposits[id] = amount
	w.state.Balance += amount
	if err := w.saveLocked(); err != nil {
		delete(w.state.Deposits, id)
		w.state.Balance -= amount
		return err
	}
	w.logger.Info("deposit recorded", "deposit", id, "amount", amount, "balance", w.state.Balance)
	return nil
}

// Pay debits the quote's price for every address not already paid
// for and returns a proof covering all of the quote's addresses. When
// every address is already covered by one earlier spend, that spend's
// proof is returned with Debited zero.
func (w *Wallet) Pay(ctx context.Context, quote Quote) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	addresses := canonical(quote.Addresses)
	var fresh int
	spendIDs := make(map[string]struct{})
	for _, addr := range addresses {
		spendID, paid := w.state.Paid[addr.String()]
		if !paid {
			fresh++
			continue
		}
		spendIDs[spendID] = struct{}{}
	}
	if fresh == 0 && len(spendIDs) == 1 {
		for spendID := range spendIDs {
			proof := w.state.Spends[spendID].Proof
			w.logger.Debug("reusing payment", "spend", spendID, "chunk_count", len(addresses))
			return Payment{Proof: &proof}, nil
		}
	}

	cost, err := price(quote.PricePerChunk, fresh)
	if err != nil {
		return Payment{}, fmt.Errorf("quote %s: %w", quote.ID, err)
	}
	if cost > w.state.Balance {
		return Payment{}, fmt.Errorf("%w: quote %s needs %d, balance is %d", ErrInsufficientFunds, quote.ID, cost, w.state.Balance)
	}

	spend := &Spend{
		ID:      uuid.NewString(),
		QuoteID: quote.ID,
		Amount:  cost,
		Created: w.clock.Now(),
		Proof: Proof{
			QuoteID:   quote.ID,
			Addresses: addresses,
			Amount:    cost,
		},
	}
	spend.Proof.SpendID = spend.ID
	tag, err := computeTag(&w.macKey, &spend.Proof)
	if err != nil {
		return Payment{}, fmt.Errorf("tagging proof: %w", err)
	}
	spend.Proof.Tag = tag

	var newlyPaid []string
	for _, addr := range addresses {
		if _, paid := w.state.Paid[addr.String()]; !paid {
			newlyPaid = append(newlyPaid, addr.String())
		}
	}
	w.state.Balance -= cost
	w.state.Spends[spend.ID] = spend
	for _, key := range newlyPaid {
		w.state.Paid[key] = spend.ID
	}
	if err := w.saveLocked(); err != nil {
		w.state.Balance += cost
		delete(w.state.Spends, spend.ID)
		for _, key := range newlyPaid {
			delete(w.state.Paid, key)
		}
		return Payment{}, err
	}

	w.logger.Info("paid for storage",
		"spend", spend.ID,
		"quote", quote.ID,
		"chunk_count", len(addresses),
		"amount", cost,
		"balance", w.state.Balance,
	)
	proof := spend.Proof
	return Payment{Proof: &proof, Debited: cost}, nil
}

// Confirm marks a spend as accepted by the network.
func (w *Wallet) Confirm(spendID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	spend, ok := w.state.Spends[spendID]
	if !ok {
		return fmt.Errorf("unknown spend %s", spendID)
	}
	if spend.Confirmed {
		return nil
	}
	spend.Confirmed = true
	if err := w.saveLocked(); err != nil {
		spend.Confirmed = false
		return err
	}
	return nil
}

// Unconfirmed returns spends not yet confirmed, oldest first.
func (w *Wallet) Unconfirmed() []Spend {
	w.mu.Lock()
	defer w.mu.Unlock()
	var pending []Spend
	for _, spend := range w.state.Spends {
		if !spend.Confirmed {
			pending = append(pending, *spend)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].Created.Equal(pending[j].Created) {
			return pending[i].Created.Before(pending[j].Created)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending
}

// ProofFor returns the proof of the spend that paid for addr.
func (w *Wallet) ProofFor(addr address.Address) (*Proof, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	spendID, ok := w.state.Paid[addr.String()]
	if !ok {
		return nil, false
	}
	proof := w.state.Spends[spendID].Proof
	proof.Addresses = slices.Clone(proof.Addresses)
	return &proof, true
}

// Verifier returns a Verifier that accepts this wallet's proofs.
func (w *Wallet) Verifier() *MACVerifier {
	return &MACVerifier{key: w.macKey}
}

// saveLocked seals the state into the wallet directory. A wallet
// without a directory keeps its state in memory only.
func (w *Wallet) saveLocked() error {
	if w.dir == "" {
		return nil
	}
	plaintext, err := codec.Marshal(&w.state)
	if err != nil {
		return fmt.Errorf("encoding wallet state: %w", err)
	}
	ciphertext, err := sealed.Seal(plaintext, w.identity.Recipient)
	if err != nil {
		return fmt.Errorf("sealing wallet state: %w", err)
	}
	path := filepath.Join(w.dir, stateFile)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, ciphertext, 0o600); err != nil {
		return fmt.Errorf("writing wallet state: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		return fmt.Errorf("replacing wallet state: %w", err)
	}
	return nil
}
