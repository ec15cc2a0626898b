// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"slices"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

var (
	// ErrInsufficientFunds is returned by Pay when the balance cannot
	// cover a quote.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAmountOverflow is returned when a price or balance would not
	// fit in a uint64.
	ErrAmountOverflow = errors.New("amount overflows uint64")
)

// Quote is a price for storing a set of chunks.
type Quote struct {
	ID            string            `json:"id"`
	Addresses     []address.Address `json:"addresses"`
	PricePerChunk uint64            `json:"price_per_chunk"`
}

// Amount is the total price of the quote, saturating at
// math.MaxUint64 rather than wrapping.
func (q Quote) Amount() uint64 {
	amount, err := price(q.PricePerChunk, len(q.Addresses))
	if err != nil {
		return math.MaxUint64
	}
	return amount
}

// price multiplies a per-chunk price by a chunk count, failing with
// ErrAmountOverflow instead of wrapping.
func price(perChunk uint64, count int) (uint64, error) {
	high, low := bits.Mul64(perChunk, uint64(count))
	if high != 0 {
		return 0, fmt.Errorf("%w: %d chunks at %d each", ErrAmountOverflow, count, perChunk)
	}
	return low, nil
}

// Proof is the token attached to chunk puts. Stores treat it as
// opaque and hand it to a Verifier.
type Proof struct {
	QuoteID   string            `json:"quote_id"`
	SpendID   string            `json:"spend_id"`
	Addresses []address.Address `json:"addresses"`
	Amount    uint64            `json:"amount"`
	Tag       [32]byte          `json:"tag"`
}

// Covers reports whether the proof pays for addr.
func (p *Proof) Covers(addr address.Address) bool {
	_, found := slices.BinarySearchFunc(p.Addresses, addr, address.Address.Compare)
	return found
}

// Marshal encodes the proof for transport.
func (p *Proof) Marshal() ([]byte, error) {
	return codec.Marshal(p)
}

// UnmarshalProof decodes a proof produced by Marshal.
func UnmarshalProof(data []byte) (*Proof, error) {
	var proof Proof
	if err := codec.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("decoding payment proof: %w", err)
	}
	return &proof, nil
}

// signedFields is the portion of a Proof covered by its tag.
type signedFields struct {
	QuoteID   string            `json:"quote_id"`
	SpendID   string            `json:"spend_id"`
	Addresses []address.Address `json:"addresses"`
	Amount    uint64            `json:"amount"`
}

func computeTag(key *[32]byte, p *Proof) ([32]byte, error) {
	encoded, err := codec.Marshal(signedFields{
		QuoteID:   p.QuoteID,
		SpendID:   p.SpendID,
		Addresses: p.Addresses,
		Amount:    p.Amount,
	})
	if err != nil {
		return [32]byte{}, err
	}
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return [32]byte{}, err
	}
	hasher.Write(encoded)
	var tag [32]byte
	copy(tag[:], hasher.Sum(nil))
	return tag, nil
}

// Quoter prices a set of chunk addresses.
type Quoter interface {
	Quote(ctx context.Context, addresses []address.Address) (Quote, error)
}

// Payment is the outcome of paying a quote.
type Payment struct {
	// Proof is attached to every put of the quoted addresses.
	Proof *Proof

	// Debited is what this call took from the balance. It equals
	// Proof.Amount for a new spend and is zero when an earlier spend
	// already covered every address.
	Debited uint64
}

// Payer pays a quote and returns the proof to attach to puts.
type Payer interface {
	Pay(ctx context.Context, quote Quote) (Payment, error)
}

// Verifier checks that a proof pays for storing addr. Failures wrap
// dataerr.ErrPaymentRejected.
type Verifier interface {
	Verify(proof *Proof, addr address.Address) error
}

// FlatRate quotes the same price for every chunk.
type FlatRate struct {
	PricePerChunk uint64
}

// Quote returns a quote with a fresh ID over the sorted, deduplicated
// addresses.
func (f FlatRate) Quote(ctx context.Context, addresses []address.Address) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	return Quote{
		ID:            uuid.NewString(),
		Addresses:     canonical(addresses),
		PricePerChunk: f.PricePerChunk,
	}, nil
}

// MACVerifier checks proofs tagged by a Wallet.
type MACVerifier struct {
	key [32]byte
}

// Verify checks the tag and that the proof lists addr.
func (v *MACVerifier) Verify(proof *Proof, addr address.Address) error {
	if proof == nil {
		return fmt.Errorf("%w: no proof attached", dataerr.ErrPaymentRejected)
	}
	want, err := computeTag(&v.key, proof)
	if err != nil {
		return fmt.Errorf("%w: %v", dataerr.ErrPaymentRejected, err)
	}
	if subtle.ConstantTimeCompare(want[:], proof.Tag[:]) != 1 {
		return fmt.Errorf("%w: proof %s has an invalid tag", dataerr.ErrPaymentRejected, proof.SpendID)
	}
	if !proof.Covers(addr) {
		return fmt.Errorf("%w: proof %s does not cover %s", dataerr.ErrPaymentRejected, proof.SpendID, addr.Short())
	}
	return nil
}

func canonical(addresses []address.Address) []address.Address {
	sorted := slices.Clone(addresses)
	slices.SortFunc(sorted, address.Address.Compare)
	return slices.Compact(sorted)
}
