// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

var (
	// ErrRegisterMismatch is returned when merging a view of a
	// different register.
	ErrRegisterMismatch = errors.New("view belongs to a different register")

	// ErrInvalidEntry means an entry's hash does not match its
	// contents.
	ErrInvalidEntry = errors.New("invalid register entry")
)

// MaxPayloadSize bounds an entry payload. Registers hold pointers
// (typically a data map address), not content.
const MaxPayloadSize = 64 * 1024

// Entry is one immutable register entry.
type Entry struct {
	Hash    address.Address   `json:"hash"`
	Payload []byte            `json:"payload"`
	Parents []address.Address `json:"parents,omitempty"`
}

// hashedFields is the canonical encoding an entry hash covers.
type hashedFields struct {
	Register address.Address   `json:"register"`
	Payload  []byte            `json:"payload"`
	Parents  []address.Address `json:"parents"`
}

// HashEntry computes the hash of an entry in register key. parents
// must be sorted and free of duplicates.
func HashEntry(key address.Address, payload []byte, parents []address.Address) (address.Address, error) {
	if payload == nil {
		payload = []byte{}
	}
	if parents == nil {
		parents = []address.Address{}
	}
	encoded, err := codec.Marshal(hashedFields{Register: key, Payload: payload, Parents: parents})
	if err != nil {
		return address.Address{}, fmt.Errorf("encoding register entry: %w", err)
	}
	return address.ForEntry(encoded), nil
}

// Register is one replica of a register. Safe for concurrent use.
type Register struct {
	key address.Address

	mu      sync.RWMutex
	entries map[address.Address]*Entry
	// cited holds every hash named as a parent by some entry.
	cited map[address.Address]struct{}
}

// New creates an empty replica of the register identified by key.
func New(key address.Address) *Register {
	return &Register{
		key:     key,
		entries: make(map[address.Address]*Entry),
		cited:   make(map[address.Address]struct{}),
	}
}

// FromView creates a replica holding the entries of view.
func FromView(view *View) (*Register, error) {
	reg := New(view.Key)
	if _, err := reg.Merge(view); err != nil {
		return nil, err
	}
	return reg, nil
}

// Key is the register's identity.
func (r *Register) Key() address.Address {
	return r.key
}

// Len is the number of entries held.
func (r *Register) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Write appends an entry citing parents. Every parent must already be
// in the register, otherwise the write is rejected with
// dataerr.ErrUnknownParent and nothing changes; merge the view that
// carries the parent first. Duplicate parents collapse. Writing an
// entry identical to one already present returns the existing entry.
func (r *Register) Write(payload []byte, parents []address.Address) (Entry, error) {
	if len(payload) > MaxPayloadSize {
		return Entry{}, fmt.Errorf("register payload is %d bytes, maximum is %d", len(payload), MaxPayloadSize)
	}
	parents = canonicalParents(parents)
	hash, err := HashEntry(r.key, payload, parents)
	if err != nil {
		return Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, parent := range parents {
		if _, ok := r.entries[parent]; !ok {
			return Entry{}, fmt.Errorf("%w: %s", dataerr.ErrUnknownParent, parent.Short())
		}
	}
	if existing, ok := r.entries[hash]; ok {
		return existing.clone(), nil
	}
	entry := &Entry{Hash: hash, Payload: slices.Clone(payload), Parents: parents}
	r.insertLocked(entry)
	return entry.clone(), nil
}

// Entry returns the entry with the given hash.
func (r *Register) Entry(hash address.Address) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return entry.clone(), true
}

// Has reports whether the register holds hash.
func (r *Register) Has(hash address.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[hash]
	return ok
}

// Tips returns the entries no other entry cites, sorted by hash. An
// empty register has no tips; more than one tip means concurrent
// writes not yet reconciled.
func (r *Register) Tips() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tips []Entry
	for hash, entry := range r.entries {
		if _, ok := r.cited[hash]; !ok {
			tips = append(tips, entry.clone())
		}
	}
	sortEntries(tips)
	return tips
}

// TipHashes returns the hashes of Tips.
func (r *Register) TipHashes() []address.Address {
	tips := r.Tips()
	hashes := make([]address.Address, len(tips))
	for i, tip := range tips {
		hashes[i] = tip.Hash
	}
	return hashes
}

// View returns every entry, sorted by hash.
func (r *Register) View() *View {
	return r.Delta(nil)
}

// Delta returns the entries whose hashes are not in known. A peer
// passes the hashes it holds to receive only what it lacks.
func (r *Register) Delta(known []address.Address) *View {
	skip := make(map[address.Address]struct{}, len(known))
	for _, hash := range known {
		skip[hash] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	view := &View{Key: r.key, Entries: make([]Entry, 0, len(r.entries))}
	for hash, entry := range r.entries {
		if _, ok := skip[hash]; !ok {
			view.Entries = append(view.Entries, entry.clone())
		}
	}
	sortEntries(view.Entries)
	return view
}

// Hashes returns the hashes of every entry, sorted.
func (r *Register) Hashes() []address.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := make([]address.Address, 0, len(r.entries))
	for hash := range r.entries {
		hashes = append(hashes, hash)
	}
	slices.SortFunc(hashes, address.Address.Compare)
	return hashes
}

// Merge adds the entries of view and returns how many were new. The
// view may arrive in any order, but the union must be closed: every
// parent must be held locally or carried by the view. Every entry's
// hash is recomputed. If any check fails nothing is added.
func (r *Register) Merge(view *View) (int, error) {
	if view.Key != r.key {
		return 0, fmt.Errorf("%w: merging %s into %s", ErrRegisterMismatch, view.Key.Short(), r.key.Short())
	}

	incoming := make(map[address.Address]*Entry, len(view.Entries))
	for i := range view.Entries {
		entry := &view.Entries[i]
		if err := r.checkEntry(entry); err != nil {
			return 0, err
		}
		incoming[entry.Hash] = entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var problems []error
	for _, entry := range incoming {
		for _, parent := range entry.Parents {
			_, local := r.entries[parent]
			_, carried := incoming[parent]
			if !local && !carried {
				problems = append(problems, fmt.Errorf("%w: entry %s cites %s",
					dataerr.ErrUnknownParent, entry.Hash.Short(), parent.Short()))
			}
		}
	}
	if len(problems) > 0 {
		return 0, errors.Join(problems...)
	}

	added := 0
	for hash, entry := range incoming {
		if _, ok := r.entries[hash]; ok {
			continue
		}
		stored := entry.clone()
		r.insertLocked(&stored)
		added++
	}
	return added, nil
}

func (r *Register) checkEntry(entry *Entry) error {
	if len(entry.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: entry %s payload is %d bytes", ErrInvalidEntry, entry.Hash.Short(), len(entry.Payload))
	}
	if !slices.IsSortedFunc(entry.Parents, address.Address.Compare) ||
		len(slices.Compact(slices.Clone(entry.Parents))) != len(entry.Parents) {
		return fmt.Errorf("%w: entry %s parents are not canonical", ErrInvalidEntry, entry.Hash.Short())
	}
	hash, err := HashEntry(r.key, entry.Payload, entry.Parents)
	if err != nil {
		return err
	}
	if hash != entry.Hash {
		return fmt.Errorf("%w: entry claims %s, contents hash to %s", ErrInvalidEntry, entry.Hash.Short(), hash.Short())
	}
	return nil
}

func (r *Register) insertLocked(entry *Entry) {
	r.entries[entry.Hash] = entry
	for _, parent := range entry.Parents {
		r.cited[parent] = struct{}{}
	}
}

func (e *Entry) clone() Entry {
	return Entry{
		Hash:    e.Hash,
		Payload: slices.Clone(e.Payload),
		Parents: slices.Clone(e.Parents),
	}
}

func canonicalParents(parents []address.Address) []address.Address {
	if len(parents) == 0 {
		return nil
	}
	sorted := slices.Clone(parents)
	slices.SortFunc(sorted, address.Address.Compare)
	return slices.Compact(sorted)
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int { return a.Hash.Compare(b.Hash) })
}
