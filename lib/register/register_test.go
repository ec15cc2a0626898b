// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/dataerr"
)

var testKey = address.ForRegister([]byte("owner"), []byte("pointer"))

func mustWrite(t *testing.T, reg *Register, payload string, parents ...address.Address) Entry {
	t.Helper()
	entry, err := reg.Write([]byte(payload), parents)
	if err != nil {
		t.Fatalf("Write(%q): %v", payload, err)
	}
	return entry
}

func mustMerge(t *testing.T, reg *Register, view *View) int {
	t.Helper()
	added, err := reg.Merge(view)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return added
}

func TestWriteAndTips(t *testing.T) {
	reg := New(testKey)
	if len(reg.Tips()) != 0 {
		t.Fatal("empty register has tips")
	}

	genesis := mustWrite(t, reg, "genesis")
	if tips := reg.TipHashes(); !slices.Equal(tips, []address.Address{genesis.Hash}) {
		t.Fatalf("tips after genesis = %v", tips)
	}

	second := mustWrite(t, reg, "second", genesis.Hash)
	if tips := reg.TipHashes(); !slices.Equal(tips, []address.Address{second.Hash}) {
		t.Fatalf("tips after second write = %v", tips)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}

	got, ok := reg.Entry(second.Hash)
	if !ok || string(got.Payload) != "second" || !slices.Equal(got.Parents, []address.Address{genesis.Hash}) {
		t.Errorf("Entry(second) = %+v, %v", got, ok)
	}
}

func TestWriteRejectsUnknownParent(t *testing.T) {
	reg := New(testKey)
	mustWrite(t, reg, "genesis")
	stranger := address.ForContent([]byte("not an entry"))

	_, err := reg.Write([]byte("orphan"), []address.Address{stranger})
	if !errors.Is(err, dataerr.ErrUnknownParent) {
		t.Fatalf("Write with unknown parent = %v, want ErrUnknownParent", err)
	}
	if reg.Len() != 1 {
		t.Errorf("rejected write changed the register: Len() = %d", reg.Len())
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	reg := New(testKey)
	genesis := mustWrite(t, reg, "genesis")
	first := mustWrite(t, reg, "value", genesis.Hash, genesis.Hash)
	second := mustWrite(t, reg, "value", genesis.Hash)
	if first.Hash != second.Hash {
		t.Error("identical writes produced different entries")
	}
	if len(first.Parents) != 1 {
		t.Errorf("duplicate parents were not collapsed: %v", first.Parents)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestEntryHashCoversRegisterKey(t *testing.T) {
	other := address.ForRegister([]byte("owner"), []byte("other"))
	a := mustWrite(t, New(testKey), "same")
	b := mustWrite(t, New(other), "same")
	if a.Hash == b.Hash {
		t.Error("entries in different registers share a hash")
	}

	empty, err := HashEntry(testKey, []byte{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	nilPayload, err := HashEntry(testKey, nil, []address.Address{})
	if err != nil {
		t.Fatal(err)
	}
	if empty != nilPayload {
		t.Error("nil and empty payloads hash differently")
	}
}

func TestTwoReplicasConverge(t *testing.T) {
	r1 := New(testKey)
	genesis := mustWrite(t, r1, "genesis")
	r2 := New(testKey)
	mustMerge(t, r2, r1.View())

	e1 := mustWrite(t, r1, "from r1", genesis.Hash)
	e2 := mustWrite(t, r2, "from r2", genesis.Hash)

	mustMerge(t, r1, r2.View())
	mustMerge(t, r2, r1.View())

	want := []address.Address{e1.Hash, e2.Hash}
	slices.SortFunc(want, address.Address.Compare)
	if got := r1.TipHashes(); !slices.Equal(got, want) {
		t.Errorf("r1 tips = %v, want %v", got, want)
	}
	if got := r2.TipHashes(); !slices.Equal(got, want) {
		t.Errorf("r2 tips = %v, want %v", got, want)
	}

	// A merge-write citing both tips reconciles to one.
	resolved := mustWrite(t, r1, "resolved", r1.TipHashes()...)
	mustMerge(t, r2, r1.Delta(r2.Hashes()))
	if got := r2.TipHashes(); !slices.Equal(got, []address.Address{resolved.Hash}) {
		t.Errorf("r2 tips after merge-write = %v", got)
	}
}

func TestDelta(t *testing.T) {
	reg := New(testKey)
	genesis := mustWrite(t, reg, "genesis")
	next := mustWrite(t, reg, "next", genesis.Hash)

	delta := reg.Delta([]address.Address{genesis.Hash})
	if len(delta.Entries) != 1 || delta.Entries[0].Hash != next.Hash {
		t.Fatalf("Delta = %+v, want only the second entry", delta.Entries)
	}

	peer := New(testKey)
	if _, err := peer.Merge(delta); !errors.Is(err, dataerr.ErrUnknownParent) {
		t.Errorf("merging a delta without its parent = %v, want ErrUnknownParent", err)
	}
	if peer.Len() != 0 {
		t.Error("failed merge left entries behind")
	}
}

func TestMergeValidation(t *testing.T) {
	source := New(testKey)
	genesis := mustWrite(t, source, "genesis")
	mustWrite(t, source, "child", genesis.Hash)

	tests := []struct {
		name   string
		mutate func(view *View)
		want   error
	}{
		{
			name:   "wrong register",
			mutate: func(view *View) { view.Key = address.ForRegister([]byte("x"), []byte("y")) },
			want:   ErrRegisterMismatch,
		},
		{
			name:   "tampered payload",
			mutate: func(view *View) { view.Entries[0].Payload = []byte("forged") },
			want:   ErrInvalidEntry,
		},
		{
			name: "unsorted parents",
			mutate: func(view *View) {
				for i := range view.Entries {
					if len(view.Entries[i].Parents) > 0 {
						view.Entries[i].Parents = append(view.Entries[i].Parents, view.Entries[i].Parents[0])
					}
				}
			},
			want: ErrInvalidEntry,
		},
		{
			name: "missing parent",
			mutate: func(view *View) {
				view.Entries = slices.DeleteFunc(view.Entries, func(e Entry) bool { return e.Hash == genesis.Hash })
			},
			want: dataerr.ErrUnknownParent,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			view := source.View()
			test.mutate(view)
			target := New(testKey)
			_, err := target.Merge(view)
			if !errors.Is(err, test.want) {
				t.Fatalf("Merge = %v, want %v", err, test.want)
			}
			if target.Len() != 0 {
				t.Errorf("rejected merge added %d entries", target.Len())
			}
		})
	}
}

func TestViewMarshalRoundtrip(t *testing.T) {
	reg := New(testKey)
	genesis := mustWrite(t, reg, "genesis")
	mustWrite(t, reg, "a", genesis.Hash)
	mustWrite(t, reg, "b", genesis.Hash)

	encoded, err := MarshalView(reg.View())
	if err != nil {
		t.Fatalf("MarshalView: %v", err)
	}
	decoded, err := UnmarshalView(encoded)
	if err != nil {
		t.Fatalf("UnmarshalView: %v", err)
	}
	replica, err := FromView(decoded)
	if err != nil {
		t.Fatalf("FromView: %v", err)
	}
	if !slices.Equal(replica.TipHashes(), reg.TipHashes()) {
		t.Error("replica built from decoded view has different tips")
	}
	if !slices.Equal(decoded.Tips(), reg.TipHashes()) {
		t.Error("View.Tips disagrees with Register.Tips")
	}
}

func TestConcurrentWrites(t *testing.T) {
	reg := New(testKey)
	genesis := mustWrite(t, reg, "genesis")

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Write(fmt.Appendf(nil, "writer %d", i), []address.Address{genesis.Hash}); err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
		}()
	}
	wg.Wait()
	if len(reg.Tips()) != 16 {
		t.Errorf("got %d tips, want 16", len(reg.Tips()))
	}
}

// replicaSet drives several replicas through a random interleaving of
// writes and pairwise merges.
func replicaSet(t *rapid.T) []*Register {
	replicas := []*Register{New(testKey), New(testKey), New(testKey)}
	if _, err := replicas[0].Write([]byte("genesis"), nil); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	for _, replica := range replicas[1:] {
		if _, err := replica.Merge(replicas[0].View()); err != nil {
			t.Fatalf("seeding replica: %v", err)
		}
	}

	steps := rapid.IntRange(0, 24).Draw(t, "steps")
	for range steps {
		target := rapid.IntRange(0, len(replicas)-1).Draw(t, "replica")
		reg := replicas[target]
		if rapid.Bool().Draw(t, "merge") {
			source := rapid.IntRange(0, len(replicas)-1).Draw(t, "source")
			if _, err := reg.Merge(replicas[source].View()); err != nil {
				t.Fatalf("merge: %v", err)
			}
			continue
		}
		known := reg.Hashes()
		var parents []address.Address
		if rapid.Bool().Draw(t, "merge-write") {
			parents = reg.TipHashes()
		} else {
			count := rapid.IntRange(0, min(3, len(known))).Draw(t, "parent_count")
			for range count {
				parents = append(parents, known[rapid.IntRange(0, len(known)-1).Draw(t, "parent")])
			}
		}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(t, "payload")
		if _, err := reg.Write(payload, parents); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return replicas
}

func union(t *rapid.T, views ...*View) *Register {
	reg := New(testKey)
	for _, view := range views {
		if _, err := reg.Merge(view); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}
	return reg
}

func sameState(a, b *Register) bool {
	return slices.Equal(a.Hashes(), b.Hashes()) && slices.Equal(a.TipHashes(), b.TipHashes())
}

func TestMergeLaws(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		replicas := replicaSet(t)
		a, b, c := replicas[0].View(), replicas[1].View(), replicas[2].View()

		if !sameState(union(t, a, b), union(t, b, a)) {
			t.Fatal("merge is not commutative")
		}
		left := union(t, union(t, a, b).View(), c)
		right := union(t, a, union(t, b, c).View())
		if !sameState(left, right) {
			t.Fatal("merge is not associative")
		}
		once := union(t, a)
		twice := union(t, a, a)
		if !sameState(once, twice) {
			t.Fatal("merge is not idempotent")
		}
		if added, err := twice.Merge(a); err != nil || added != 0 {
			t.Fatalf("re-merging added %d entries (err %v)", added, err)
		}
	})
}

func TestReplicasConvergeAfterExchange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		replicas := replicaSet(t)
		// Two full rounds of all-pairs exchange reach every replica.
		for range 2 {
			for _, target := range replicas {
				for _, source := range replicas {
					if _, err := target.Merge(source.Delta(target.Hashes())); err != nil {
						t.Fatalf("exchange: %v", err)
					}
				}
			}
		}
		for i, replica := range replicas[1:] {
			if !sameState(replicas[0], replica) {
				t.Fatalf("replica %d diverged from replica 0", i+1)
			}
		}
		// The tips are exactly the entries nobody cites.
		view := replicas[0].View()
		if !slices.Equal(view.Tips(), replicas[0].TipHashes()) {
			t.Fatal("tip set disagrees with the entry graph")
		}
	})
}
