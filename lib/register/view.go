// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"fmt"

	"github.com/bureau-foundation/selfstore/lib/address"
	"github.com/bureau-foundation/selfstore/lib/codec"
)

// View is a set of entries of one register, as exchanged between
// replicas and stores.
type View struct {
	Key     address.Address `json:"key"`
	Entries []Entry         `json:"entries"`
}

// Tips computes the tip hashes of the view on its own, sorted.
func (v *View) Tips() []address.Address {
	cited := make(map[address.Address]struct{})
	for _, entry := range v.Entries {
		for _, parent := range entry.Parents {
			cited[parent] = struct{}{}
		}
	}
	var tips []address.Address
	for _, entry := range v.Entries {
		if _, ok := cited[entry.Hash]; !ok {
			tips = append(tips, entry.Hash)
		}
	}
	return canonicalParents(tips)
}

// MarshalView encodes a view to CBOR.
func MarshalView(view *View) ([]byte, error) {
	data, err := codec.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encoding register view: %w", err)
	}
	return data, nil
}

// UnmarshalView decodes a view. Entry hashes are checked when the view
// is merged, not here.
func UnmarshalView(data []byte) (*View, error) {
	var view View
	if err := codec.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("decoding register view: %w", err)
	}
	return &view, nil
}
