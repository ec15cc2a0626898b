// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry runs chunk operations under a bounded exponential
// backoff. Only errors wrapping dataerr.ErrNetworkTransient are
// retried; everything else, payment rejection and corruption included,
// returns on the first occurrence.
//
// The schedule comes from cenkalti/backoff; the waits go through
// lib/clock so the upload and reconstruction tests never sleep.
package retry
