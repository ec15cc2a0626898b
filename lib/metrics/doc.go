// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors shared by the
// upload and reconstruction paths. Exposition is the embedding
// program's concern: pass a registry to [New] and serve it however
// the program serves metrics.
package metrics
