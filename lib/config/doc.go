// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the client configuration.
//
// The file is named by SELFSTORE_CONFIG ([Load]) or passed to
// [LoadFile]. There is no discovery and environment variables never
// override values; they only fill ${VAR} references in path fields.
// YAML is the native format. Files ending in .json or .jsonc go
// through tidwall/jsonc first, so comments and trailing commas are
// allowed.
//
// Sizes accept humanize strings ("1 MiB") and durations accept Go
// duration strings ("250ms"). A development or production section
// holds a partial config decoded over the base when the environment
// matches.
//
// This package imports nothing else from the module; lib/client
// converts a Config into component options.
package config
