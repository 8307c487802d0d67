// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the server configuration from a YAML file.
//
// There are no fallback paths and no environment overrides: the file
// named on the command line is the whole configuration, and missing
// required fields fail loading rather than defaulting silently.
package config
