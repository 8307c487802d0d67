// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

// Package keymutex provides per-key exclusive sections.
//
// The custody chain for one artifact must have a single well-defined
// next sequence number, so all mutations to one artifact serialize.
// A global mutex would serialize unrelated artifacts too; keymutex
// gives each key (evidence id, case id) its own critical section so
// the system scales with the number of concurrently handled artifacts.
//
// Entries are reference-counted and reclaimed when the last holder
// unlocks, so the map does not grow with the total number of keys ever
// locked — only with the number currently contended.
package keymutex
