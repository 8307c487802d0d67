// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evidentia-foundation/evidentia/lib/blobstore"
)

// file is the on-disk YAML layout.
type file struct {
	ListenAddr  string `yaml:"listen_addr"`
	DataDir     string `yaml:"data_dir"`
	PoolSize    int    `yaml:"pool_size"`
	Compression string `yaml:"compression"`
	SealKey     string `yaml:"seal_key"`
	TrustKey    string `yaml:"trust_key"`
	Environment string `yaml:"environment"`
}

// Config is the validated server configuration.
type Config struct {
	// ListenAddr is the HTTP listen address ("127.0.0.1:8420").
	ListenAddr string

	// DataDir holds the catalog database and the blob tree.
	DataDir string

	// PoolSize is the SQLite connection pool size. Zero means the
	// pool default.
	PoolSize int

	// Compression is the preferred blob compression.
	Compression blobstore.CompressionTag

	// SealKey is the decoded 32-byte blob seal key, or nil when
	// at-rest sealing is disabled.
	SealKey []byte

	// TrustKey is the Ed25519 public key officer tokens must be
	// signed with.
	TrustKey ed25519.PublicKey

	// Environment names the deployment ("production", "staging").
	// Logged at startup.
	Environment string
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f file
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if f.ListenAddr == "" {
		return Config{}, errors.New("config: listen_addr is required")
	}
	if f.DataDir == "" {
		return Config{}, errors.New("config: data_dir is required")
	}
	if f.PoolSize < 0 {
		return Config{}, fmt.Errorf("config: pool_size %d is negative", f.PoolSize)
	}
	if f.Compression == "" {
		return Config{}, errors.New("config: compression is required (none, lz4, or zstd)")
	}
	compression, err := blobstore.ParseCompressionTag(f.Compression)
	if err != nil {
		return Config{}, err
	}
	if f.TrustKey == "" {
		return Config{}, errors.New("config: trust_key is required")
	}
	trustKey, err := hex.DecodeString(f.TrustKey)
	if err != nil {
		return Config{}, fmt.Errorf("config: decoding trust_key: %w", err)
	}
	if len(trustKey) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("config: trust_key is %d bytes, want %d", len(trustKey), ed25519.PublicKeySize)
	}

	cfg := Config{
		ListenAddr:  f.ListenAddr,
		DataDir:     f.DataDir,
		PoolSize:    f.PoolSize,
		Compression: compression,
		TrustKey:    ed25519.PublicKey(trustKey),
		Environment: f.Environment,
	}

	if f.SealKey != "" {
		sealKey, err := hex.DecodeString(f.SealKey)
		if err != nil {
			return Config{}, fmt.Errorf("config: decoding seal_key: %w", err)
		}
		if len(sealKey) != blobstore.SealKeySize {
			return Config{}, fmt.Errorf("config: seal_key is %d bytes, want %d", len(sealKey), blobstore.SealKeySize)
		}
		cfg.SealKey = sealKey
	}

	return cfg, nil
}
