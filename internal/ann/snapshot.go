// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package ann

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
)

// snapshotFile is the on-disk/in-database envelope for a serialized
// forest: a gzip-compressed gob payload with a SHA-256 checksum over
// the uncompressed bytes.
type snapshotFile struct {
	Checksum string
	Payload  []byte
}

// Encode serializes the forest into a self-verifying blob.
func Encode(f *Forest) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(f); err != nil {
		return nil, fmt.Errorf("ann: encode forest: %w", err)
	}

	hash := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("ann: compress forest: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("ann: finish compression: %w", err)
	}

	sf := snapshotFile{
		Checksum: hex.EncodeToString(hash[:]),
		Payload:  compressed.Bytes(),
	}

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(sf); err != nil {
		return nil, fmt.Errorf("ann: encode snapshot envelope: %w", err)
	}
	return out.Bytes(), nil
}

// Decode deserializes a blob produced by Encode, verifying its
// checksum before reconstructing the forest.
func Decode(blob []byte) (*Forest, error) {
	var sf snapshotFile
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&sf); err != nil {
		return nil, fmt.Errorf("ann: decode snapshot envelope: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.Payload))
	if err != nil {
		return nil, fmt.Errorf("ann: open compressed payload: %w", err)
	}
	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("ann: decompress payload: %w", err)
	}
	if err := gzr.Close(); err != nil {
		return nil, fmt.Errorf("ann: close decompressor: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Checksum {
		return nil, fmt.Errorf("ann: checksum mismatch: expected %s, got %s", sf.Checksum, checksum)
	}

	var f Forest
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return nil, fmt.Errorf("ann: decode forest: %w", err)
	}
	return &f, nil
}
