// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

// Package uuid8 provides deterministic version 8 UUIDs
// as specified in [RFC 9562].
//
// [RFC 9562]: https://datatracker.ietf.org/doc/html/rfc9562#section-5.8
package uuid8

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// FromBytes returns the Version 8 UUID derived from b.
// The input is hashed, so equal input always yields the same UUID
// regardless of length.
func FromBytes(b []byte) uuid.UUID {
	sum := sha256.Sum256(b)
	var result uuid.UUID
	copy(result[:], sum[:len(result)])
	result[6] = (result[6] & 0x0f) | 0x80        // Version 8
	result[8] = (result[8] & 0b00_111111) | 0x80 // RFC 9562 variant
	return result
}
