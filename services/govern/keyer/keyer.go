// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keyer computes stable request fingerprints for the match
// cache.
//
// A fingerprint is a pure function of (entity content, library id,
// configuration content). Canonicalization sorts map keys and collapses
// whitespace runs so that representation differences do not change the
// key; it does not attempt semantic canonicalization: two textually
// different rule bodies always produce different fingerprints.
//
// Hashing is FNV-1a 64-bit. This is a cache identity, not a security
// boundary.
package keyer

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// Fingerprint computes the request fingerprint for a
// (entity, library, configuration) triple.
//
// # Description
//
// Deterministic: identical inputs always yield the same fingerprint.
// Distinct triples collide only with the negligible probability of a
// 64-bit hash collision.
//
// # Inputs
//
//   - entity: The governance rule. Only content fields participate.
//   - libraryID: The match library identifier.
//   - config: The match configuration. BypassCache is excluded; it
//     changes caching behavior, not request identity.
//
// # Outputs
//
//   - datatypes.Fingerprint: 16 hex characters.
func Fingerprint(entity datatypes.Entity, libraryID string, config datatypes.MatchConfiguration) datatypes.Fingerprint {
	h := fnv.New64a()
	h.Write([]byte(canonicalEntity(entity)))
	h.Write([]byte{0})
	h.Write([]byte(libraryID))
	h.Write([]byte{0})
	h.Write([]byte(canonicalConfig(config)))
	return datatypes.Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

// ContentHash computes the content hash of an entity alone.
//
// # Description
//
// Used by the semantic vector cache to decide whether a cached
// embedding is stale: a vector is recomputed only when this hash
// changes.
//
// # Outputs
//
//   - string: 16 hex characters.
func ContentHash(entity datatypes.Entity) string {
	h := fnv.New64a()
	h.Write([]byte(canonicalEntity(entity)))
	return fmt.Sprintf("%016x", h.Sum64())
}

// canonicalEntity serializes entity content deterministically.
func canonicalEntity(e datatypes.Entity) string {
	var b strings.Builder
	b.WriteString("id=")
	b.WriteString(e.ID)
	b.WriteString("|def=")
	b.WriteString(normalizeWhitespace(e.Definition))
	b.WriteString("|meta=")
	writeSortedMap(&b, e.Metadata)
	b.WriteString("|cond=")
	for _, c := range e.Conditions {
		b.WriteString(c.Field)
		b.WriteByte(':')
		b.WriteString(c.Operator)
		b.WriteByte(':')
		b.WriteString(normalizeWhitespace(c.Value))
		b.WriteByte(';')
	}
	b.WriteString("|deps=")
	deps := append([]string(nil), e.Dependencies...)
	sort.Strings(deps)
	b.WriteString(strings.Join(deps, ","))
	b.WriteString("|flags=")
	b.WriteString(boolBits(e.AIEnhanced, e.Validated, e.ParallelExecution, e.ThreadSafe))
	b.WriteString("|exec=")
	b.WriteString(strconv.FormatInt(e.EstimatedExecMs, 10))
	return b.String()
}

// canonicalConfig serializes configuration content deterministically.
// BypassCache is deliberately excluded from the serialization.
func canonicalConfig(c datatypes.MatchConfiguration) string {
	var b strings.Builder

	strategies := make([]string, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		strategies = append(strategies, string(s))
	}
	sort.Strings(strategies)
	b.WriteString("strategies=")
	b.WriteString(strings.Join(strategies, ","))

	b.WriteString("|weights=")
	keys := make([]string, 0, len(c.Weights))
	for s := range c.Weights {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(c.Weights[datatypes.Strategy(k)], 'g', -1, 64))
		b.WriteByte(';')
	}

	b.WriteString("|threshold=")
	b.WriteString(strconv.FormatFloat(c.SimilarityThreshold, 'g', -1, 64))
	b.WriteString("|max=")
	b.WriteString(strconv.Itoa(c.MaxMatches))
	b.WriteString("|ttl=")
	b.WriteString(strconv.Itoa(c.CacheTTLSeconds))
	// Effective toggle values, so an omitted toggle and an explicit
	// true produce the same fingerprint.
	b.WriteString("|toggles=")
	b.WriteString(boolBits(c.SemanticEnabled(), c.FuzzyEnabled(), c.ContextualEnabled(), c.EnableExplanations, c.EnableRecommendations))
	return b.String()
}

// normalizeWhitespace trims the string and collapses whitespace runs to
// a single space.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// writeSortedMap appends k=v pairs in key order.
func writeSortedMap(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(normalizeWhitespace(m[k]))
		b.WriteByte(';')
	}
}

// boolBits encodes booleans as a compact bit string.
func boolBits(flags ...bool) string {
	bits := make([]byte, len(flags))
	for i, f := range flags {
		if f {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	return string(bits)
}
