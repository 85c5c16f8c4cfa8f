// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package keyer

import (
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

func testEntity() datatypes.Entity {
	return datatypes.Entity{
		ID:         "rule-1",
		Definition: "deny access when classification = restricted",
		Metadata:   map[string]string{"owner": "governance", "tier": "gold"},
		Conditions: []datatypes.Condition{
			{Field: "classification", Operator: "eq", Value: "restricted"},
		},
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	cfg := datatypes.DefaultMatchConfiguration()

	fp1 := Fingerprint(testEntity(), "lib-1", cfg)
	fp2 := Fingerprint(testEntity(), "lib-1", cfg)

	if fp1 != fp2 {
		t.Errorf("identical inputs produced different fingerprints: %s != %s", fp1, fp2)
	}
	if len(fp1) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(fp1))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	cfg := datatypes.DefaultMatchConfiguration()
	base := Fingerprint(testEntity(), "lib-1", cfg)

	t.Run("entity content change", func(t *testing.T) {
		e := testEntity()
		e.Definition = "deny access when classification = internal"
		if Fingerprint(e, "lib-1", cfg) == base {
			t.Error("changed definition should change fingerprint")
		}
	})

	t.Run("library change", func(t *testing.T) {
		if Fingerprint(testEntity(), "lib-2", cfg) == base {
			t.Error("changed library should change fingerprint")
		}
	})

	t.Run("config change", func(t *testing.T) {
		c := cfg
		c.SimilarityThreshold = 0.9
		if Fingerprint(testEntity(), "lib-1", c) == base {
			t.Error("changed threshold should change fingerprint")
		}
	})

	t.Run("omitted and explicit-true toggles are identical", func(t *testing.T) {
		on := true
		c := cfg
		c.EnableSemantic = &on
		c.EnableFuzzy = &on
		c.EnableContextual = &on
		if Fingerprint(testEntity(), "lib-1", c) != base {
			t.Error("spelling out the default toggles must not change request identity")
		}
	})

	t.Run("disabled toggle changes identity", func(t *testing.T) {
		off := false
		c := cfg
		c.EnableSemantic = &off
		if Fingerprint(testEntity(), "lib-1", c) == base {
			t.Error("disabling a strategy should change the fingerprint")
		}
	})

	t.Run("bypass flag excluded", func(t *testing.T) {
		c := cfg
		c.BypassCache = true
		if Fingerprint(testEntity(), "lib-1", c) != base {
			t.Error("bypass flag must not change request identity")
		}
	})

	t.Run("metadata single byte", func(t *testing.T) {
		e := testEntity()
		e.Metadata["tier"] = "golD"
		if Fingerprint(e, "lib-1", cfg) == base {
			t.Error("metadata byte change should change fingerprint")
		}
	})
}

func TestFingerprintWhitespaceNormalization(t *testing.T) {
	cfg := datatypes.DefaultMatchConfiguration()
	base := Fingerprint(testEntity(), "lib-1", cfg)

	e := testEntity()
	e.Definition = "  deny   access\twhen classification =\nrestricted "
	if Fingerprint(e, "lib-1", cfg) != base {
		t.Error("whitespace runs should canonicalize to the same fingerprint")
	}
}

func TestFingerprintWeightOrderIrrelevant(t *testing.T) {
	// Map iteration order must not leak into the fingerprint.
	cfg := datatypes.DefaultMatchConfiguration()
	cfg.Weights = map[datatypes.Strategy]float64{
		datatypes.StrategySemantic:  0.5,
		datatypes.StrategyFuzzy:     0.2,
		datatypes.StrategySyntactic: 0.3,
	}

	fp1 := Fingerprint(testEntity(), "lib-1", cfg)
	for i := 0; i < 50; i++ {
		if fp := Fingerprint(testEntity(), "lib-1", cfg); fp != fp1 {
			t.Fatalf("fingerprint unstable across calls: %s != %s", fp, fp1)
		}
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash(testEntity())
	h2 := ContentHash(testEntity())
	if h1 != h2 {
		t.Errorf("content hash not deterministic: %s != %s", h1, h2)
	}

	e := testEntity()
	e.Definition += "!"
	if ContentHash(e) == h1 {
		t.Error("content change should change content hash")
	}
}
