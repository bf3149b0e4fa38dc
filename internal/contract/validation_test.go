// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"
)

func TestValidateQueryLength_Boundaries(t *testing.T) {
	cases := []struct {
		name  string
		query string
		ok    bool
	}{
		{"empty", "", false},
		{"over_max", strings.Repeat("a", 1001), false},
		{"min_accepted", "a", true},
		{"max_accepted", strings.Repeat("a", 1000), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidateQueryLength(c.query).OK; got != c.ok {
				t.Errorf("ValidateQueryLength(len=%d).OK = %v, want %v", len(c.query), got, c.ok)
			}
		})
	}
}

func TestValidateResultLimit_Boundaries(t *testing.T) {
	cases := []struct {
		limit int
		ok    bool
	}{
		{0, false},
		{51, false},
		{1, true},
		{50, true},
		{-1, false},
	}
	for _, c := range cases {
		if got := ValidateResultLimit(c.limit).OK; got != c.ok {
			t.Errorf("ValidateResultLimit(%d).OK = %v, want %v", c.limit, got, c.ok)
		}
	}
}

func TestValidateSimilarityThreshold_Boundaries(t *testing.T) {
	cases := []struct {
		threshold float64
		ok        bool
	}{
		{-0.01, false},
		{1.01, false},
		{0, true},
		{1, true},
	}
	for _, c := range cases {
		if got := ValidateSimilarityThreshold(c.threshold).OK; got != c.ok {
			t.Errorf("ValidateSimilarityThreshold(%v).OK = %v, want %v", c.threshold, got, c.ok)
		}
	}
}

func TestValidateTraversalDepth_Boundaries(t *testing.T) {
	cases := []struct {
		depth int
		ok    bool
	}{
		{0, false},
		{6, false},
		{1, true},
		{5, true},
	}
	for _, c := range cases {
		if got := ValidateTraversalDepth(c.depth).OK; got != c.ok {
			t.Errorf("ValidateTraversalDepth(%d).OK = %v, want %v", c.depth, got, c.ok)
		}
	}
}

func TestValidatePathHops_Boundaries(t *testing.T) {
	cases := []struct {
		hops int
		ok   bool
	}{
		{0, false},
		{21, false},
		{1, true},
		{20, true},
	}
	for _, c := range cases {
		if got := ValidatePathHops(c.hops).OK; got != c.ok {
			t.Errorf("ValidatePathHops(%d).OK = %v, want %v", c.hops, got, c.ok)
		}
	}
}

func TestValidationResult_MessageNonEmptyOnFailure(t *testing.T) {
	if v := ValidateResultLimit(0); v.OK || v.Message == "" {
		t.Fatalf("ValidateResultLimit(0) = %+v, want OK=false with a non-empty message", v)
	}
}

func TestValidateBatchScript_RespectsSoftLimit(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "16")
	if v := ValidateBatchScript(strings.Repeat("x", 17)); v.OK {
		t.Fatalf("ValidateBatchScript() = %+v, want OK=false for a script over the configured soft limit", v)
	}
	if v := ValidateBatchScript(strings.Repeat("x", 16)); !v.OK {
		t.Fatalf("ValidateBatchScript() = %+v, want OK=true for a script at the configured soft limit", v)
	}
}
