// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcpadapter

import (
	"testing"

	"github.com/kraklabs/mnemo/internal/contract"
)

func TestValidateTraversalDepth_BoundaryBehaviors(t *testing.T) {
	cases := []struct {
		depth int
		ok    bool
	}{
		{depth: 0, ok: false},
		{depth: 6, ok: false},
		{depth: 1, ok: true},
		{depth: 5, ok: true},
		{depth: -1, ok: false},
	}
	for _, c := range cases {
		if got := contract.ValidateTraversalDepth(c.depth).OK; got != c.ok {
			t.Errorf("ValidateTraversalDepth(%d).OK = %v, want %v", c.depth, got, c.ok)
		}
	}
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult(map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("jsonResult returned an error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("jsonResult produced no content")
	}
}

func TestErrResult(t *testing.T) {
	res, err := errResult("repository %q not found", "demo")
	if err != nil {
		t.Fatalf("errResult returned a tool-call error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("errResult did not mark the result as an error")
	}
	if len(res.Content) == 0 {
		t.Fatalf("errResult produced no content")
	}
}
