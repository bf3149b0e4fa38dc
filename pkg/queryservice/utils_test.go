// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queryservice

import (
	"testing"

	"github.com/kraklabs/mnemo/pkg/graphstore"
)

func TestAnyToInt(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{in: int(3), want: 3},
		{in: int64(7), want: 7},
		{in: float64(2.0), want: 2},
		{in: "not a number", want: 0},
		{in: nil, want: 0},
	}
	for _, c := range cases {
		if got := anyToInt(c.in); got != c.want {
			t.Errorf("anyToInt(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestJoinRelTypesRaw(t *testing.T) {
	if got := joinRelTypesRaw(nil); got != "*" {
		t.Errorf("joinRelTypesRaw(nil) = %q, want *", got)
	}

	a := joinRelTypesRaw([]graphstore.RelType{graphstore.RelCalls, graphstore.RelDefines})
	b := joinRelTypesRaw([]graphstore.RelType{graphstore.RelDefines, graphstore.RelCalls})
	if a != b {
		t.Errorf("joinRelTypesRaw not order-independent: %q != %q", a, b)
	}
}

func TestItoa(t *testing.T) {
	if got := itoa(5); got != "5" {
		t.Errorf("itoa(5) = %q, want 5", got)
	}
}
