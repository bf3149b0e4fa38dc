// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package cozoutil

import "testing"

func TestAnyToString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"hello", "hello"},
		{float64(3), "3"},
		{float64(3.5), "3.50"},
		{42, "42"},
		{int64(42), "42"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := AnyToString(c.in); got != c.want {
			t.Errorf("AnyToString(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEscapeRegex(t *testing.T) {
	got := EscapeRegex("a.b(c)")
	want := "a[.]b[(]c[)]"
	if got != want {
		t.Errorf("EscapeRegex() = %q, want %q", got, want)
	}
}
