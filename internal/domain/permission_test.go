package domain

import "testing"

func TestPermissionAtLeast(t *testing.T) {
	t.Parallel()

	cases := []struct {
		have, need PermissionLevel
		want       bool
	}{
		{PermissionView, PermissionView, true},
		{PermissionView, PermissionEdit, false},
		{PermissionView, PermissionAdmin, false},
		{PermissionEdit, PermissionView, true},
		{PermissionEdit, PermissionEdit, true},
		{PermissionEdit, PermissionAdmin, false},
		{PermissionAdmin, PermissionView, true},
		{PermissionAdmin, PermissionEdit, true},
		{PermissionAdmin, PermissionAdmin, true},
		{PermissionLevel("owner"), PermissionView, false},
		{PermissionAdmin, PermissionLevel("root"), false},
		{PermissionLevel(""), PermissionView, false},
	}
	for _, tc := range cases {
		if got := tc.have.AtLeast(tc.need); got != tc.want {
			t.Errorf("AtLeast(%q, %q) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}

func TestPermissionValid(t *testing.T) {
	t.Parallel()

	for _, level := range []PermissionLevel{PermissionView, PermissionEdit, PermissionAdmin} {
		if !level.Valid() {
			t.Errorf("%q should be valid", level)
		}
	}
	for _, level := range []PermissionLevel{"", "owner", "VIEW", "viewer"} {
		if level.Valid() {
			t.Errorf("%q should not be valid", level)
		}
	}
}
