package manifest

import "testing"

func TestToModuleName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"models", "models"},
		{"my-app", "my_app"},
		{"My.App", "my_app"},
		{"already_snake", "already_snake"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := ToModuleName(tc.input); got != tc.want {
			t.Errorf("ToModuleName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsModuleName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"util", true},
		{"pkg.sub_mod", true},
		{"_private2", true},
		{"", false},
		{"2d", false},
		{"a..b", false},
		{"my-lib", false},
		{"import", false},
		{"pkg.class", false},
	}
	for _, tc := range tests {
		if got := IsModuleName(tc.name); got != tc.want {
			t.Errorf("IsModuleName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsReservedPackage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"math", true},
		{"asyncio.tasks", true},
		{"vendor.json", false},
		{"geometry", false},
	}
	for _, tc := range tests {
		if got := IsReservedPackage(tc.name); got != tc.want {
			t.Errorf("IsReservedPackage(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
