package character

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dhgen/internal/services"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a/b\c`, "a_b_c"},
		{"   ", DefaultName},
		{"...", DefaultName},
		{"", DefaultName},
		{` .Alice. `, "Alice"},
		{`x:y*z?"<>|`, "x_y_z_____"},
		{"nul\x00byte", "nul_byte"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"Café", "Café"},
	}
	for _, tt := range tests {
		got := SanitizeName(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := SanitizeName(got); again != got {
			t.Errorf("SanitizeName not idempotent for %q: %q -> %q", tt.in, got, again)
		}
	}
}

func TestSanitizePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	for _, requested := range []string{
		"../../etc/passwd",
		`..\..\windows\system32`,
		"..",
		".",
		"",
		"/etc/passwd",
		"alice/../../outside",
	} {
		_, err := SanitizePath(root, requested)
		if !errors.Is(err, services.ErrBoundary) {
			t.Errorf("SanitizePath(%q) error = %v, want ErrBoundary", requested, err)
		}
	}
}

func TestSanitizePathAcceptsDescendants(t *testing.T) {
	root := t.TempDir()
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := SanitizePath(root, "alice")
	if err != nil {
		t.Fatalf("SanitizePath: %v", err)
	}
	if got != filepath.Join(canonicalRoot, "alice") {
		t.Fatalf("unexpected path %q", got)
	}
	if got, err := SanitizePath(root, "alice/../bob"); err != nil || filepath.Base(got) != "bob" {
		t.Fatalf("expected bob inside root, got %q err=%v", got, err)
	}
}

func TestSanitizePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "sneaky")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := SanitizePath(root, "sneaky"); !errors.Is(err, services.ErrBoundary) {
		t.Fatalf("expected boundary error for symlink escape, got %v", err)
	}
}
