package validation

import (
	"path/filepath"
	"testing"
)

func TestValidateRelPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		// Valid paths
		{"simple", "main.go", false},
		{"nested", "pkg/server/handler.go", false},
		{"dotfile", ".gitignore", false},
		{"dot segment collapses", "pkg/./server.go", false},
		{"internal dotdot stays inside", "pkg/../cmd/main.go", false},
		{"spaces", "docs/release notes.md", false},

		// Invalid paths - traversal attempts
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"bare dotdot", "..", true},
		{"leading dotdot", "../secrets.env", true},
		{"nested escape", "pkg/../../other/file.go", true},
		{"deep escape", "a/b/../../../c", true},
		{"nul byte", "main.go\x00.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRelPaths(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		wantErr bool
	}{
		{"all valid", []string{"a.go", "pkg/b.go", "cmd/c.go"}, false},
		{"one invalid", []string{"a.go", "../escape.go", "c.go"}, true},
		{"all invalid", []string{"/abs", ".."}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelPaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelPaths(%v) error = %v, wantErr %v", tt.paths, err, tt.wantErr)
			}
		})
	}
}

func TestResolveUnder(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{"simple", "main.go", filepath.Join(root, "main.go"), false},
		{"nested", "pkg/server.go", filepath.Join(root, "pkg", "server.go"), false},
		{"cleaned", "pkg/../main.go", filepath.Join(root, "main.go"), false},
		{"escape rejected", "../outside.go", "", true},
		{"absolute rejected", "/etc/passwd", "", true},
		{"empty rejected", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUnder(root, tt.rel)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveUnder(%q, %q) error = %v, wantErr %v", root, tt.rel, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ResolveUnder(%q, %q) = %q, want %q", root, tt.rel, got, tt.want)
			}
		})
	}
}
