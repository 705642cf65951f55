package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMemoryVault_PutAndGetObject(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	tests := []struct {
		name    string
		key     string
		content string
		wantErr bool
	}{
		{
			name:    "store and retrieve object",
			key:     "host/Backup_1/a.txt",
			content: "hello world",
		},
		{
			name:    "store empty object",
			key:     "host/Backup_1/empty",
			content: "",
		},
		{
			name:    "store large object",
			key:     "host/Backup_1/large.bin",
			content: strings.Repeat("x", 10000),
		},
		{
			name:    "reject escaping key",
			key:     "host/../other/a.txt",
			content: "x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := strings.NewReader(tt.content)
			err := vault.PutObject(tt.key, r, int64(len(tt.content)))
			if (err != nil) != tt.wantErr {
				t.Errorf("PutObject() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			var buf bytes.Buffer
			if err := vault.GetObject(tt.key, &buf); err != nil {
				t.Errorf("GetObject() unexpected error: %v", err)
				return
			}
			if got := buf.String(); got != tt.content {
				t.Errorf("GetObject() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestMemoryVault_PutObjectReplaces(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	for _, content := range []string{"first", "second"} {
		if err := vault.PutObject("k", strings.NewReader(content), int64(len(content))); err != nil {
			t.Fatalf("PutObject(%q) error: %v", content, err)
		}
	}

	var buf bytes.Buffer
	if err := vault.GetObject("k", &buf); err != nil {
		t.Fatalf("GetObject() error: %v", err)
	}
	if got := buf.String(); got != "second" {
		t.Errorf("GetObject() = %q, want %q", got, "second")
	}
}

func TestMemoryVault_GetObjectNotFound(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	var buf bytes.Buffer
	err := vault.GetObject("nonexistent", &buf)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("GetObject() error = %v, want ErrObjectNotFound", err)
	}
}

func TestMemoryVault_PutObjectSizeMismatch(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	content := "test"
	err := vault.PutObject("k", strings.NewReader(content), int64(len(content)+10))
	if err == nil {
		t.Error("PutObject() expected error for size mismatch, got nil")
	}
}

func TestMemoryVault_ListObjects(t *testing.T) {
	vault := NewMemoryVault("test-vault")
	for _, key := range []string{"h/B2/z.txt", "h/B1/b.txt", "h/B1/a/c.txt", "other/B1/a.txt"} {
		if err := vault.PutObject(key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutObject(%s) error: %v", key, err)
		}
	}

	got, err := vault.ListObjects("h/B1/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	want := []string{"h/B1/a/c.txt", "h/B1/b.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListObjects() = %v, want %v", got, want)
	}

	none, err := vault.ListObjects("h/B3/")
	if err != nil {
		t.Fatalf("ListObjects() error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListObjects() = %v, want empty", none)
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	if err := vault.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() unexpected error: %v", err)
	}
	if vault.Name() != "test-vault" {
		t.Errorf("Name() = %q, want %q", vault.Name(), "test-vault")
	}
}
