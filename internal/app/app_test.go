package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"treebak/internal/config"
	"treebak/internal/testutil"
	"treebak/internal/treebak"
)

const testBackupName = "MigrationsGeneratorTestsBackup_20240102_030405"

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig("host-1", t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Vaults = []config.VaultConfig{{Type: "memory", Name: "mem"}}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *App {
	t.Helper()
	a, err := newApp(cfg, operation, testutil.FixedClock(), testutil.NewStubIDGenerator())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// newTestRepo creates <tmp>/repo with a .git marker and the default source tree.
func newTestRepo(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "repo")
	files := map[string]string{
		".git/HEAD": "ref: refs/heads/main\n",
		"OpenAPIHandlerGen/Tests/MigrationsGeneratorTests/A.swift":      "alpha",
		"OpenAPIHandlerGen/Tests/MigrationsGeneratorTests/Edge/B.swift": "bravo",
		"OpenAPIHandlerGen/Sources/Generator.swift":                     "not backed up",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return root
}

func TestApp_BackupFromNestedDirectory(t *testing.T) {
	root := newTestRepo(t)
	a := newTestApp(t, newTestConfig(t), OpBackup)

	found, err := a.LocateRoot(filepath.Join(root, "OpenAPIHandlerGen", "Sources"))
	if err != nil {
		t.Fatalf("LocateRoot() error = %v", err)
	}
	if found != root {
		t.Errorf("LocateRoot() = %q, want %q", found, root)
	}

	rec, err := a.Backup(found)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	wantDest := filepath.Join(root, testBackupName)
	if rec.Destination != wantDest {
		t.Errorf("Destination = %q, want %q", rec.Destination, wantDest)
	}
	got, err := os.ReadFile(filepath.Join(wantDest, "Edge", "B.swift"))
	if err != nil || string(got) != "bravo" {
		t.Errorf("Edge/B.swift = %q, %v; want %q", got, err, "bravo")
	}

	entries, err := a.ListBackups(found)
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != testBackupName {
		t.Errorf("ListBackups() = %+v", entries)
	}

	recs, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Status != treebak.StatusSuccess {
		t.Errorf("GetHistory() = %+v", recs)
	}
}

func TestApp_LocateRootOutsideRepository(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), OpBackup)

	_, err := a.LocateRoot(t.TempDir())
	if !errors.Is(err, treebak.ErrRootNotFound) {
		t.Fatalf("LocateRoot() error = %v, want ErrRootNotFound", err)
	}
	if a.op.Status != "error" {
		t.Errorf("operation status = %q, want error", a.op.Status)
	}
}

func TestApp_PushPull(t *testing.T) {
	tests := []struct {
		name       string
		encryption string
	}{
		{name: "plaintext", encryption: "none"},
		{name: "encrypted", encryption: "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newTestRepo(t)
			cfg := newTestConfig(t)
			cfg.Encryption.Type = tt.encryption
			a := newTestApp(t, cfg, OpPush)

			if _, err := a.Backup(root); err != nil {
				t.Fatalf("Backup() error = %v", err)
			}
			push, err := a.Push(root, testBackupName)
			if err != nil {
				t.Fatalf("Push() error = %v", err)
			}
			if push.Objects != 2 {
				t.Errorf("Objects = %d, want 2", push.Objects)
			}

			pushes, err := a.ListPushes(testBackupName)
			if err != nil {
				t.Fatalf("ListPushes() error = %v", err)
			}
			if len(pushes) != 1 || pushes[0].Encrypted != (tt.encryption != "none") {
				t.Errorf("ListPushes() = %+v", pushes)
			}

			need, err := a.PullNeedsPassphrase(testBackupName)
			if err != nil {
				t.Fatalf("PullNeedsPassphrase() error = %v", err)
			}
			if need != (tt.encryption != "none") {
				t.Errorf("PullNeedsPassphrase() = %v", need)
			}

			if err := os.RemoveAll(filepath.Join(root, testBackupName)); err != nil {
				t.Fatalf("RemoveAll() error = %v", err)
			}
			written, err := a.Pull(root, testBackupName, "")
			if err != nil {
				t.Fatalf("Pull() error = %v", err)
			}
			if len(written) != 2 {
				t.Errorf("Pull() wrote %d files, want 2", len(written))
			}
			got, _ := os.ReadFile(filepath.Join(root, testBackupName, "A.swift"))
			if string(got) != "alpha" {
				t.Errorf("pulled A.swift = %q, want %q", got, "alpha")
			}
		})
	}
}

func TestApp_PullEncryptedWithoutEncryption(t *testing.T) {
	root := newTestRepo(t)
	cfg := newTestConfig(t)
	cfg.Encryption.Type = "test"
	pusher := newTestApp(t, cfg, OpPush)
	if _, err := pusher.Backup(root); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if _, err := pusher.Push(root, testBackupName); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	// Reuse the pushed objects from an app that has encryption disabled.
	pusher.encryptor = nil
	_, err := pusher.Pull(root, testBackupName, "")
	if err == nil || !strings.Contains(err.Error(), "encryption is not configured") {
		t.Fatalf("Pull() error = %v", err)
	}
}

func TestApp_ValidateVault(t *testing.T) {
	t.Run("configured vault", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t), OpPush)
		name, err := a.ValidateVault()
		if err != nil {
			t.Fatalf("ValidateVault() error = %v", err)
		}
		if name != "mem" {
			t.Errorf("ValidateVault() = %q, want %q", name, "mem")
		}
	})

	t.Run("no vault", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Vaults = nil
		a := newTestApp(t, cfg, OpPush)
		if _, err := a.ValidateVault(); err == nil {
			t.Fatal("ValidateVault() expected error")
		}
	})
}

func TestApp_KeysInit(t *testing.T) {
	t.Run("disabled encryption", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t), OpKeysInit)
		if _, err := a.KeysInit("pass"); err == nil {
			t.Fatal("KeysInit() expected error when encryption is none")
		}
	})

	t.Run("age keys", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Encryption.Type = "age"
		a := newTestApp(t, cfg, OpKeysInit)

		pub, err := a.KeysInit("correct horse")
		if err != nil {
			t.Fatalf("KeysInit() error = %v", err)
		}
		if !strings.HasPrefix(pub, "age1") {
			t.Errorf("public key = %q, want age1 prefix", pub)
		}
		if _, err := a.KeysInit("again"); err == nil {
			t.Error("second KeysInit() expected error")
		}
	})
}

func TestApp_CloseWritesLog(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := newApp(cfg, OpList, testutil.FixedClock(), testutil.NewStubIDGenerator())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "\tlist:id-1\toperation finished\toperation=list\tstatus=success") {
		t.Errorf("log = %q", data)
	}
}

func TestNewApp_UnusableDataDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	unusable := func() *config.Config {
		cfg := newTestConfig(t)
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(blocker, "db")}
		cfg.LogDir = filepath.Join(blocker, "log")
		return cfg
	}

	t.Run("backup still runs", func(t *testing.T) {
		root := newTestRepo(t)
		a := newTestApp(t, unusable(), OpBackup)

		rec, err := a.Backup(root)
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(rec.Destination, "A.swift")); err != nil {
			t.Errorf("backup not written: %v", err)
		}
	})

	t.Run("other operations fail", func(t *testing.T) {
		for _, op := range []string{OpList, OpHistory, OpPush} {
			if _, err := NewApp(unusable(), op); err == nil {
				t.Errorf("NewApp(%s) expected error", op)
			}
		}
	})
}

func TestNewApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "unknown vault type", mutate: func(c *config.Config) { c.Vaults[0].Type = "ftp" }},
		{name: "unknown encryption type", mutate: func(c *config.Config) { c.Encryption.Type = "rot13" }},
		{name: "unknown database type", mutate: func(c *config.Config) { c.Database.Type = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tt.mutate(cfg)
			if _, err := NewApp(cfg, OpBackup); err == nil {
				t.Fatal("NewApp() expected error")
			}
		})
	}
}
