package app

import (
	"errors"
	"fmt"
	"os"

	"treebak/internal/config"
	"treebak/internal/database"
	"treebak/internal/encryption"
	"treebak/internal/fs"
	"treebak/internal/treebak"
	"treebak/internal/vault"
)

// Operation names used by the CLI.
const (
	OpBackup   = "backup"
	OpList     = "list"
	OpHistory  = "history"
	OpPush     = "push"
	OpPull     = "pull"
	OpKeysInit = "keys-init"
)

// App is the application layer between the CLI and treebak.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type App struct {
	cfg       *config.Config
	history   treebak.History
	vault     treebak.Vault
	encryptor treebak.Encryptor
	service   *treebak.Service
	op        *Operation
	logger    treebak.Logger
	clock     treebak.Clock
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (one of the Op constants).
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	return newApp(cfg, operation, treebak.RealClock{}, treebak.UUIDGenerator{})
}

func newApp(cfg *config.Config, operation string, clock treebak.Clock, idgen treebak.IDGenerator) (*App, error) {
	fsmgr := fs.NewOSFilesystemManager(cfg.Backup.Exclude)

	var v treebak.Vault
	if len(cfg.Vaults) > 0 {
		var err error
		v, err = vault.NewVaultFromConfig(cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	// A backup must not depend on the data directory: history and the log
	// file fall back to memory and stderr when it is unusable.
	degradable := operation == OpBackup

	history, historyErr := database.NewDatabaseFromConfig(cfg.Database)
	if historyErr != nil {
		if !degradable {
			return nil, fmt.Errorf("creating database: %w", historyErr)
		}
		history, err = database.NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
	}

	op := NewOperation(operation, idgen.New(), clock.Now())
	slogger, logFile, logErr := newLogger(cfg.LogDir, op.LogID())
	if logErr != nil {
		if !degradable {
			history.Close()
			return nil, fmt.Errorf("creating logger: %w", logErr)
		}
		slogger = newStderrLogger(op.LogID())
	}
	logger := &slogAdapter{l: slogger}

	if historyErr != nil {
		logger.Warn("history unavailable, this run is not recorded", "error", historyErr)
	}
	if logErr != nil {
		logger.Warn("log file unavailable", "error", logErr)
	}

	svc := treebak.NewService(cfg.Layout(), cfg.HostID, fsmgr, history, v, enc, logger, clock, idgen)

	return &App{
		cfg:       cfg,
		history:   history,
		vault:     v,
		encryptor: enc,
		service:   svc,
		op:        op,
		logger:    logger,
		clock:     clock,
		logFile:   logFile,
	}, nil
}

// Layout returns the backup layout in effect.
func (a *App) Layout() treebak.Layout {
	return a.service.Layout()
}

// LocateRoot finds the repository root at or above start.
func (a *App) LocateRoot(start string) (string, error) {
	root, err := a.service.LocateRoot(start)
	return root, a.op.Fail(err)
}

// Backup copies the source tree of root into a new timestamped directory.
func (a *App) Backup(root string) (*treebak.Record, error) {
	rec, err := a.service.Backup(root)
	return rec, a.op.Fail(err)
}

// ListBackups returns the backup directories under root, oldest first.
func (a *App) ListBackups(root string) ([]*treebak.BackupEntry, error) {
	entries, err := a.service.ListBackups(root)
	return entries, a.op.Fail(err)
}

// GetHistory returns the most recent backup runs.
func (a *App) GetHistory(limit int) ([]*treebak.Record, error) {
	recs, err := a.service.GetHistory(limit)
	return recs, a.op.Fail(err)
}

// ListPushes returns the recorded pushes of the named backup.
func (a *App) ListPushes(name string) ([]*treebak.PushRecord, error) {
	pushes, err := a.service.ListPushes(name)
	return pushes, a.op.Fail(err)
}

// Push uploads the named backup under root to the first configured vault.
func (a *App) Push(root, name string) (*treebak.PushRecord, error) {
	rec, err := a.service.Push(root, name)
	return rec, a.op.Fail(err)
}

// PullNeedsPassphrase reports whether pulling name requires unlocking the
// private key.
func (a *App) PullNeedsPassphrase(name string) (bool, error) {
	need, err := a.service.PullNeedsPassphrase(name)
	return need, a.op.Fail(err)
}

// Pull rebuilds the named backup under root from the vault. passphrase is
// only used when the pushed objects are encrypted.
func (a *App) Pull(root, name, passphrase string) ([]string, error) {
	need, err := a.service.PullNeedsPassphrase(name)
	if err != nil {
		return nil, a.op.Fail(err)
	}

	var decryptCtx treebak.DecryptionContext
	if need {
		if a.encryptor == nil {
			return nil, a.op.Fail(errors.New("backup is encrypted but encryption is not configured"))
		}
		decryptCtx, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, a.op.Fail(fmt.Errorf("unlocking private key: %w", err))
		}
	}

	written, err := a.service.Pull(root, name, decryptCtx)
	return written, a.op.Fail(err)
}

// ValidateVault checks that the first configured vault is reachable and
// returns its name.
func (a *App) ValidateVault() (string, error) {
	if a.vault == nil {
		return "", a.op.Fail(errors.New("no vault configured"))
	}
	if err := a.vault.ValidateSetup(); err != nil {
		return "", a.op.Fail(fmt.Errorf("vault %s: %w", a.vault.Name(), err))
	}
	return a.vault.Name(), nil
}

// KeysInit generates the encryption key pair, protecting the private key
// with passphrase. It returns the public key when the encryptor exposes it.
func (a *App) KeysInit(passphrase string) (string, error) {
	if a.encryptor == nil {
		return "", a.op.Fail(errors.New(`encryption is disabled; set [encryption] type = "age" first`))
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return "", a.op.Fail(fmt.Errorf("setting up keys: %w", err))
	}
	a.logger.Info("encryption keys created", "public_key_path", a.cfg.Encryption.PublicKeyPath)

	if pk, ok := a.encryptor.(interface{ PublicKey() (string, error) }); ok {
		pub, err := pk.PublicKey()
		return pub, a.op.Fail(err)
	}
	return "", nil
}

// Close logs the outcome of the operation and releases the database and log file.
func (a *App) Close() error {
	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"duration", a.clock.Now().Sub(a.op.StartedAt),
	)

	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
