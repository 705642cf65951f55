package treebak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// encryptedSuffix is appended to the key of every object of an
	// encrypted push.
	encryptedSuffix = ".age"

	// manifestSuffix names the object describing a push. It sits next to
	// the backup's prefix, not under it, so it never shadows a backed-up file.
	manifestSuffix = ".treebak"
)

// ObjectPrefix returns the vault key prefix under which a backup is stored.
func ObjectPrefix(hostID, backupName string) string {
	return path.Join(hostID, backupName) + "/"
}

// ManifestKey returns the vault key of the manifest written by Push.
func ManifestKey(hostID, backupName string) string {
	return path.Join(hostID, backupName) + manifestSuffix
}

// pushManifest is stored once all objects of a push are uploaded. Pull
// trusts it, not object names, to decide whether objects are encrypted.
type pushManifest struct {
	Encrypted bool      `toml:"encrypted"`
	Objects   int       `toml:"objects"`
	PushedAt  time.Time `toml:"pushed_at"`
}

// Push uploads every file of the backup directory root/name into the vault.
// Files are encrypted first when an encryptor is configured.
func (s *Service) Push(root, name string) (*PushRecord, error) {
	if err := s.checkRemote(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("invalid backup name: %q", name)
	}

	dir := filepath.Join(root, name)
	ok, err := s.fsmgr.IsDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checking backup directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, dir)
	}

	files, err := s.fsmgr.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("listing backup files: %w", err)
	}

	rec := &PushRecord{
		ID:         s.idgen.New(),
		BackupName: name,
		VaultName:  s.vault.Name(),
		Encrypted:  s.encryptor != nil,
	}
	prefix := ObjectPrefix(s.hostID, name)
	for _, f := range files {
		n, err := s.pushOne(filepath.Join(dir, filepath.FromSlash(f.RelativePath)), prefix+f.RelativePath, f.Size)
		if err != nil {
			return nil, fmt.Errorf("pushing %s: %w", f.RelativePath, err)
		}
		rec.Objects++
		rec.Bytes += n
	}

	rec.PushedAt = s.clock.Now()
	if err := s.putManifest(name, &pushManifest{
		Encrypted: rec.Encrypted,
		Objects:   rec.Objects,
		PushedAt:  rec.PushedAt,
	}); err != nil {
		return nil, err
	}
	if err := s.history.CreatePush(rec); err != nil {
		return nil, fmt.Errorf("recording push: %w", err)
	}
	s.logger.Info("backup pushed", "name", name, "vault", rec.VaultName, "objects", rec.Objects, "encrypted", rec.Encrypted)
	return rec, nil
}

// pushOne uploads a single file and returns the number of bytes stored.
func (s *Service) pushOne(localPath, key string, size int64) (int64, error) {
	f, err := s.fsmgr.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if s.encryptor == nil {
		if err := s.vault.PutObject(key, f, size); err != nil {
			return 0, fmt.Errorf("uploading: %w", err)
		}
		return size, nil
	}

	// Ciphertext length is unknown up front, so it is buffered.
	var buf bytes.Buffer
	if err := s.encryptor.Encrypt(f, &buf); err != nil {
		return 0, fmt.Errorf("encrypting: %w", err)
	}
	n := int64(buf.Len())
	if err := s.vault.PutObject(key+encryptedSuffix, &buf, n); err != nil {
		return 0, fmt.Errorf("uploading: %w", err)
	}
	return n, nil
}

// PullNeedsPassphrase reports whether the named backup was pushed encrypted.
func (s *Service) PullNeedsPassphrase(name string) (bool, error) {
	if _, err := s.remoteKeys(name); err != nil {
		return false, err
	}
	m, err := s.getManifest(name)
	if err != nil {
		return false, err
	}
	return m.Encrypted, nil
}

// Pull rebuilds root/name from the vault. The destination must not exist.
// decryptCtx is required when the backup was pushed encrypted and may be
// nil otherwise. Returns the paths of the files written.
func (s *Service) Pull(root, name string, decryptCtx DecryptionContext) ([]string, error) {
	keys, err := s.remoteKeys(name)
	if err != nil {
		return nil, err
	}
	m, err := s.getManifest(name)
	if err != nil {
		return nil, err
	}
	if m.Encrypted && decryptCtx == nil {
		return nil, errors.New("backup is encrypted but no passphrase was provided")
	}

	dest := filepath.Join(root, name)
	if err := s.fsmgr.Mkdir(dest); err != nil {
		return nil, err
	}

	prefix := ObjectPrefix(s.hostID, name)
	var written []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if m.Encrypted {
			var ok bool
			if rel, ok = strings.CutSuffix(rel, encryptedSuffix); !ok {
				return written, fmt.Errorf("unencrypted object in encrypted backup: %s", key)
			}
		}
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return written, fmt.Errorf("refusing object outside backup: %s", key)
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := s.pullOne(key, target, decryptCtx, m.Encrypted); err != nil {
			return written, fmt.Errorf("pulling %s: %w", rel, err)
		}
		written = append(written, target)
	}

	s.logger.Info("backup pulled", "name", name, "vault", s.vault.Name(), "files", len(written))
	return written, nil
}

func (s *Service) pullOne(key, target string, decryptCtx DecryptionContext, encrypted bool) error {
	var buf bytes.Buffer
	if err := s.vault.GetObject(key, &buf); err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	var r io.Reader = &buf
	if encrypted {
		var plain bytes.Buffer
		if err := decryptCtx.Decrypt(&buf, &plain); err != nil {
			return fmt.Errorf("decrypting: %w", err)
		}
		r = &plain
	}

	if err := s.fsmgr.WriteFile(target, r); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func (s *Service) remoteKeys(name string) ([]string, error) {
	if err := s.checkRemote(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("invalid backup name: %q", name)
	}
	keys, err := s.vault.ListObjects(ObjectPrefix(s.hostID, name))
	if err != nil {
		return nil, fmt.Errorf("listing vault objects: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in vault %s: %s", ErrBackupNotFound, s.vault.Name(), name)
	}
	return keys, nil
}

func (s *Service) putManifest(name string, m *pushManifest) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encoding push manifest: %w", err)
	}
	key := ManifestKey(s.hostID, name)
	if err := s.vault.PutObject(key, &buf, int64(buf.Len())); err != nil {
		return fmt.Errorf("uploading push manifest: %w", err)
	}
	return nil
}

func (s *Service) getManifest(name string) (*pushManifest, error) {
	key := ManifestKey(s.hostID, name)
	var buf bytes.Buffer
	if err := s.vault.GetObject(key, &buf); err != nil {
		return nil, fmt.Errorf("reading push manifest: %w", err)
	}
	var m pushManifest
	if _, err := toml.NewDecoder(&buf).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding push manifest %s: %w", key, err)
	}
	return &m, nil
}

func (s *Service) checkRemote() error {
	if s.vault == nil {
		return errors.New("no vault configured")
	}
	if s.hostID == "" {
		return errors.New("host_id is not set; run 'treebak config init'")
	}
	return nil
}
