package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFIterations is the number of PBKDF2 iterations for key derivation
	KDFIterations = 100000
	// FormatVersion is the current on-disk encryption format version
	FormatVersion = 1
	// SaltSize is the size of the PBKDF2 salt
	SaltSize = 32

	credentialFile = "session.cred"
	saltFile       = ".salt"
)

// Store holds one encrypted credential blob on disk.
// Format: [version:2][nonce:12][ciphertext+tag:N]
type Store struct {
	encryptionKey [32]byte
	dataDir       string
}

// NewStore creates a credential store rooted at dataDir. The passphrase
// protects the blob at rest; the same passphrase must be supplied across
// restarts or Load will fail authentication.
func NewStore(dataDir string, passphrase []byte) (*Store, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{dataDir: dataDir}

	salt, err := s.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derivedKey := pbkdf2.Key(passphrase, salt, KDFIterations, 32, sha256.New)
	copy(s.encryptionKey[:], derivedKey)
	wipe(derivedKey)

	return s, nil
}

func (s *Store) loadOrGenerateSalt() ([]byte, error) {
	path := filepath.Join(s.dataDir, saltFile)
	salt := make([]byte, SaltSize)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read salt file: %w", err)
		}

		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}

		if err := os.WriteFile(path, salt, 0o600); err != nil {
			return nil, fmt.Errorf("failed to save salt: %w", err)
		}

		return salt, nil
	}

	if len(data) != SaltSize {
		return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
	}

	copy(salt, data)
	return salt, nil
}

// Save encrypts and writes the credential blob atomically.
func (s *Store) Save(blob []byte) error {
	block, err := aes.NewCipher(s.encryptionKey[:])
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, blob, nil)

	output := make([]byte, 2+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(output[0:2], FormatVersion)
	copy(output[2:2+len(nonce)], nonce)
	copy(output[2+len(nonce):], ciphertext)

	tmpPath := filepath.Join(s.dataDir, credentialFile+".tmp")
	finalPath := filepath.Join(s.dataDir, credentialFile)

	if err := os.WriteFile(tmpPath, output, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename credential file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Store.Save",
		"bytes":    len(blob),
	}).Debug("Credential saved")

	return nil
}

// Load reads and decrypts the credential blob. It returns (nil, nil) when
// no credential has been stored, which asks the transport for a fresh
// pairing.
func (s *Store) Load() ([]byte, error) {
	path := filepath.Join(s.dataDir, credentialFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	// version + nonce + tag
	if len(data) < 2+12+16 {
		return nil, fmt.Errorf("credential file too short: %d bytes", len(data))
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported credential format version: %d (expected %d)", version, FormatVersion)
	}

	block, err := aes.NewCipher(s.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < 2+nonceSize {
		return nil, fmt.Errorf("credential file too short for nonce: %d bytes", len(data))
	}

	nonce := data[2 : 2+nonceSize]
	ciphertext := data[2+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase or corrupted data): %w", err)
	}

	return plaintext, nil
}

// Delete removes the stored credential, overwriting it with zeros first as
// best-effort secure deletion. Deleting an absent credential is a no-op.
func (s *Store) Delete() error {
	path := filepath.Join(s.dataDir, credentialFile)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat credential file: %w", err)
	}

	zeros := make([]byte, info.Size())
	if err := os.WriteFile(path, zeros, 0o600); err != nil {
		return os.Remove(path)
	}

	logrus.WithField("function", "Store.Delete").Info("Credential deleted")
	return os.Remove(path)
}

// Close wipes the derived encryption key from memory. The store must not
// be used afterwards.
func (s *Store) Close() error {
	wipe(s.encryptionKey[:])
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
