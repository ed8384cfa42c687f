package oracle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted oracle signing key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKey needs to resolve the oracle's
// ed25519 signing key. Populate the fields from environment variables or a
// config file.
type KeyConfig struct {
	// RawSeed is the hex-encoded 32-byte ed25519 seed. If non-empty, LoadKey
	// derives the key from it directly.
	RawSeed string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptSeed.
	EncryptedKeyPath string

	// KeyPassword is the password used to decrypt EncryptedKeyPath.
	KeyPassword string
}

// EncryptSeed encrypts a hex-encoded ed25519 seed with a password using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated
// encryption. It returns the JSON blob suitable for writing to disk.
func EncryptSeed(seedHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("oracle: password must not be empty")
	}

	seed, err := decodeSeed(seedHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("oracle: generating salt: %w", err)
	}
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("oracle: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("oracle: creating gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("oracle: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, seed, nil)

	blob := encryptedKeyJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.MarshalIndent(blob, "", "  ")
}

// DecryptSeed reverses EncryptSeed and returns the raw 32-byte seed.
func DecryptSeed(data []byte, password string) ([]byte, error) {
	var blob encryptedKeyJSON
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("oracle: parsing encrypted key: %w", err)
	}
	if blob.Version != currentVersion {
		return nil, fmt.Errorf("oracle: unsupported key file version %d", blob.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return nil, fmt.Errorf("oracle: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil {
		return nil, fmt.Errorf("oracle: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("oracle: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("oracle: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("oracle: creating gcm: %w", err)
	}

	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("oracle: decryption failed (wrong password or corrupted file)")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("oracle: expected %d-byte seed, got %d bytes", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

// LoadKey resolves the oracle signing key from a raw hex seed or an
// encrypted key file, in that order of preference.
func LoadKey(cfg KeyConfig) (ed25519.PrivateKey, error) {
	if strings.TrimSpace(cfg.RawSeed) != "" {
		seed, err := decodeSeed(cfg.RawSeed)
		if err != nil {
			return nil, err
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("oracle: reading key file: %w", err)
		}
		seed, err := DecryptSeed(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}

	return nil, errors.New("oracle: no signing key configured")
}

// decodeSeed validates and decodes a hex seed, tolerating an optional 0x
// prefix.
func decodeSeed(seedHex string) ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("oracle: invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("oracle: expected %d-byte seed, got %d bytes", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}
