// Package crypto holds venue credentials: encrypted key files, the EIP-712
// signer for Polymarket orders and the HMAC headers of its REST API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	sealedVersion    = 1
)

// sealedFile is the on-disk format of an encrypted secret.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where a venue secret comes from. Inline wins over File.
// A File ending in ".enc" is decrypted with Password.
type KeySource struct {
	Inline   string
	File     string
	Password string
}

// Empty reports whether no source is configured.
func (k KeySource) Empty() bool { return k.Inline == "" && k.File == "" }

// Seal encrypts secret with a password using PBKDF2-HMAC-SHA256 and
// AES-256-GCM and returns the JSON file contents.
func Seal(secret []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(secret) == 0 {
		return nil, errors.New("crypto: nothing to seal")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedFile{
		Version:    sealedVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, secret, nil)),
	}, "", "  ")
}

// Open decrypts a blob produced by Seal.
func Open(blob []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var f sealedFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("crypto: parse sealed file: %w", err)
	}
	if f.Version != sealedVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", f.Version)
	}

	var salt, nonce, ct []byte
	for _, field := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", f.Salt, &salt},
		{"nonce", f.Nonce, &nonce},
		{"ciphertext", f.Ciphertext, &ct},
	} {
		b, err := base64.StdEncoding.DecodeString(field.in)
		if err != nil {
			return nil, fmt.Errorf("crypto: decode %s: %w", field.name, err)
		}
		*field.out = b
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plain, nil
}

// Load resolves a KeySource into the secret bytes.
func Load(src KeySource) ([]byte, error) {
	if src.Inline != "" {
		return []byte(strings.TrimSpace(src.Inline)), nil
	}
	if src.File == "" {
		return nil, errors.New("crypto: no key source configured")
	}
	data, err := os.ReadFile(src.File)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key file: %w", err)
	}
	if strings.HasSuffix(src.File, ".enc") {
		return Open(data, src.Password)
	}
	return data, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
