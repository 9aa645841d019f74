// Package vault encrypts partner credentials at rest.
//
// Blobs are AES-256-CBC with a fresh random IV per call, PKCS#7 padded and
// serialized as hex(iv):hex(ciphertext). Two encryptions of the same value
// never compare equal, so equality lookups go through Fingerprint instead.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	encryptionInfo  = "integrations/vault/aes-256-cbc"
	fingerprintInfo = "integrations/vault/fingerprint"
)

var ErrMasterSecretMissing = errors.New("vault master secret is empty")

// CryptoError reports a blob that could not be decrypted. It never carries plaintext.
type CryptoError struct {
	Op     string
	Reason string
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("vault %s: %s", e.Op, e.Reason)
}

type Vault struct {
	block          cipher.Block
	fingerprintKey []byte
	random         io.Reader
}

// New derives the cipher key and the fingerprint key from masterSecret.
func New(masterSecret string) (*Vault, error) {
	if strings.TrimSpace(masterSecret) == "" {
		return nil, ErrMasterSecretMissing
	}

	encKey, err := derive(masterSecret, encryptionInfo)
	if err != nil {
		return nil, err
	}
	fpKey, err := derive(masterSecret, fingerprintInfo)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	return &Vault{block: block, fingerprintKey: fpKey, random: rand.Reader}, nil
}

func derive(secret, info string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(v.random, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(v.block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (v *Vault) Decrypt(blob string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(blob, ":")
	if !ok {
		return "", &CryptoError{Op: "decrypt", Reason: "missing iv separator"}
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", &CryptoError{Op: "decrypt", Reason: "invalid iv"}
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", &CryptoError{Op: "decrypt", Reason: "invalid ciphertext length"}
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(v.block, iv).CryptBlocks(out, ct)

	plain, err := unpad(out)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Reason: "bad padding or wrong key"}
	}
	return string(plain), nil
}

// Fingerprint returns a deterministic keyed digest of parts, suitable for a unique index.
func (v *Vault) Fingerprint(parts ...string) string {
	mac := hmac.New(sha256.New, v.fingerprintKey)
	for _, p := range parts {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		fmt.Fprintf(mac, "%d:%s", len(p), p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
