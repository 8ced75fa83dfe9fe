package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultCipher is the cipher used when none is configured.
const DefaultCipher = "aes-256-cbc"

// ErrUnsupportedCipher is returned when a cipher name is not in the registry.
var ErrUnsupportedCipher = errors.New("unsupported cipher")

// errBadPadding is returned when CBC plaintext padding fails validation.
var errBadPadding = errors.New("invalid padding")

// Cipher is a named symmetric cipher usable by the envelope.
//
// The IV (or nonce, for AEAD modes) travels in front of the ciphertext, so
// Seal and Open never see the framing.
type Cipher interface {
	// Name returns the canonical identifier, e.g. "aes-256-cbc".
	Name() string
	// KeySize returns the key length in bytes.
	KeySize() int
	// IVSize returns the IV or nonce length in bytes.
	IVSize() int
	// Seal encrypts plaintext under key and iv.
	Seal(key, iv, plaintext []byte) ([]byte, error)
	// Open decrypts ciphertext under key and iv.
	Open(key, iv, ciphertext []byte) ([]byte, error)
}

// registry holds every cipher the provider supports, keyed by name.
var registry = map[string]Cipher{
	"aes-128-cbc":        cbcCipher{name: "aes-128-cbc", keySize: 16},
	"aes-192-cbc":        cbcCipher{name: "aes-192-cbc", keySize: 24},
	"aes-256-cbc":        cbcCipher{name: "aes-256-cbc", keySize: 32},
	"aes-128-ctr":        ctrCipher{name: "aes-128-ctr", keySize: 16},
	"aes-192-ctr":        ctrCipher{name: "aes-192-ctr", keySize: 24},
	"aes-256-ctr":        ctrCipher{name: "aes-256-ctr", keySize: 32},
	"aes-128-gcm":        gcmCipher{name: "aes-128-gcm", keySize: 16},
	"aes-256-gcm":        gcmCipher{name: "aes-256-gcm", keySize: 32},
	"chacha20-poly1305":  chachaCipher{name: "chacha20-poly1305"},
	"xchacha20-poly1305": chachaCipher{name: "xchacha20-poly1305", extended: true},
}

// LookupCipher returns the cipher registered under name.
// Names are matched case-insensitively; an empty name selects DefaultCipher.
func LookupCipher(name string) (Cipher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultCipher
	}
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
	}
	return c, nil
}

// SupportedCiphers returns the sorted list of registered cipher names.
func SupportedCiphers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cbcCipher implements AES in CBC mode with PKCS#7 padding.
type cbcCipher struct {
	name    string
	keySize int
}

func (c cbcCipher) Name() string { return c.name }
func (c cbcCipher) KeySize() int { return c.keySize }
func (c cbcCipher) IVSize() int  { return aes.BlockSize }

func (c cbcCipher) Seal(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func (c cbcCipher) Open(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out, aes.BlockSize)
}

// ctrCipher implements AES in CTR mode. It has no integrity check, so a wrong
// key yields garbage that only fails later, at deserialization.
type ctrCipher struct {
	name    string
	keySize int
}

func (c ctrCipher) Name() string { return c.name }
func (c ctrCipher) KeySize() int { return c.keySize }
func (c ctrCipher) IVSize() int  { return aes.BlockSize }

func (c ctrCipher) Seal(key, iv, plaintext []byte) ([]byte, error) {
	return c.xor(key, iv, plaintext)
}

func (c ctrCipher) Open(key, iv, ciphertext []byte) ([]byte, error) {
	return c.xor(key, iv, ciphertext)
}

func (c ctrCipher) xor(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

// gcmCipher implements AES-GCM; the IV is the GCM nonce.
type gcmCipher struct {
	name    string
	keySize int
}

func (c gcmCipher) Name() string { return c.name }
func (c gcmCipher) KeySize() int { return c.keySize }
func (c gcmCipher) IVSize() int  { return 12 }

func (c gcmCipher) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func (c gcmCipher) Seal(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

func (c gcmCipher) Open(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return out, nil
}

// chachaCipher implements ChaCha20-Poly1305 and its extended-nonce variant.
type chachaCipher struct {
	name     string
	extended bool
}

func (c chachaCipher) Name() string { return c.name }
func (c chachaCipher) KeySize() int { return chacha20poly1305.KeySize }

func (c chachaCipher) IVSize() int {
	if c.extended {
		return chacha20poly1305.NonceSizeX
	}
	return chacha20poly1305.NonceSize
}

func (c chachaCipher) aead(key []byte) (cipher.AEAD, error) {
	var (
		aead cipher.AEAD
		err  error
	)
	if c.extended {
		aead, err = chacha20poly1305.NewX(key)
	} else {
		aead, err = chacha20poly1305.New(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
	}
	return aead, nil
}

func (c chachaCipher) Seal(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

func (c chachaCipher) Open(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return out, nil
}

// pad applies PKCS#7 padding. A full block is added when data is aligned.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#7 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}
