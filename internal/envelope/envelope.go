// Package envelope turns cache records into bytes and back.
//
// A record is the pair {value, expiration}. Encoding serializes the record
// with a Codec and, when the Context carries a key, encrypts it:
//
//	plaintext mode:  SERIALIZED({value, expiration})
//	encrypted mode:  BASE64( IV || CIPHERTEXT(SERIALIZED({value, expiration})) )
//
// The mode is a property of the Context used to decode, not of the data.
// Decoding with a different Context than the one used to encode fails or,
// for unauthenticated modes, yields bytes that do not deserialize.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Stage identifies where in the pipeline an envelope operation failed.
type Stage string

// Pipeline stages.
const (
	StageSerialize    Stage = "serialize"
	StageEncrypt      Stage = "encrypt"
	StageFraming      Stage = "framing"
	StageDecrypt      Stage = "decrypt"
	StageDeserialize  Stage = "deserialize"
	StageMissingField Stage = "missing_field"
)

// ErrDestroyed is returned when a destroyed Context is used.
var ErrDestroyed = errors.New("encryption context destroyed")

// Error is the typed failure of Encode or Decode.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("envelope %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}

// Context is the optional encryption context of an envelope.
// A Context built from an empty secret is a passthrough.
type Context struct {
	mu        sync.RWMutex
	cipher    Cipher
	key       []byte
	destroyed bool
}

// NewContext derives a key from secret for the named cipher.
// The key is the SHA-256 digest of secret, truncated to the cipher key size.
// The cipher name is validated even when secret is empty.
func NewContext(secret, cipherName string) (*Context, error) {
	c, err := LookupCipher(cipherName)
	if err != nil {
		return nil, err
	}
	ctx := &Context{cipher: c}
	if secret == "" {
		return ctx, nil
	}

	digest := sha256.Sum256([]byte(secret))
	ctx.key = make([]byte, c.KeySize())
	copy(ctx.key, digest[:])
	clear(digest[:])

	return ctx, nil
}

// Enabled reports whether the context encrypts.
func (c *Context) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.key) > 0 && !c.destroyed
}

// CipherName returns the configured cipher name.
func (c *Context) CipherName() string {
	if c == nil || c.cipher == nil {
		return DefaultCipher
	}
	return c.cipher.Name()
}

// Destroy zeroes the key material. Subsequent use of an encrypting context
// fails with ErrDestroyed. Destroy is idempotent.
func (c *Context) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.key)
	c.key = nil
	c.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (c *Context) Destroyed() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destroyed
}

// Envelope encodes and decodes records with a codec and an optional context.
type Envelope struct {
	codec  Codec
	ctx    *Context
	random io.Reader
}

// New creates an envelope. A nil codec selects JSON, a nil context disables
// encryption and a nil random source selects crypto/rand.
func New(codec Codec, ctx *Context, random io.Reader) *Envelope {
	if codec == nil {
		codec = JSONCodec{}
	}
	if random == nil {
		random = rand.Reader
	}
	return &Envelope{codec: codec, ctx: ctx, random: random}
}

// Context returns the encryption context, which may be nil.
func (e *Envelope) Context() *Context {
	return e.ctx
}

// record is the serialized shape written by Encode.
type record struct {
	Value      any   `json:"value" yaml:"value"`
	Expiration int64 `json:"expiration" yaml:"expiration"`
}

// decoded is the shape read by Decode; pointers detect missing fields.
type decoded[V any] struct {
	Value      *V     `json:"value" yaml:"value"`
	Expiration *int64 `json:"expiration" yaml:"expiration"`
}

// Encode serializes value and expiration and encrypts the result when the
// context has a key.
func (e *Envelope) Encode(value any, expiration int64) ([]byte, error) {
	data, err := e.codec.Marshal(record{Value: value, Expiration: expiration})
	if err != nil {
		return nil, stageErr(StageSerialize, err)
	}
	if e.ctx == nil {
		return data, nil
	}

	e.ctx.mu.RLock()
	defer e.ctx.mu.RUnlock()

	if e.ctx.destroyed {
		return nil, stageErr(StageEncrypt, ErrDestroyed)
	}
	if len(e.ctx.key) == 0 {
		return data, nil
	}

	c := e.ctx.cipher
	iv := make([]byte, c.IVSize())
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return nil, stageErr(StageEncrypt, fmt.Errorf("failed to generate IV: %w", err))
	}
	sealed, err := c.Seal(e.ctx.key, iv, data)
	if err != nil {
		return nil, stageErr(StageEncrypt, err)
	}

	framed := make([]byte, 0, len(iv)+len(sealed))
	framed = append(framed, iv...)
	framed = append(framed, sealed...)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(framed)))
	base64.StdEncoding.Encode(out, framed)
	return out, nil
}

// Decode reverses Encode. Every failure is returned as an *Error and the
// zero V is returned alongside it.
func Decode[V any](e *Envelope, data []byte) (V, int64, error) {
	var zero V

	plain, err := e.open(data)
	if err != nil {
		return zero, 0, err
	}

	var rec decoded[V]
	if err := e.codec.Unmarshal(plain, &rec); err != nil {
		return zero, 0, stageErr(StageDeserialize, err)
	}
	if rec.Expiration == nil {
		return zero, 0, stageErr(StageMissingField, errors.New("expiration is missing"))
	}
	if rec.Value == nil {
		return zero, 0, stageErr(StageMissingField, errors.New("value is missing"))
	}

	return *rec.Value, *rec.Expiration, nil
}

// open strips the encryption framing, if any, and returns serialized bytes.
func (e *Envelope) open(data []byte) ([]byte, error) {
	if e.ctx == nil {
		return data, nil
	}

	e.ctx.mu.RLock()
	defer e.ctx.mu.RUnlock()

	if e.ctx.destroyed {
		return nil, stageErr(StageDecrypt, ErrDestroyed)
	}
	if len(e.ctx.key) == 0 {
		return data, nil
	}

	framed := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(framed, data)
	if err != nil {
		return nil, stageErr(StageFraming, fmt.Errorf("invalid base64: %w", err))
	}
	framed = framed[:n]

	c := e.ctx.cipher
	if len(framed) < c.IVSize() {
		return nil, stageErr(StageFraming,
			fmt.Errorf("payload of %d bytes is shorter than the %d byte IV", len(framed), c.IVSize()))
	}
	iv, sealed := framed[:c.IVSize()], framed[c.IVSize():]

	plain, err := c.Open(e.ctx.key, iv, sealed)
	if err != nil {
		return nil, stageErr(StageDecrypt, err)
	}
	return plain, nil
}
