package envelope

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string            `json:"name" yaml:"name"`
	Tags  []string          `json:"tags" yaml:"tags"`
	Attrs map[string]string `json:"attrs" yaml:"attrs"`
}

func newTestEnvelope(t *testing.T, secret, cipherName string, codec Codec) *Envelope {
	t.Helper()
	ctx, err := NewContext(secret, cipherName)
	require.NoError(t, err)
	return New(codec, ctx, nil)
}

func TestEnvelope_PlaintextRoundTrip(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, YAMLCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			env := newTestEnvelope(t, "", "", codec)
			want := profile{Name: "ada", Tags: []string{"a", "b"}, Attrs: map[string]string{"k": "v"}}

			data, err := env.Encode(want, 1700000000)
			require.NoError(t, err)

			got, exp, err := Decode[profile](env, data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, int64(1700000000), exp)
		})
	}
}

func TestEnvelope_PlaintextIsSerializedForm(t *testing.T) {
	env := newTestEnvelope(t, "", "", JSONCodec{})

	data, err := env.Encode("hello", 42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"hello","expiration":42}`, string(data))
}

func TestEnvelope_EncryptedRoundTripAllCiphers(t *testing.T) {
	for _, name := range SupportedCiphers() {
		t.Run(name, func(t *testing.T) {
			env := newTestEnvelope(t, "s3cret", name, JSONCodec{})
			want := map[string]any{"nested": map[string]any{"n": 1.5}, "list": []any{"x", true}}

			data, err := env.Encode(want, 99)
			require.NoError(t, err)

			got, exp, err := Decode[map[string]any](env, data)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, int64(99), exp)
		})
	}
}

func TestEnvelope_EncryptedHidesPlaintext(t *testing.T) {
	plain := newTestEnvelope(t, "", "", JSONCodec{})
	enc := newTestEnvelope(t, "s3cret", "", JSONCodec{})

	serialized, err := plain.Encode("a very recognisable value", 7)
	require.NoError(t, err)
	sealed, err := enc.Encode("a very recognisable value", 7)
	require.NoError(t, err)

	assert.False(t, bytes.Contains(sealed, serialized))
	assert.False(t, bytes.Contains(sealed, []byte("recognisable")))

	raw, err := base64.StdEncoding.DecodeString(string(sealed))
	require.NoError(t, err)
	assert.Greater(t, len(raw), 16, "IV must be prepended to the ciphertext")
}

func TestEnvelope_FreshIVPerWrite(t *testing.T) {
	env := newTestEnvelope(t, "s3cret", "", JSONCodec{})

	a, err := env.Encode("same", 1)
	require.NoError(t, err)
	b, err := env.Encode("same", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEnvelope_WrongSecretNeverReturnsOriginal(t *testing.T) {
	for _, name := range SupportedCiphers() {
		t.Run(name, func(t *testing.T) {
			writer := newTestEnvelope(t, "right", name, JSONCodec{})
			reader := newTestEnvelope(t, "wrong", name, JSONCodec{})

			data, err := writer.Encode("original", 5)
			require.NoError(t, err)

			got, _, err := Decode[string](reader, data)
			if err == nil {
				assert.NotEqual(t, "original", got)
				return
			}
			var envErr *Error
			require.True(t, errors.As(err, &envErr))
			assert.Empty(t, got)
		})
	}
}

func TestEnvelope_DecodeFailures(t *testing.T) {
	enc := newTestEnvelope(t, "s3cret", "aes-256-cbc", JSONCodec{})
	plain := newTestEnvelope(t, "", "", JSONCodec{})

	valid, err := enc.Encode("v", 1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		env   *Envelope
		data  []byte
		stage Stage
	}{
		{
			name:  "invalid base64",
			env:   enc,
			data:  []byte("!!not base64!!"),
			stage: StageFraming,
		},
		{
			name:  "shorter than IV",
			env:   enc,
			data:  []byte(base64.StdEncoding.EncodeToString([]byte("short"))),
			stage: StageFraming,
		},
		{
			name:  "truncated ciphertext",
			env:   enc,
			data:  []byte(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 16+5))),
			stage: StageDecrypt,
		},
		{
			name:  "ciphertext read as plaintext",
			env:   plain,
			data:  valid,
			stage: StageDeserialize,
		},
		{
			name:  "garbage plaintext",
			env:   plain,
			data:  []byte("{not json"),
			stage: StageDeserialize,
		},
		{
			name:  "missing expiration",
			env:   plain,
			data:  []byte(`{"value":"v"}`),
			stage: StageMissingField,
		},
		{
			name:  "missing value",
			env:   plain,
			data:  []byte(`{"expiration":10}`),
			stage: StageMissingField,
		},
		{
			name:  "null value",
			env:   plain,
			data:  []byte(`{"value":null,"expiration":10}`),
			stage: StageMissingField,
		},
		{
			name:  "empty file",
			env:   plain,
			data:  []byte{},
			stage: StageDeserialize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exp, err := Decode[string](tt.env, tt.data)
			require.Error(t, err)

			var envErr *Error
			require.True(t, errors.As(err, &envErr), "error %v is not an *Error", err)
			assert.Equal(t, tt.stage, envErr.Stage)
			assert.Empty(t, got)
			assert.Zero(t, exp)
		})
	}
}

func TestEnvelope_TamperedAEADFails(t *testing.T) {
	for _, name := range []string{"aes-256-gcm", "chacha20-poly1305", "xchacha20-poly1305"} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnvelope(t, "s3cret", name, JSONCodec{})
			data, err := env.Encode("v", 1)
			require.NoError(t, err)

			raw, err := base64.StdEncoding.DecodeString(string(data))
			require.NoError(t, err)
			raw[len(raw)-1] ^= 0xff
			tampered := []byte(base64.StdEncoding.EncodeToString(raw))

			_, _, err = Decode[string](env, tampered)
			var envErr *Error
			require.True(t, errors.As(err, &envErr))
			assert.Equal(t, StageDecrypt, envErr.Stage)
		})
	}
}

func TestEnvelope_RandomSourceFailure(t *testing.T) {
	ctx, err := NewContext("s3cret", "")
	require.NoError(t, err)
	env := New(nil, ctx, strings.NewReader(""))

	_, err = env.Encode("v", 1)
	var envErr *Error
	require.True(t, errors.As(err, &envErr))
	assert.Equal(t, StageEncrypt, envErr.Stage)
}

func TestEnvelope_SerializeFailure(t *testing.T) {
	env := newTestEnvelope(t, "", "", JSONCodec{})

	_, err := env.Encode(make(chan int), 1)
	var envErr *Error
	require.True(t, errors.As(err, &envErr))
	assert.Equal(t, StageSerialize, envErr.Stage)
}

func TestContext_Destroy(t *testing.T) {
	ctx, err := NewContext("s3cret", "aes-256-cbc")
	require.NoError(t, err)
	require.True(t, ctx.Enabled())

	key := ctx.key
	ctx.Destroy()

	assert.True(t, ctx.Destroyed())
	assert.False(t, ctx.Enabled())
	assert.Equal(t, make([]byte, len(key)), key, "key bytes must be zeroed")

	env := New(nil, ctx, nil)
	_, err = env.Encode("v", 1)
	assert.ErrorIs(t, err, ErrDestroyed)
	_, _, err = Decode[string](env, []byte("irrelevant"))
	assert.ErrorIs(t, err, ErrDestroyed)

	ctx.Destroy()
	assert.True(t, ctx.Destroyed())
}

func TestContext_KeyDerivation(t *testing.T) {
	tests := []struct {
		cipher  string
		keySize int
	}{
		{"aes-128-cbc", 16},
		{"aes-192-cbc", 24},
		{"AES-256-CBC", 32},
		{"chacha20-poly1305", 32},
	}

	for _, tt := range tests {
		t.Run(tt.cipher, func(t *testing.T) {
			ctx, err := NewContext("secret", tt.cipher)
			require.NoError(t, err)
			assert.Len(t, ctx.key, tt.keySize)
			assert.Equal(t, strings.ToLower(tt.cipher), ctx.CipherName())
		})
	}
}

func TestContext_EmptySecretIsPassthrough(t *testing.T) {
	ctx, err := NewContext("", "aes-128-gcm")
	require.NoError(t, err)
	assert.False(t, ctx.Enabled())
	assert.Equal(t, "aes-128-gcm", ctx.CipherName())
}

func TestContext_UnknownCipher(t *testing.T) {
	_, err := NewContext("secret", "rot13")
	assert.ErrorIs(t, err, ErrUnsupportedCipher)

	_, err = NewContext("", "des-ede3")
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
}
