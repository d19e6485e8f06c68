package vault

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testKey)
	require.NoError(t, err)
	return v
}

func TestNew_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", testKey[:62]},
		{"too long", testKey + "00"},
		{"16 bytes", testKey[:32]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New(tt.key)
			assert.Nil(t, v)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, s := range []string{"a", "EAAGm0PX4ZCpsBA", strings.Repeat("x", 4096), "héllo wörld ✓", "with:colons:inside"} {
		enc, err := v.Encrypt(s)
		require.NoError(t, err)

		dec, err := v.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}

func TestEncrypt_Format(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("token")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], IVSize*2)
	assert.Len(t, parts[1], TagSize*2)
	assert.Len(t, parts[2], len("token")*2)
	for _, p := range parts {
		_, err := hex.DecodeString(p)
		assert.NoError(t, err)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := v.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
}

func TestEmptyInput(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, enc)

	dec, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestDecrypt_TagTamperDetected(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("sensitive access token")
	require.NoError(t, err)
	parts := strings.Split(enc, ":")
	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)

	for i := 0; i < len(tag)*8; i++ {
		flipped := bytes.Clone(tag)
		flipped[i/8] ^= 1 << (i % 8)
		tampered := parts[0] + ":" + hex.EncodeToString(flipped) + ":" + parts[2]

		dec, err := v.Decrypt(tampered)
		require.ErrorIs(t, err, ErrDecryptionFailed, "bit %d", i)
		require.Empty(t, dec)
	}
}

func TestDecrypt_CiphertextAndIVTamperDetected(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("sensitive")
	require.NoError(t, err)
	parts := strings.Split(enc, ":")

	flip := func(h string) string {
		b, _ := hex.DecodeString(h)
		b[0] ^= 0x01
		return hex.EncodeToString(b)
	}

	for _, tampered := range []string{
		flip(parts[0]) + ":" + parts[1] + ":" + parts[2],
		parts[0] + ":" + parts[1] + ":" + flip(parts[2]),
	} {
		dec, err := v.Decrypt(tampered)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assert.Empty(t, dec)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc, err := newTestVault(t).Encrypt("token")
	require.NoError(t, err)

	other, err := GenerateKey()
	require.NoError(t, err)
	v2, err := New(other)
	require.NoError(t, err)

	dec, err := v2.Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Empty(t, dec)
}

func TestDecrypt_MalformedFormats(t *testing.T) {
	v := newTestVault(t)
	iv := strings.Repeat("ab", IVSize)
	tag := strings.Repeat("cd", TagSize)

	for _, s := range []string{
		"garbage",
		iv + ":" + tag,
		iv + ":" + tag + ":00:00",
		"zz" + iv[2:] + ":" + tag + ":00",
		iv[:30] + ":" + tag + ":00",
		iv + ":" + tag[:30] + ":00",
		iv + ":" + tag + ":0g",
	} {
		dec, err := v.Decrypt(s)
		assert.ErrorIs(t, err, ErrDecryptionFailed, s)
		assert.Empty(t, dec)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestEncrypt_RandomSourceFailure(t *testing.T) {
	v := newTestVault(t)
	v.rand = failingReader{}

	enc, err := v.Encrypt("token")
	assert.Error(t, err)
	assert.Empty(t, enc)
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, a, KeySize*2)
	assert.NotEqual(t, a, b)

	_, err = New(a)
	assert.NoError(t, err)
}

func TestConcurrentUse(t *testing.T) {
	v := newTestVault(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc, err := v.Encrypt("concurrent")
			if !assert.NoError(t, err) {
				return
			}
			dec, err := v.Decrypt(enc)
			assert.NoError(t, err)
			assert.Equal(t, "concurrent", dec)
		}()
	}
	wg.Wait()
}
