package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/tenantgate/internal/identity"
	"github.com/utafrali/tenantgate/internal/vault"
	"github.com/utafrali/tenantgate/internal/webhook"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// run executes tenantctl with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestKeygen_ProducesUsableKey(t *testing.T) {
	out, err := run(t, "", "keygen")
	require.NoError(t, err)
	assert.Len(t, out, 64)

	_, err = vault.New(out)
	assert.NoError(t, err)
}

func TestKeygen_JSONOutput(t *testing.T) {
	out, err := run(t, "", "keygen", "-o", "json")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Len(t, body["key"], 64)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	sealed, err := run(t, "", "encrypt", "--key", testKey, "EAAB-page-token")
	require.NoError(t, err)
	assert.Len(t, strings.Split(sealed, ":"), 3)

	plain, err := run(t, sealed+"\n", "decrypt", "--key", testKey)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-page-token", plain)
}

func TestEncrypt_KeyFromEnv(t *testing.T) {
	t.Setenv(keyEnvVar, testKey)

	sealed, err := run(t, "", "encrypt", "secret")
	require.NoError(t, err)

	v, err := vault.New(testKey)
	require.NoError(t, err)
	plain, err := v.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

func TestEncrypt_BadKey(t *testing.T) {
	t.Setenv(keyEnvVar, "")

	_, err := run(t, "", "encrypt", "--key", "abcd", "secret")
	require.Error(t, err)

	var cfgErr *vault.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDecrypt_TamperedFails(t *testing.T) {
	sealed, err := run(t, "", "encrypt", "--key", testKey, "secret")
	require.NoError(t, err)

	parts := strings.Split(sealed, ":")
	parts[1] = strings.Repeat("0", len(parts[1]))
	_, err = run(t, "", "decrypt", "--key", testKey, strings.Join(parts, ":"))
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestDecrypt_NoInput(t *testing.T) {
	_, err := run(t, "", "decrypt", "--key", testKey)
	assert.Error(t, err)
}

func TestToken_ValidatesWithGatewayValidator(t *testing.T) {
	out, err := run(t, "", "token", "--sub", "user-9", "--tenant", "acme", "--secret", "dev-secret")
	require.NoError(t, err)

	v, err := identity.NewHS256Validator("dev-secret", "", "")
	require.NoError(t, err)
	claims, err := v.Validate(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "acme", claims.TenantID)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := run(t, "", "token", "--sub", "user-9")
	assert.Error(t, err)
}

func TestSignWebhook_VerifiesWithIngestorParser(t *testing.T) {
	out, err := run(t, "", "sign-webhook", "--user-id", "1234567890", "--secret", "app-secret")
	require.NoError(t, err)

	sr, err := webhook.ParseSignedRequest(out)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", sr.UserID)
	assert.True(t, sr.Verify("app-secret"))
	assert.False(t, sr.Verify("other-secret"))
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "", "keygen", "-o", "yaml")
	assert.Error(t, err)
}
