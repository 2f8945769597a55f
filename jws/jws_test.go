package jws

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignerSignsNonEmptyPayload(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	payload := []byte(`{"schemaVersion":1,"name":"lib/app","tag":"latest"}`)
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	assert.NotEmpty(t, sig.Protected)
	assert.NotEmpty(t, sig.Signature)
	assert.Equal(t, "ES256", sig.Header["alg"])

	_, err = base64.RawURLEncoding.DecodeString(sig.Protected)
	assert.NoError(t, err)
	_, err = base64.RawURLEncoding.DecodeString(sig.Signature)
	assert.NoError(t, err)
}

func TestSignerFromEnvironmentFallsBackToGenerated(t *testing.T) {
	t.Setenv("MOBY_DISTRIBUTION_PRIVATE_KEY", "")
	signer, err := SignerFromEnvironment()
	require.NoError(t, err)
	_, err = signer.Sign([]byte(`{"a":1}`))
	require.NoError(t, err)
}

func TestSignRejectsPayloadWithoutTrailingBrace(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	_, err = signer.Sign([]byte(""))
	assert.Error(t, err)
}
