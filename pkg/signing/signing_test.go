package signing

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("attestation payload")
	sig, err := Sign(data, kp.PrivateKey)
	require.NoError(t, err)

	assert.True(t, Verify(data, sig, kp.PublicKey))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("original")
	sig, err := Sign(data, kp.PrivateKey)
	require.NoError(t, err)

	tampered := []byte("originaX")
	assert.False(t, Verify(tampered, sig, kp.PublicKey))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("payload")
	sig, err := Sign(data, kp.PrivateKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	raw[0] ^= 0x01
	flipped := base64.StdEncoding.EncodeToString(raw)

	assert.False(t, Verify(data, flipped, kp.PublicKey))
}

func TestVerifyNeverErrorsOnGarbage(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.False(t, Verify([]byte("x"), "not base64!!!", kp.PublicKey))
	assert.False(t, Verify([]byte("x"), base64.StdEncoding.EncodeToString([]byte("short")), kp.PublicKey))
	assert.False(t, Verify([]byte("x"), "", ""))
	assert.False(t, Verify([]byte("x"), "AAAA", "-----BEGIN PUBLIC KEY-----\ngarbage\n-----END PUBLIC KEY-----"))
}

func TestSignObjectIgnoresKeyOrder(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	a := map[string]any{"subject": "s", "realmId": "r"}
	b := map[string]any{"realmId": "r", "subject": "s"}

	sig, err := SignObject(a, kp.PrivateKey)
	require.NoError(t, err)

	assert.True(t, VerifyObject(b, sig, kp.PublicKey))
}

func TestCrossKeyVerificationFails(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := Sign([]byte("data"), kp1.PrivateKey)
	require.NoError(t, err)
	assert.False(t, Verify([]byte("data"), sig, kp2.PublicKey))
}
