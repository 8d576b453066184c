// Package signing wraps Ed25519 for the record-level signatures used across
// the service. Keys travel as PEM text, signatures as base64. Verification is
// total: malformed keys or signatures report false rather than erroring, so
// untrusted input can never take down a request path.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"irrl/pkg/canonical"
)

const (
	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// KeyPair is a PEM-encoded Ed25519 key pair.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a fresh Ed25519 key pair in PEM form.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}

	return KeyPair{
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: pubDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: privDER})),
	}, nil
}

// Sign signs data with a PEM private key and returns a base64 signature.
func Sign(data []byte, privateKeyPEM string) (string, error) {
	priv, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature over data against a PEM public key.
// Any parse or length failure yields false, never an error.
func Verify(data []byte, signatureB64, publicKeyPEM string) bool {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// SignObject canonicalizes v and signs the resulting bytes.
func SignObject(v any, privateKeyPEM string) (string, error) {
	b, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return Sign(b, privateKeyPEM)
}

// VerifyObject canonicalizes v and verifies the signature over the bytes.
func VerifyObject(v any, signatureB64, publicKeyPEM string) bool {
	b, err := canonical.Marshal(v)
	if err != nil {
		return false
	}
	return Verify(b, signatureB64, publicKeyPEM)
}

func parsePrivateKey(pemText string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != pemTypePrivate {
		return nil, fmt.Errorf("invalid private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an ed25519 private key")
	}
	return priv, nil
}

func parsePublicKey(pemText string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an ed25519 public key")
	}
	return pub, nil
}
