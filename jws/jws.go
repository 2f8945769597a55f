// Package jws signs Schema 1 manifest payloads with a detached JSON Web
// Signature, standing in for the original's reliance on the `libtrust`
// library (github.com/docker/libtrust), which has no direct Go-ecosystem
// descendant anywhere in this module's dependency pack. It implements
// just the one construction libtrust.JSONSignature produced: an EC P-256
// signature over the manifest bytes with a formatted-length protected
// header, per moby_distribution/client.py's push_manifest_v1.
package jws

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/shabbywu/distribution-go/manifest"
)

const envPrivateKey = "MOBY_DISTRIBUTION_PRIVATE_KEY"
const envPrivateKeyPassword = "MOBY_DISTRIBUTION_PRIVATE_KEY_PASSWORD" //nolint:gosec // env var name, not a secret

// Signer signs Schema 1 manifest payloads with an EC P-256 key, per
// spec.md §6's "JWS signing for Schema 1 publication" external
// collaborator and §9's supplemented private-key environment variables.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner loads a key from pemData (optionally encrypted with
// password), mirroring moby_distribution.registry.utils.get_private_key's
// PEM-from-environment behavior.
func NewSigner(pemData, password []byte) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("jws: no PEM block found in private key")
	}

	der := block.Bytes
	if len(password) > 0 {
		decrypted, err := x509.DecryptPEMBlock(block, password) //nolint:staticcheck // matches legacy encrypted-PEM keys this module must still read
		if err != nil {
			return nil, fmt.Errorf("jws: decrypting private key: %w", err)
		}
		der = decrypted
	}

	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("jws: parsing EC private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// GenerateSigner returns a Signer backed by a freshly generated P-256 key,
// mirroring get_private_key's generate_private_key() fallback when no
// MOBY_DISTRIBUTION_PRIVATE_KEY is set.
func GenerateSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

// SignerFromEnvironment reads MOBY_DISTRIBUTION_PRIVATE_KEY and
// MOBY_DISTRIBUTION_PRIVATE_KEY_PASSWORD, falling back to a freshly
// generated key when the environment variable is unset, per
// get_private_key's exact fallback order.
func SignerFromEnvironment() (*Signer, error) {
	pemData := os.Getenv(envPrivateKey)
	if pemData == "" {
		return GenerateSigner()
	}
	return NewSigner([]byte(pemData), []byte(os.Getenv(envPrivateKeyPassword)))
}

// jwk is the minimal JSON Web Key rendering of an EC P-256 public key that
// libtrust's JSONSignature embeds in its protected header.
type jwk struct {
	KeyType string `json:"kty"`
	Curve   string `json:"crv"`
	X       string `json:"x"`
	Y       string `json:"y"`
}

func (s *Signer) publicJWK() jwk {
	size := (s.key.Curve.Params().BitSize + 7) / 8
	return jwk{
		KeyType: "EC",
		Curve:   "P-256",
		X:       base64.RawURLEncoding.EncodeToString(s.key.PublicKey.X.FillBytes(make([]byte, size))),
		Y:       base64.RawURLEncoding.EncodeToString(s.key.PublicKey.Y.FillBytes(make([]byte, size))),
	}
}

type protectedHeader struct {
	FormatLength int            `json:"formatLength"`
	FormatTail   string         `json:"formatTail"`
	Alg          string         `json:"alg"`
	JWK          jwk            `json:"jwk"`
}

// Sign produces a detached JWS over payload, satisfying manifest.Signer.
// The protected header's formatLength/formatTail pinpoint where payload's
// trailing "}" sits, letting a verifier splice the signatures array back
// into the original bytes without re-serializing — the same trick
// libtrust's AppendSignature uses so re-signing never perturbs
// payload's own byte-for-byte digest.
func (s *Signer) Sign(payload []byte) (manifest.JWS, error) {
	tail := "}"
	formatLength := len(payload) - len(tail)
	if formatLength < 0 || string(payload[formatLength:]) != tail {
		return manifest.JWS{}, fmt.Errorf("jws: payload does not end with a trailing brace")
	}

	header := protectedHeader{
		FormatLength: formatLength,
		FormatTail:   base64.RawURLEncoding.EncodeToString([]byte(tail)),
		Alg:          "ES256",
		JWK:          s.publicJWK(),
	}
	protectedJSON, err := json.Marshal(header)
	if err != nil {
		return manifest.JWS{}, err
	}
	protected := base64.RawURLEncoding.EncodeToString(protectedJSON)

	signingInput := protected + "." + base64.RawURLEncoding.EncodeToString(payload[:formatLength])
	digest := sha256.Sum256([]byte(signingInput))

	r, sVal, err := ecdsaSign(s.key, digest[:])
	if err != nil {
		return manifest.JWS{}, err
	}
	size := (s.key.Curve.Params().BitSize + 7) / 8
	sig := append(r.FillBytes(make([]byte, size)), sVal.FillBytes(make([]byte, size))...)

	return manifest.JWS{
		Header:    map[string]interface{}{"alg": "ES256", "jwk": s.publicJWK()},
		Protected: protected,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}

func ecdsaSign(key *ecdsa.PrivateKey, digest []byte) (r, sVal *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, key, digest)
}
