package crypt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/rakutentech/jwk-go/jwk"
)

var ErrorKeyType = errors.New("unexpected key type")

func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	return key, nil
}

// KeyID derives a stable, printable id from the public point.
func KeyID(publicKey *ecdsa.PublicKey) string {
	h := sha256.New()
	h.Write(publicKey.X.Bytes())
	h.Write(publicKey.Y.Bytes())
	return base58.Encode(h.Sum(nil))
}

func encodeJWK(key interface{}, keyID string) (string, error) {
	ks := jwk.NewSpec(key)
	rawJWK, err := ks.ToJWK()
	if err != nil {
		return "", fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = keyID
	rawJWK.Crv = "P-256"

	keyData, err := rawJWK.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshalling JWK: %w", err)
	}
	return base64.StdEncoding.EncodeToString(keyData), nil
}

func decodeJWK(encoded string) (*jwk.KeySpec, error) {
	keyData, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	keySpec, err := jwk.Parse(string(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return keySpec, nil
}

// EncodePublicKey returns the key as a base64 encoded JWK.
func EncodePublicKey(publicKey *ecdsa.PublicKey, keyID string) (string, error) {
	return encodeJWK(publicKey, keyID)
}

func DecodePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	keySpec, err := decodeJWK(encoded)
	if err != nil {
		return nil, err
	}
	switch key := keySpec.Key.(type) {
	case *ecdsa.PublicKey:
		return key, nil
	case *ecdsa.PrivateKey:
		return &key.PublicKey, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrorKeyType, keySpec.Key)
}

// EncodePrivateKey is for local tooling only; the JWK is not encrypted.
func EncodePrivateKey(privateKey *ecdsa.PrivateKey, keyID string) (string, error) {
	return encodeJWK(privateKey, keyID)
}

func DecodePrivateKey(encoded string) (*ecdsa.PrivateKey, error) {
	keySpec, err := decodeJWK(encoded)
	if err != nil {
		return nil, err
	}
	key, ok := keySpec.Key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrorKeyType, keySpec.Key)
	}
	return key, nil
}
