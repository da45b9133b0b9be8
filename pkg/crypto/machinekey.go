package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MachineKeyTypeRSA is the only key type currently issued.
const MachineKeyTypeRSA = "rsa"

const machineKeyBits = 2048

// MachineKey is a freshly generated keypair for a machine user. The private
// key is handed to the caller once; only the public key is persisted.
type MachineKey struct {
	Type       string
	PublicKey  []byte // PEM
	PrivateKey []byte // PEM, never stored
}

// NewMachineKey generates an RSA keypair for JWT bearer assertions.
func NewMachineKey() (*MachineKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, machineKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate machine key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return &MachineKey{
		Type:       MachineKeyTypeRSA,
		PublicKey:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}),
		PrivateKey: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	}, nil
}

// AssertionClaims are the registered claims of a machine-key JWT assertion.
type AssertionClaims struct {
	jwt.RegisteredClaims
}

// SignAssertion mints the JWT bearer assertion a machine user presents to
// authenticate with its key.
func SignAssertion(privateKeyPEM []byte, keyID, userID, audience string, lifetime time.Duration) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	claims := AssertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    userID,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// VerifyAssertion validates a machine-key assertion against the stored
// public key and returns its claims.
func VerifyAssertion(publicKeyPEM []byte, assertion, audience string) (*AssertionClaims, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	claims := &AssertionClaims{}
	_, err = jwt.ParseWithClaims(assertion, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify assertion: %w", err)
	}
	return claims, nil
}
