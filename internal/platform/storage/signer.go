package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Signer signs V4 URL payloads on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with a service account RSA key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// NewServiceAccountSigner accepts either a full service account JSON key or a bare PEM private key. With a
// JSON key the email argument may be empty and client_email is used instead.
func NewServiceAccountSigner(email, key string) (*ServiceAccountSigner, error) {
	email = strings.TrimSpace(email)
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("storage: signer key is empty")
	}
	if strings.HasPrefix(key, "{") {
		var sa serviceAccountKey
		if err := json.Unmarshal([]byte(key), &sa); err != nil {
			return nil, fmt.Errorf("storage: decode service account json: %w", err)
		}
		if email == "" {
			email = strings.TrimSpace(sa.ClientEmail)
		}
		key = strings.TrimSpace(sa.PrivateKey)
	}
	if email == "" {
		return nil, errors.New("storage: signer email is required")
	}
	// Keys stored in env vars often carry escaped newlines.
	key = strings.ReplaceAll(key, `\n`, "\n")
	rsaKey, err := parseRSAPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return &ServiceAccountSigner{email: email, key: rsaKey}, nil
}

// Email returns the service account used as GoogleAccessID.
func (s *ServiceAccountSigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes applies RSA PKCS#1 v1.5 over the SHA-256 digest of payload.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer not initialised")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: payload is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("storage: failed to decode PEM private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("storage: private key is not RSA")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("storage: parse RSA private key: %w", err)
	}
	return rsaKey, nil
}
