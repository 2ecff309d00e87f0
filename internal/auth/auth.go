// Package auth signs gateway handshakes and REST calls with an RSA-PSS key.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Header names carried by a signed request.
const (
	HeaderKey       = "X-Gate-Key"
	HeaderTimestamp = "X-Gate-Timestamp"
	HeaderSignature = "X-Gate-Signature"
)

var (
	ErrMissingKeyID   = errors.New("key ID is required")
	ErrMissingKeyPath = errors.New("private key path is required")
)

// Credentials holds the key ID and private key used for signing.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey

	now func() time.Time
}

// LoadCredentials loads credentials from a key ID and a PEM file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, ErrMissingKeyID
	}
	if privateKeyPath == "" {
		return nil, ErrMissingKeyPath
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PKCS#8 or PKCS#1 PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// SignRequest returns the signing headers for method and path.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	ts := c.clock().UnixMilli()

	signature, err := c.sign(Message(ts, method, path))
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       c.KeyID,
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: signature,
	}, nil
}

// HandshakeHeader returns the signing headers for a WebSocket upgrade of
// path, in the form the dialer expects.
func (c *Credentials) HandshakeHeader(path string) (http.Header, error) {
	headers, err := c.SignRequest(http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h, nil
}

// Message is the signed payload: timestamp_ms + method + path.
func Message(timestampMs int64, method, path string) []byte {
	return []byte(strconv.FormatInt(timestampMs, 10) + method + path)
}

func (c *Credentials) sign(message []byte) (string, error) {
	hashed := sha256.Sum256(message)

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

func (c *Credentials) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
