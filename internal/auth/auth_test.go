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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

func writePEM(t *testing.T, block *pem.Block) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestCredentials_SignRequest(t *testing.T) {
	key := testKey(t)
	at := time.UnixMilli(1_700_000_000_123)
	creds := &Credentials{KeyID: "gate-key", PrivateKey: key, now: func() time.Time { return at }}

	headers, err := creds.SignRequest("GET", "/gateway/bot")
	if err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	if headers[HeaderKey] != "gate-key" {
		t.Errorf("%s = %q, want %q", HeaderKey, headers[HeaderKey], "gate-key")
	}
	if headers[HeaderTimestamp] != "1700000000123" {
		t.Errorf("%s = %q, want %q", HeaderTimestamp, headers[HeaderTimestamp], "1700000000123")
	}

	sig, err := base64.StdEncoding.DecodeString(headers[HeaderSignature])
	if err != nil {
		t.Fatalf("signature is not valid base64: %v", err)
	}
	hashed := sha256.Sum256(Message(at.UnixMilli(), "GET", "/gateway/bot"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestCredentials_HandshakeHeader(t *testing.T) {
	creds := &Credentials{KeyID: "ws-key", PrivateKey: testKey(t)}

	h, err := creds.HandshakeHeader("/gateway")
	if err != nil {
		t.Fatalf("HandshakeHeader failed: %v", err)
	}
	if h.Get(HeaderKey) != "ws-key" {
		t.Errorf("%s = %q, want %q", HeaderKey, h.Get(HeaderKey), "ws-key")
	}
	if h.Get(HeaderTimestamp) == "" || h.Get(HeaderSignature) == "" {
		t.Errorf("missing signing headers: %v", h)
	}
}

func TestMessage(t *testing.T) {
	if got := string(Message(42, "GET", "/gateway")); got != "42GET/gateway" {
		t.Errorf("Message() = %q, want %q", got, "42GET/gateway")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	key := testKey(t)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8: %v", err)
	}

	tests := []struct {
		name  string
		block *pem.Block
	}{
		{"pkcs8", &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}},
		{"pkcs1", &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := LoadPrivateKey(writePEM(t, tt.block))
			if err != nil {
				t.Fatalf("LoadPrivateKey failed: %v", err)
			}
			if loaded.N.Cmp(key.N) != 0 {
				t.Error("loaded key does not match original")
			}
		})
	}
}

func TestLoadPrivateKey_Errors(t *testing.T) {
	if _, err := LoadPrivateKey("/nonexistent/path/to/key.pem"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	path := filepath.Join(t.TempDir(), "invalid.pem")
	if err := os.WriteFile(path, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := LoadPrivateKey(path); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestLoadCredentials(t *testing.T) {
	pkcs8, _ := x509.MarshalPKCS8PrivateKey(testKey(t))
	path := writePEM(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})

	creds, err := LoadCredentials("my-key-id", path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.KeyID != "my-key-id" {
		t.Errorf("KeyID = %q, want %q", creds.KeyID, "my-key-id")
	}
	if creds.PrivateKey == nil {
		t.Error("PrivateKey is nil")
	}

	if _, err := LoadCredentials("", path); !errors.Is(err, ErrMissingKeyID) {
		t.Errorf("err = %v, want ErrMissingKeyID", err)
	}
	if _, err := LoadCredentials("key-id", ""); !errors.Is(err, ErrMissingKeyPath) {
		t.Errorf("err = %v, want ErrMissingKeyPath", err)
	}
}
