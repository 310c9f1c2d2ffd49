// Package identity holds the node's long-lived ed25519 key pair.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrInvalidPrivateKey = errors.New("identity: invalid private key")
	ErrInvalidPublicKey  = errors.New("identity: invalid public key")
)

// Identity is a node signing key pair.
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

type serializedKey struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate: %w", err)
	}
	return &Identity{PrivateKey: priv, PublicKey: pub}, nil
}

// ID returns the URL-safe base64 form of the public key.
func (id *Identity) ID() string {
	return EncodeID(id.PublicKey)
}

func (id *Identity) Public() []byte {
	return id.PublicKey
}

func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.PrivateKey, message)
}

// Verify checks signature over message under a raw public key. Keys of the
// wrong size never verify.
func Verify(public, message, signature []byte) bool {
	if len(public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(public), message, signature)
}

func ValidPublicKey(public []byte) bool {
	return len(public) == ed25519.PublicKeySize
}

func EncodeID(public []byte) string {
	return base64.RawURLEncoding.EncodeToString(public)
}

// DecodeID parses the base64 form produced by EncodeID.
func DecodeID(s string) ([]byte, error) {
	pub, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidPublicKey, len(pub))
	}
	return pub, nil
}

// Save writes the key pair to path as JSON with owner-only permissions.
func (id *Identity) Save(path string) error {
	data, err := json.MarshalIndent(serializedKey{
		Private: base64.RawURLEncoding.EncodeToString(id.PrivateKey),
		Public:  base64.RawURLEncoding.EncodeToString(id.PublicKey),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func Load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	var data serializedKey
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	priv, err := base64.RawURLEncoding.DecodeString(data.Private)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivateKey
	}
	pub, err := base64.RawURLEncoding.DecodeString(data.Public)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	derived := ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	if !derived.Equal(ed25519.PublicKey(pub)) {
		return nil, fmt.Errorf("%w: does not match private key", ErrInvalidPublicKey)
	}
	return &Identity{PrivateKey: priv, PublicKey: pub}, nil
}

// LoadOrCreate loads path, generating and saving a new identity when the file
// does not exist.
func LoadOrCreate(path string) (*Identity, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	id, err = Generate()
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(path); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
