package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/errors"
)

var _ service.KeySealer = (*Sealer)(nil)

const sealerInfo = "keystore/user-private-key/v1"

// Sealer encrypts private keys with XChaCha20-Poly1305. The key is derived
// from the configured secret with HKDF-SHA256, and the owner id is bound as
// additional data so a sealed blob cannot be replayed under another owner.
//
// Layout: nonce (24 bytes) || ciphertext || tag.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.ErrInvalidRequest("key encryption secret must not be empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.ErrInternal("failed to derive sealing key").WithCause(err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.ErrInternal("failed to initialise sealing cipher").WithCause(err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext for ownerID.
func (s *Sealer) Seal(ownerID string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.ErrInternal("failed to read nonce").WithCause(err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(ownerID)), nil
}

// Open decrypts sealed for ownerID.
func (s *Sealer) Open(ownerID string, sealed []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, errors.ErrInternal("sealed private key is truncated")
	}
	plaintext, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(ownerID))
	if err != nil {
		return nil, errors.ErrInternal("sealed private key failed authentication")
	}
	return plaintext, nil
}
