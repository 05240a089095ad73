package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ service.KeyGenerator = (*SSHKeyGenerator)(nil)

// SSHKeyGenerator creates RSA keypairs encoded for SSH clients.
type SSHKeyGenerator struct {
	format  constants.PrivateKeyFormat
	comment string
	random  io.Reader
	log     logger.Logger
}

// NewSSHKeyGenerator returns a generator writing private keys in format.
// comment, if set, is appended to the authorized_keys line and embedded in
// OpenSSH private keys.
func NewSSHKeyGenerator(format constants.PrivateKeyFormat, comment string, log logger.Logger) *SSHKeyGenerator {
	if format == "" {
		format = constants.DefaultPrivateKeyFormat
	}
	return &SSHKeyGenerator{
		format:  format,
		comment: comment,
		random:  rand.Reader,
		log:     log.WithComponent("ssh_key_generator"),
	}
}

// Generate creates a fresh keypair. The returned pair has no owner and its
// PrivateKey field holds unsealed PEM.
func (g *SSHKeyGenerator) Generate(ctx context.Context, bits int) (*models.UserKeyPair, error) {
	if bits < constants.MinKeyBits || bits > constants.MaxKeyBits {
		return nil, errors.ErrGeneration(fmt.Sprintf("unsupported RSA key size %d", bits)).
			WithMetadata("bits", bits)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.ErrGeneration("key generation cancelled").WithCause(err)
	}

	start := time.Now()
	priv, err := rsa.GenerateKey(g.random, bits)
	if err != nil {
		g.log.Error(ctx, "RSA key generation failed", err, logger.Fields{"bits": bits})
		return nil, errors.ErrGeneration("rsa key generation failed").WithCause(err)
	}

	pub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, errors.ErrGeneration("failed to encode public key").WithCause(err)
	}

	privPEM, err := g.encodePrivateKey(priv)
	if err != nil {
		return nil, err
	}

	fingerprint := ssh.FingerprintSHA256(pub)
	g.log.Debug(ctx, "Generated RSA keypair", logger.Fields{
		"bits":        bits,
		"format":      string(g.format),
		"fingerprint": fingerprint,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return &models.UserKeyPair{
		PublicKey:   AuthorizedKey(pub, g.comment),
		PrivateKey:  privPEM,
		Fingerprint: fingerprint,
		Bits:        bits,
		Format:      g.format,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (g *SSHKeyGenerator) encodePrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	switch g.format {
	case constants.PrivateKeyFormatPKCS1:
		return pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(priv),
		}), nil
	case constants.PrivateKeyFormatOpenSSH:
		block, err := ssh.MarshalPrivateKey(priv, g.comment)
		if err != nil {
			return nil, errors.ErrGeneration("failed to encode OpenSSH private key").WithCause(err)
		}
		return pem.EncodeToMemory(block), nil
	default:
		return nil, errors.ErrGeneration(fmt.Sprintf("unknown private key format %q", g.format))
	}
}

// AuthorizedKey renders pub as a single authorized_keys line without a trailing newline.
func AuthorizedKey(pub ssh.PublicKey, comment string) string {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

// ParseSigner loads a PEM private key (PKCS#1 or OpenSSH) into an ssh.Signer.
func ParseSigner(privatePEM []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, errors.ErrInvalidRequest("private key is not a loadable SSH key").WithCause(err)
	}
	return signer, nil
}

// KeyInfo summarises a private key without exposing it.
type KeyInfo struct {
	Type          string
	Bits          int
	Fingerprint   string
	AuthorizedKey string
}

// Inspect parses privatePEM and describes its public half.
func Inspect(privatePEM []byte) (*KeyInfo, error) {
	raw, err := ssh.ParseRawPrivateKey(privatePEM)
	if err != nil {
		return nil, errors.ErrInvalidRequest("private key is not a loadable SSH key").WithCause(err)
	}
	return describe(raw)
}

// InspectWithPassphrase is Inspect for an encrypted private key.
func InspectWithPassphrase(privatePEM, passphrase []byte) (*KeyInfo, error) {
	raw, err := ssh.ParseRawPrivateKeyWithPassphrase(privatePEM, passphrase)
	if err != nil {
		return nil, errors.ErrInvalidRequest("private key could not be decrypted").WithCause(err)
	}
	return describe(raw)
}

// IsPassphraseMissing reports whether err came from parsing an encrypted key without a passphrase.
func IsPassphraseMissing(err error) bool {
	var missing *ssh.PassphraseMissingError
	return errors.As(err, &missing)
}

func describe(raw interface{}) (*KeyInfo, error) {
	signer, err := ssh.NewSignerFromKey(raw)
	if err != nil {
		return nil, errors.ErrInvalidRequest("unsupported private key").WithCause(err)
	}

	info := &KeyInfo{
		Type:          signer.PublicKey().Type(),
		Fingerprint:   ssh.FingerprintSHA256(signer.PublicKey()),
		AuthorizedKey: AuthorizedKey(signer.PublicKey(), ""),
	}
	if rsaKey, ok := raw.(*rsa.PrivateKey); ok {
		info.Bits = rsaKey.N.BitLen()
	}
	return info, nil
}
