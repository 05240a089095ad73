package service

import (
	"context"

	"github.com/turtacn/keystore/internal/domain/models"
)

//go:generate mockery --name KeyGenerator --output mocks --outpkg mocks
// KeyGenerator produces fresh RSA keypairs. The returned pair has no owner and
// an unsealed PEM private key.
// KeyGenerator 生成新的 RSA 密钥对。返回的密钥对没有所有者，私钥为未封装的 PEM。
type KeyGenerator interface {
	// Generate creates a keypair with the given modulus size. Failures are GenerationErrors.
	// Generate 按给定的模数长度创建密钥对。失败时返回 GenerationError。
	Generate(ctx context.Context, bits int) (*models.UserKeyPair, error)
}

//go:generate mockery --name KeySealer --output mocks --outpkg mocks
// KeySealer encrypts private keys at rest, bound to their owner.
// KeySealer 对静态私钥进行加密，并与其所有者绑定。
type KeySealer interface {
	// Seal encrypts plaintext for ownerID.
	// Seal 为 ownerID 加密明文。
	Seal(ownerID string, plaintext []byte) ([]byte, error)

	// Open decrypts sealed data, failing if it was sealed for another owner.
	// Open 解密已封装的数据；如果数据是为其他所有者封装的则失败。
	Open(ownerID string, sealed []byte) ([]byte, error)
}

//go:generate mockery --name KeyEventPublisher --output mocks --outpkg mocks
// KeyEventPublisher ships key lifecycle events to an audit sink.
// KeyEventPublisher 将密钥生命周期事件发送到审计接收端。
type KeyEventPublisher interface {
	Publish(ctx context.Context, event *models.KeyEvent) error
	Close() error
}

// IdentityVerifier resolves a bearer credential to a user id.
// IdentityVerifier 将持有者凭证解析为用户 ID。
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (string, error)
}
