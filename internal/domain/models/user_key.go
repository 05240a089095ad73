package models

import (
	"fmt"
	"time"

	"github.com/turtacn/keystore/pkg/constants"
)

// UserKeyPair is the SSH keypair bound to a single user account.
// The public half is an authorized_keys line; the private half is PEM text
// sealed by the key sealer before it is handed to a repository.
// UserKeyPair 是绑定到单个用户账户的 SSH 密钥对。
// 公钥为 authorized_keys 格式；私钥为 PEM 文本，在交给仓库之前已被加密封装。
type UserKeyPair struct {
	// OwnerID is the user identity the keypair belongs to. At most one record exists per owner.
	// OwnerID 是密钥对所属的用户身份。每个所有者最多存在一条记录。
	OwnerID string `gorm:"primaryKey;size:255" json:"owner_id"`
	// PublicKey is the OpenSSH public key ("ssh-rsa AAAA...").
	// PublicKey 是 OpenSSH 格式的公钥（"ssh-rsa AAAA..."）。
	PublicKey string `gorm:"type:text;not null" json:"public_key"`
	// PrivateKey holds the sealed private key. It never leaves the service boundary.
	// PrivateKey 保存已封装的私钥，永远不会离开服务边界。
	PrivateKey []byte `gorm:"not null" json:"private_key"`
	// Fingerprint is the SHA256 fingerprint of the public key, used as its id.
	// Fingerprint 是公钥的 SHA256 指纹，用作其标识。
	Fingerprint string `gorm:"size:64;not null" json:"fingerprint"`
	// Bits is the RSA modulus size.
	// Bits 是 RSA 模数长度。
	Bits int `gorm:"not null" json:"bits"`
	// Format records how the private key PEM was encoded.
	// Format 记录私钥 PEM 的编码方式。
	Format constants.PrivateKeyFormat `gorm:"size:16;not null" json:"format"`
	// CreatedAt is the generation timestamp.
	// CreatedAt 是生成时间戳。
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName pins the gorm table name.
func (UserKeyPair) TableName() string {
	return "user_keys"
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (k *UserKeyPair) Clone() *UserKeyPair {
	if k == nil {
		return nil
	}
	c := *k
	if k.PrivateKey != nil {
		c.PrivateKey = append([]byte(nil), k.PrivateKey...)
	}
	return &c
}

// String omits private material so a keypair can be logged or wrapped in an error safely.
func (k *UserKeyPair) String() string {
	if k == nil {
		return "UserKeyPair<nil>"
	}
	return fmt.Sprintf("UserKeyPair{owner=%s fingerprint=%s bits=%d format=%s created=%s}",
		k.OwnerID, k.Fingerprint, k.Bits, k.Format, k.CreatedAt.UTC().Format(time.RFC3339))
}

// GoString keeps %#v from dumping the private key.
func (k *UserKeyPair) GoString() string {
	return k.String()
}

// PublicView strips the keypair down to what the read endpoint may return.
func (k *UserKeyPair) PublicView() *UserPublicKey {
	return &UserPublicKey{
		ID:        k.Fingerprint,
		OwnerID:   k.OwnerID,
		PublicKey: k.PublicKey,
		CreatedAt: k.CreatedAt,
	}
}

// UserPublicKey is the public half of a user's keypair.
// UserPublicKey 是用户密钥对的公钥部分。
type UserPublicKey struct {
	ID        string
	OwnerID   string
	PublicKey string
	CreatedAt time.Time
}
