// Package dto holds the request and response shapes of the key store API.
package dto

import (
	"github.com/turtacn/keystore/internal/domain/models"
)

// PublicKeyResponse is the body of a successful public key read.
// PublicKeyResponse 公钥读取成功时的响应体
type PublicKeyResponse struct {
	// ID is the SHA256 fingerprint of the key.
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
}

// EmptyResponse is returned by successful deletes.
type EmptyResponse struct{}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// PublicKeyToDTO converts the public view of a keypair.
func PublicKeyToDTO(k *models.UserPublicKey) *PublicKeyResponse {
	if k == nil {
		return nil
	}
	return &PublicKeyResponse{ID: k.ID, PublicKey: k.PublicKey}
}
