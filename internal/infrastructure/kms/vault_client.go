// Package kms stores user keypairs in HashiCorp Vault's KV v2 secrets engine.
package kms

import (
	"context"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// NewVaultClient builds an authenticated Vault client from cfg.
func NewVaultClient(cfg config.VaultConfig, log logger.Logger) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	if vaultConfig.Error != nil {
		return nil, errors.ErrStorageBackend("vault", "configure", vaultConfig.Error)
	}
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		vaultConfig.Timeout = cfg.Timeout
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.ErrStorageBackend("vault", "configure", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	log.Info(context.Background(), "Vault client configured", logger.Fields{
		"address": vaultConfig.Address,
		"mount":   cfg.MountPath,
	})
	return client, nil
}
