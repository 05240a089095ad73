package kms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/internal/domain/repository/repositorytest"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

type fakeSecret struct {
	data    map[string]interface{}
	version int
}

// fakeVault implements the slice of the KV v2 HTTP API the repository uses.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]*fakeSecret
	sealed  bool
	token   string
}

func newFakeVault(t *testing.T) (*fakeVault, *httptest.Server) {
	fv := &fakeVault{secrets: make(map[string]*fakeSecret), token: "test-token"}
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)
	return fv, srv
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Vault-Token") != f.token {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"errors": []string{"permission denied"}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/v1/sys/health":
		writeJSON(w, http.StatusOK, map[string]interface{}{"initialized": true, "sealed": f.sealed, "standby": false})
	case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
		f.serveData(w, r, strings.TrimPrefix(r.URL.Path, "/v1/secret/data/"))
	case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/") && r.Method == http.MethodDelete:
		delete(f.secrets, strings.TrimPrefix(r.URL.Path, "/v1/secret/metadata/"))
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
	}
}

func (f *fakeVault) serveData(w http.ResponseWriter, r *http.Request, path string) {
	switch r.Method {
	case http.MethodGet:
		s, ok := f.secrets[path]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"data":     s.data,
				"metadata": versionMetadata(s.version),
			},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data    map[string]interface{} `json:"data"`
			Options map[string]interface{} `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{"bad body"}})
			return
		}
		current := f.secrets[path]
		if cas, ok := body.Options["cas"].(float64); ok {
			version := 0
			if current != nil {
				version = current.version
			}
			if int(cas) != version {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"errors": []string{"check-and-set parameter did not match the current version"},
				})
				return
			}
		}
		next := &fakeSecret{data: body.Data, version: 1}
		if current != nil {
			next.version = current.version + 1
		}
		f.secrets[path] = next
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": versionMetadata(next.version)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func versionMetadata(version int) map[string]interface{} {
	return map[string]interface{}{
		"version":       version,
		"created_time":  time.Now().UTC().Format(time.RFC3339Nano),
		"deletion_time": "",
		"destroyed":     false,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestRepository(t *testing.T, addr, token string) *VaultUserKeyRepository {
	t.Helper()
	client, err := NewVaultClient(config.VaultConfig{
		Address: addr,
		Token:   token,
		Timeout: 5 * time.Second,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	client.SetMaxRetries(0)
	return NewVaultUserKeyRepository(client, "secret", "keystore/users", logger.NewNoopLogger())
}

func TestVaultUserKeyRepositorySuite(t *testing.T) {
	suite.Run(t, &repositorytest.UserKeyRepositorySuite{
		NewRepository: func(t *testing.T) repository.UserKeyRepository {
			_, srv := newFakeVault(t)
			return newTestRepository(t, srv.URL, "test-token")
		},
	})
}

func TestVaultUserKeyRepository_SecretLayout(t *testing.T) {
	fv, srv := newFakeVault(t)
	repo := newTestRepository(t, srv.URL, "test-token")
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "bob", repositorytest.SampleKey("b")))

	fv.mu.Lock()
	secret, ok := fv.secrets["keystore/users/bob"]
	fv.mu.Unlock()
	require.True(t, ok)
	raw, ok := secret.data[recordField].(string)
	require.True(t, ok)
	assert.Contains(t, raw, `"owner_id":"bob"`)
}

func TestVaultUserKeyRepository_CorruptRecord(t *testing.T) {
	fv, srv := newFakeVault(t)
	repo := newTestRepository(t, srv.URL, "test-token")

	fv.mu.Lock()
	fv.secrets["keystore/users/bob"] = &fakeSecret{data: map[string]interface{}{recordField: "{not json"}, version: 1}
	fv.mu.Unlock()

	_, err := repo.Get(context.Background(), "bob")
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
	assert.NotContains(t, err.Error(), "not json")
}

func TestVaultUserKeyRepository_PermissionDenied(t *testing.T) {
	_, srv := newFakeVault(t)
	repo := newTestRepository(t, srv.URL, "wrong-token")
	ctx := context.Background()

	_, err := repo.Get(ctx, "bob")
	assert.True(t, errors.IsStorageError(err))
	_, _, err = repo.CreateIfAbsent(ctx, "bob", repositorytest.SampleKey("b"))
	assert.True(t, errors.IsStorageError(err))
	assert.True(t, errors.IsStorageError(repo.Delete(ctx, "bob")))
}

func TestVaultUserKeyRepository_PingSealed(t *testing.T) {
	fv, srv := newFakeVault(t)
	repo := newTestRepository(t, srv.URL, "test-token")

	require.NoError(t, repo.Ping(context.Background()))

	fv.mu.Lock()
	fv.sealed = true
	fv.mu.Unlock()
	assert.True(t, errors.IsStorageError(repo.Ping(context.Background())))
}

func TestVaultUserKeyRepository_Unreachable(t *testing.T) {
	_, srv := newFakeVault(t)
	addr := srv.URL
	srv.Close()

	repo := newTestRepository(t, addr, "test-token")
	_, err := repo.Get(context.Background(), "bob")
	assert.True(t, errors.IsStorageError(err))
	assert.Error(t, repo.Ping(context.Background()))
}
