package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	domainservice "github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/internal/domain/service/mocks"
	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

const testBits = 1024

// recordingMetrics counts observations for assertions.
type recordingMetrics struct {
	mu            sync.Mutex
	generations   int
	failedGens    int
	reads         map[bool]int
	deletions     int
	denied        map[string]int
	storageErrors map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{reads: map[bool]int{}, denied: map[string]int{}, storageErrors: map[string]int{}}
}

func (m *recordingMetrics) RecordKeyGeneration(success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.generations++
	} else {
		m.failedGens++
	}
}

func (m *recordingMetrics) RecordPublicKeyRead(existing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[existing]++
}

func (m *recordingMetrics) RecordKeyDeletion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletions++
}

func (m *recordingMetrics) RecordAccessDenied(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[reason]++
}

func (m *recordingMetrics) RecordStorageError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageErrors[op]++
}

// capturingPublisher keeps every event it is given.
type capturingPublisher struct {
	mu     sync.Mutex
	events []*models.KeyEvent
}

func (p *capturingPublisher) Publish(_ context.Context, e *models.KeyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) ofType(t constants.KeyEventType) []*models.KeyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*models.KeyEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc       UserKeyAppService
	repo      repository.UserKeyRepository
	sealer    *crypto.Sealer
	publisher *capturingPublisher
	metrics   *recordingMetrics
}

func newFixture(t *testing.T, repo repository.UserKeyRepository, gen *mocks.MockKeyGenerator) *fixture {
	t.Helper()
	sealer, err := crypto.NewSealer("test-kek")
	require.NoError(t, err)
	if repo == nil {
		repo = memory.NewUserKeyRepository(logger.NewNoopLogger())
	}

	f := &fixture{
		repo:      repo,
		sealer:    sealer,
		publisher: &capturingPublisher{},
		metrics:   newRecordingMetrics(),
	}
	var generator domainservice.KeyGenerator = crypto.NewSSHKeyGenerator(constants.PrivateKeyFormatPKCS1, "", logger.NewNoopLogger())
	if gen != nil {
		generator = gen
	}
	f.svc = NewUserKeyAppService(repo, generator, sealer, f.publisher, f.metrics,
		config.KeysConfig{Bits: testBits}, logger.NewNoopLogger())
	return f
}

func TestUserKeyAppService_BobAliceAnonymous(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	k1, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(k1.PublicKey, "ssh-rsa "))
	assert.True(t, strings.HasPrefix(k1.ID, "SHA256:"))

	again, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, k1, again)

	require.NoError(t, f.svc.DeleteKey(ctx, "bob", "bob"))

	k2, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, k1.PublicKey, k2.PublicKey)
	assert.NotEqual(t, k1.ID, k2.ID)

	_, err = f.svc.GetPublicKey(ctx, "alice", "bob")
	assert.True(t, errors.IsForbidden(err))
	assert.Equal(t, 403, errors.GetHTTPStatus(err))

	_, err = f.svc.GetPublicKey(ctx, "", "bob")
	assert.True(t, errors.IsUnauthenticated(err))
	assert.Equal(t, 401, errors.GetHTTPStatus(err))

	assert.Len(t, f.publisher.ofType(constants.KeyEventGenerated), 2)
	deleted := f.publisher.ofType(constants.KeyEventDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, k1.ID, deleted[0].Fingerprint)
	assert.Equal(t, models.KeyStateAbsent, deleted[0].To)
	assert.Len(t, f.publisher.ofType(constants.KeyEventAccessDenied), 2)

	assert.Equal(t, 2, f.metrics.generations)
	assert.Equal(t, 1, f.metrics.reads[true])
	assert.Equal(t, 2, f.metrics.reads[false])
	assert.Equal(t, 1, f.metrics.denied["forbidden"])
	assert.Equal(t, 1, f.metrics.denied["unauthenticated"])
}

func TestUserKeyAppService_DeleteAuthorization(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)

	assert.True(t, errors.IsForbidden(f.svc.DeleteKey(ctx, "alice", "bob")))
	assert.True(t, errors.IsUnauthenticated(f.svc.DeleteKey(ctx, "", "bob")))

	stored, err := f.repo.Get(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, stored, "refused deletes leave the key in place")
}

func TestUserKeyAppService_DeleteMissingKeyIsNoop(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.svc.DeleteKey(context.Background(), "carol", "carol"))
	require.NoError(t, f.svc.DeleteKey(context.Background(), "carol", "carol"))
	assert.Empty(t, f.publisher.ofType(constants.KeyEventDeleted))
	assert.Equal(t, 2, f.metrics.deletions)
}

func TestUserKeyAppService_PrivateKeySealedAtRest(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	pub, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)

	stored, err := f.repo.Get(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "bob", stored.OwnerID)
	assert.Equal(t, testBits, stored.Bits)
	assert.NotContains(t, string(stored.PrivateKey), "PRIVATE KEY")

	pemBytes, err := f.sealer.Open("bob", stored.PrivateKey)
	require.NoError(t, err)
	_, err = ssh.ParseRawPrivateKey(pemBytes)
	require.NoError(t, err)

	signer, err := f.svc.Signer(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, pub.PublicKey, crypto.AuthorizedKey(signer.PublicKey(), ""))
	assert.Equal(t, pub.ID, ssh.FingerprintSHA256(signer.PublicKey()))
}

func TestUserKeyAppService_SignerGeneratesOnFirstAccess(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	signer, err := f.svc.Signer(ctx, "dave")
	require.NoError(t, err)

	pub, err := f.svc.GetPublicKey(ctx, "dave", "dave")
	require.NoError(t, err)
	assert.Equal(t, pub.ID, ssh.FingerprintSHA256(signer.PublicKey()))

	_, err = f.svc.Signer(ctx, "")
	kse, ok := errors.AsKeyStoreError(err)
	require.True(t, ok)
	assert.Equal(t, constants.ErrCodeInvalidRequest, kse.Code())
}

func TestUserKeyAppService_ConcurrentFirstAccessGeneratesOnce(t *testing.T) {
	keygen := crypto.NewSSHKeyGenerator(constants.PrivateKeyFormatPKCS1, "", logger.NewNoopLogger())
	pair, err := keygen.Generate(context.Background(), testBits)
	require.NoError(t, err)

	gen := &mocks.MockKeyGenerator{}
	gen.On("Generate", mock.Anything, testBits).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(pair, nil)

	f := newFixture(t, nil, gen)

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.GetPublicKey(context.Background(), "bob", "bob")
			if assert.NoError(t, err) {
				results[i] = resp.PublicKey
			}
		}(i)
	}
	wg.Wait()

	gen.AssertNumberOfCalls(t, "Generate", 1)
	for _, r := range results {
		assert.Equal(t, pair.PublicKey, r)
	}
	assert.Len(t, f.publisher.ofType(constants.KeyEventGenerated), 1)
}

// holdingPublisher parks key.generated events until release is closed.
type holdingPublisher struct {
	capturingPublisher
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *holdingPublisher) Publish(ctx context.Context, e *models.KeyEvent) error {
	if e.Type == constants.KeyEventGenerated {
		p.once.Do(func() { close(p.entered) })
		<-p.release
	}
	return p.capturingPublisher.Publish(ctx, e)
}

func TestUserKeyAppService_SlowPublisherDoesNotHoldOwnerLock(t *testing.T) {
	sealer, err := crypto.NewSealer("test-kek")
	require.NoError(t, err)
	pub := &holdingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewUserKeyAppService(memory.NewUserKeyRepository(logger.NewNoopLogger()), &sequenceGenerator{}, sealer, pub, nil,
		config.KeysConfig{Bits: testBits}, logger.NewNoopLogger())

	readDone := make(chan error, 1)
	go func() {
		_, err := svc.GetPublicKey(context.Background(), "bob", "bob")
		readDone <- err
	}()

	select {
	case <-pub.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("generated event was never published")
	}

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- svc.DeleteKey(context.Background(), "bob", "bob") }()

	select {
	case err := <-deleteDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Error("delete blocked while the generated event was being published")
	}

	close(pub.release)
	require.NoError(t, <-readDone)
	assert.Len(t, pub.ofType(constants.KeyEventGenerated), 1)
	assert.Len(t, pub.ofType(constants.KeyEventDeleted), 1)
}

// sequenceGenerator hands out distinct cheap keypairs.
type sequenceGenerator struct {
	n atomic.Int64
}

func (g *sequenceGenerator) Generate(_ context.Context, bits int) (*models.UserKeyPair, error) {
	n := g.n.Add(1)
	return &models.UserKeyPair{
		PublicKey:   fmt.Sprintf("ssh-rsa KEY%d", n),
		PrivateKey:  []byte(fmt.Sprintf("private-%d", n)),
		Fingerprint: fmt.Sprintf("SHA256:key%d", n),
		Bits:        bits,
		Format:      constants.PrivateKeyFormatPKCS1,
	}, nil
}

func TestUserKeyAppService_ReadAfterDeleteNeverReturnsDeletedKey(t *testing.T) {
	pub := &capturingPublisher{}
	sealer, err := crypto.NewSealer("test-kek")
	require.NoError(t, err)
	svc := NewUserKeyAppService(memory.NewUserKeyRepository(logger.NewNoopLogger()), &sequenceGenerator{}, sealer, pub, nil,
		config.KeysConfig{Bits: testBits}, logger.NewNoopLogger())
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.GetPublicKey(ctx, "bob", "bob")
		}()

		_, err := svc.GetPublicKey(ctx, "bob", "bob")
		require.NoError(t, err)
		require.NoError(t, svc.DeleteKey(ctx, "bob", "bob"))

		deleted := pub.ofType(constants.KeyEventDeleted)
		if len(deleted) > 0 {
			gone := deleted[len(deleted)-1].Fingerprint
			resp, err := svc.GetPublicKey(ctx, "bob", "bob")
			require.NoError(t, err)
			require.NotEqual(t, gone, resp.ID, "iteration %d", i)
		}
		wg.Wait()
		require.NoError(t, svc.DeleteKey(ctx, "bob", "bob"))
	}
}

func TestUserKeyAppService_LosesCreateRace(t *testing.T) {
	winner := &models.UserKeyPair{OwnerID: "bob", PublicKey: "ssh-rsa WINNER", Fingerprint: "SHA256:winner", PrivateKey: []byte("sealed")}
	repo := &mocks.MockUserKeyRepository{}
	repo.On("Get", mock.Anything, "bob").Return(nil, nil)
	repo.On("CreateIfAbsent", mock.Anything, "bob", mock.AnythingOfType("*models.UserKeyPair")).Return(winner, false, nil)

	f := newFixture(t, repo, nil)

	resp, err := f.svc.GetPublicKey(context.Background(), "bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa WINNER", resp.PublicKey)
	assert.Equal(t, "SHA256:winner", resp.ID)
	assert.Empty(t, f.publisher.ofType(constants.KeyEventGenerated))
	repo.AssertExpectations(t)
}

func TestUserKeyAppService_GenerationFailure(t *testing.T) {
	gen := &mocks.MockKeyGenerator{}
	gen.On("Generate", mock.Anything, testBits).Return(nil, errors.ErrGeneration("entropy exhausted"))

	f := newFixture(t, nil, gen)
	ctx := context.Background()

	_, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.Error(t, err)
	assert.True(t, errors.IsGenerationError(err))
	assert.Equal(t, 500, errors.GetHTTPStatus(err))

	stored, err := f.repo.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, stored, "nothing is stored after a failed generation")
	assert.Equal(t, 1, f.metrics.failedGens)
}

func TestUserKeyAppService_StorageFailures(t *testing.T) {
	keygen := crypto.NewSSHKeyGenerator(constants.PrivateKeyFormatPKCS1, "", logger.NewNoopLogger())
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		repo.On("Get", mock.Anything, "bob").Return(nil, assert.AnError)
		repo.On("Delete", mock.Anything, "bob").Return(nil).Maybe()
		f := newFixture(t, repo, nil)

		_, err := f.svc.GetPublicKey(ctx, "bob", "bob")
		assert.True(t, errors.IsStorageError(err))
		assert.ErrorIs(t, err, assert.AnError)
		assert.True(t, errors.IsStorageError(f.svc.DeleteKey(ctx, "bob", "bob")))
		assert.Equal(t, 2, f.metrics.storageErrors["get"])
	})

	t.Run("create does not leak key material", func(t *testing.T) {
		gen := &mocks.MockKeyGenerator{}
		pair, err := keygen.Generate(ctx, testBits)
		require.NoError(t, err)
		plaintextPEM := string(pair.PrivateKey)
		gen.On("Generate", mock.Anything, testBits).Return(pair, nil)

		repo := &mocks.MockUserKeyRepository{}
		repo.On("Get", mock.Anything, "bob").Return(nil, nil)
		repo.On("CreateIfAbsent", mock.Anything, "bob", mock.Anything).
			Return(nil, false, errors.ErrStorageBackend("postgres", "create", assert.AnError))
		f := newFixture(t, repo, gen)

		_, err = f.svc.GetPublicKey(ctx, "bob", "bob")
		require.Error(t, err)
		assert.True(t, errors.IsStorageError(err))
		assert.NotContains(t, err.Error(), "PRIVATE KEY")
		assert.NotContains(t, err.Error(), plaintextPEM)
		assert.Equal(t, 1, f.metrics.storageErrors["create"])
		assert.Empty(t, f.publisher.ofType(constants.KeyEventGenerated))
	})

	t.Run("delete", func(t *testing.T) {
		repo := &mocks.MockUserKeyRepository{}
		repo.On("Get", mock.Anything, "bob").Return(nil, nil)
		repo.On("Delete", mock.Anything, "bob").Return(assert.AnError)
		f := newFixture(t, repo, nil)

		err := f.svc.DeleteKey(ctx, "bob", "bob")
		assert.True(t, errors.IsStorageError(err))
		assert.Zero(t, f.metrics.deletions)
	})
}

func TestUserKeyAppService_PublishFailureDoesNotFailRequest(t *testing.T) {
	sealer, err := crypto.NewSealer("test-kek")
	require.NoError(t, err)
	publisher := &mocks.MockKeyEventPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)

	svc := NewUserKeyAppService(
		memory.NewUserKeyRepository(logger.NewNoopLogger()),
		crypto.NewSSHKeyGenerator("", "", logger.NewNoopLogger()),
		sealer, publisher, nil,
		config.KeysConfig{Bits: testBits}, logger.NewNoopLogger(),
	)

	_, err = svc.GetPublicKey(context.Background(), "bob", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteKey(context.Background(), "bob", "bob"))
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestUserKeyAppService_RevokeKey(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeKey(ctx, "operator", "bob"))
	deleted := f.publisher.ofType(constants.KeyEventDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "operator", deleted[0].RequesterID)
	assert.Equal(t, "operator revocation", deleted[0].Reason)

	next, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.PublicKey, next.PublicKey)

	assert.Error(t, f.svc.RevokeKey(ctx, "operator", ""))
}

func TestUserKeyAppService_IsolatesOwners(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	bob, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	alice, err := f.svc.GetPublicKey(ctx, "alice", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, bob.PublicKey, alice.PublicKey)

	require.NoError(t, f.svc.DeleteKey(ctx, "alice", "alice"))
	still, err := f.svc.GetPublicKey(ctx, "bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, bob, still)
}
