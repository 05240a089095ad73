// Package repositorytest holds the behavioural suite every UserKeyRepository
// implementation runs in its own tests.
package repositorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	"github.com/turtacn/keystore/pkg/constants"
)

// UserKeyRepositorySuite exercises the repository contract. NewRepository is
// called before every test and must return an empty repository.
type UserKeyRepositorySuite struct {
	suite.Suite
	NewRepository func(t *testing.T) repository.UserKeyRepository

	repo repository.UserKeyRepository
	ctx  context.Context
}

func (s *UserKeyRepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.NewRepository(s.T())
}

// SampleKey builds a keypair with distinct, recognisable fields.
func SampleKey(tag string) *models.UserKeyPair {
	return &models.UserKeyPair{
		PublicKey:   "ssh-rsa AAAA" + tag,
		PrivateKey:  []byte("sealed-" + tag),
		Fingerprint: "SHA256:" + tag,
		Bits:        2048,
		Format:      constants.PrivateKeyFormatPKCS1,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func (s *UserKeyRepositorySuite) assertSameKey(want, got *models.UserKeyPair) {
	s.Require().NotNil(got)
	s.Equal(want.PublicKey, got.PublicKey)
	s.Equal(want.PrivateKey, got.PrivateKey)
	s.Equal(want.Fingerprint, got.Fingerprint)
	s.Equal(want.Bits, got.Bits)
	s.Equal(want.Format, got.Format)
	s.True(want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
}

func (s *UserKeyRepositorySuite) TestGetMissingReturnsNil() {
	got, err := s.repo.Get(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *UserKeyRepositorySuite) TestPutThenGet() {
	key := SampleKey("k1")
	s.Require().NoError(s.repo.Put(s.ctx, "bob", key))

	got, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.assertSameKey(key, got)
	s.Equal("bob", got.OwnerID)

	other, err := s.repo.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.Nil(other)
}

func (s *UserKeyRepositorySuite) TestPutReplacesWholeRecord() {
	s.Require().NoError(s.repo.Put(s.ctx, "bob", SampleKey("k1")))
	replacement := SampleKey("k2")
	s.Require().NoError(s.repo.Put(s.ctx, "bob", replacement))

	got, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.assertSameKey(replacement, got)
}

func (s *UserKeyRepositorySuite) TestGetReturnsCopy() {
	s.Require().NoError(s.repo.Put(s.ctx, "bob", SampleKey("k1")))

	got, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	got.PublicKey = "mutated"
	got.PrivateKey[0] = 'X'

	again, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.assertSameKey(SampleKey("k1"), again)
}

func (s *UserKeyRepositorySuite) TestCreateIfAbsent() {
	first := SampleKey("first")
	stored, created, err := s.repo.CreateIfAbsent(s.ctx, "bob", first)
	s.Require().NoError(err)
	s.True(created)
	s.assertSameKey(first, stored)
	s.Equal("bob", stored.OwnerID)

	stored, created, err = s.repo.CreateIfAbsent(s.ctx, "bob", SampleKey("second"))
	s.Require().NoError(err)
	s.False(created)
	s.assertSameKey(first, stored)
}

func (s *UserKeyRepositorySuite) TestDelete() {
	s.Require().NoError(s.repo.Delete(s.ctx, "bob"), "deleting a missing record is a no-op")

	s.Require().NoError(s.repo.Put(s.ctx, "bob", SampleKey("k1")))
	s.Require().NoError(s.repo.Put(s.ctx, "alice", SampleKey("a1")))
	s.Require().NoError(s.repo.Delete(s.ctx, "bob"))

	got, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	s.Nil(got)

	alice, err := s.repo.Get(s.ctx, "alice")
	s.Require().NoError(err)
	s.NotNil(alice)

	fresh := SampleKey("k2")
	stored, created, err := s.repo.CreateIfAbsent(s.ctx, "bob", fresh)
	s.Require().NoError(err)
	s.True(created)
	s.assertSameKey(fresh, stored)
}

func (s *UserKeyRepositorySuite) TestConcurrentCreateIfAbsentStoresOne() {
	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		seen    = make(map[string]struct{})
		errs    []error
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, ok, err := s.repo.CreateIfAbsent(s.ctx, "bob", SampleKey(fmt.Sprintf("racer-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
			seen[stored.Fingerprint] = struct{}{}
		}(i)
	}
	wg.Wait()

	s.Empty(errs)
	s.Equal(1, created)
	s.Len(seen, 1)

	got, err := s.repo.Get(s.ctx, "bob")
	s.Require().NoError(err)
	_, ok := seen[got.Fingerprint]
	s.True(ok)
}

func (s *UserKeyRepositorySuite) TestPing() {
	s.NoError(s.repo.Ping(s.ctx))
}
