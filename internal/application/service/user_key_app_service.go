package service

import (
	"context"
	"time"

	"github.com/im7mortal/kmutex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/keystore/internal/application/dto"
	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/repository"
	domainservice "github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// UserKeyAppService is the externally exposed contract of the key store.
// Every call names the requester explicitly; there is no ambient session.
type UserKeyAppService interface {
	// GetPublicKey returns targetOwnerID's public key, generating the keypair
	// on first access. Only the owner may read it.
	GetPublicKey(ctx context.Context, requesterID, targetOwnerID string) (*dto.PublicKeyResponse, error)
	// DeleteKey removes targetOwnerID's keypair. Deleting a missing key succeeds.
	DeleteKey(ctx context.Context, requesterID, targetOwnerID string) error
	// Signer returns an ssh.Signer over ownerID's private key for trusted
	// in-process callers, generating the keypair on first access.
	Signer(ctx context.Context, ownerID string) (ssh.Signer, error)
	// RevokeKey removes ownerID's keypair on an operator's behalf.
	RevokeKey(ctx context.Context, operator, ownerID string) error
}

type userKeyAppServiceImpl struct {
	repo      repository.UserKeyRepository
	generator domainservice.KeyGenerator
	sealer    domainservice.KeySealer
	publisher domainservice.KeyEventPublisher
	metrics   domainservice.KeyMetrics
	bits      int

	flight singleflight.Group
	locks  *kmutex.Kmutex
	tracer trace.Tracer
	log    logger.Logger
}

// NewUserKeyAppService creates a new UserKeyAppService.
func NewUserKeyAppService(
	repo repository.UserKeyRepository,
	generator domainservice.KeyGenerator,
	sealer domainservice.KeySealer,
	publisher domainservice.KeyEventPublisher,
	metrics domainservice.KeyMetrics,
	keys config.KeysConfig,
	log logger.Logger,
) UserKeyAppService {
	if metrics == nil {
		metrics = domainservice.NoopKeyMetrics{}
	}
	bits := keys.Bits
	if bits == 0 {
		bits = constants.DefaultKeyBits
	}
	return &userKeyAppServiceImpl{
		repo:      repo,
		generator: generator,
		sealer:    sealer,
		publisher: publisher,
		metrics:   metrics,
		bits:      bits,
		locks:     kmutex.New(),
		tracer:    otel.Tracer(constants.ServiceName),
		log:       log.WithComponent("user_key_service"),
	}
}

func (s *userKeyAppServiceImpl) GetPublicKey(ctx context.Context, requesterID, targetOwnerID string) (*dto.PublicKeyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "UserKeyAppService.GetPublicKey",
		trace.WithAttributes(attribute.String("owner_id", targetOwnerID)))
	defer span.End()

	if err := s.authorize(ctx, requesterID, targetOwnerID); err != nil {
		endSpan(span, err)
		return nil, err
	}

	key, existing, err := s.getOrCreate(ctx, requesterID, targetOwnerID)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	s.metrics.RecordPublicKeyRead(existing)
	span.SetAttributes(attribute.Bool("existing", existing), attribute.String("fingerprint", key.Fingerprint))
	return dto.PublicKeyToDTO(key.PublicView()), nil
}

func (s *userKeyAppServiceImpl) DeleteKey(ctx context.Context, requesterID, targetOwnerID string) error {
	ctx, span := s.tracer.Start(ctx, "UserKeyAppService.DeleteKey",
		trace.WithAttributes(attribute.String("owner_id", targetOwnerID)))
	defer span.End()

	if err := s.authorize(ctx, requesterID, targetOwnerID); err != nil {
		endSpan(span, err)
		return err
	}
	if err := s.remove(ctx, requesterID, targetOwnerID, ""); err != nil {
		endSpan(span, err)
		return err
	}
	return nil
}

func (s *userKeyAppServiceImpl) RevokeKey(ctx context.Context, operator, ownerID string) error {
	if ownerID == "" {
		return errors.ErrInvalidRequest("owner id must not be empty")
	}
	return s.remove(ctx, operator, ownerID, "operator revocation")
}

func (s *userKeyAppServiceImpl) Signer(ctx context.Context, ownerID string) (ssh.Signer, error) {
	ctx, span := s.tracer.Start(ctx, "UserKeyAppService.Signer",
		trace.WithAttributes(attribute.String("owner_id", ownerID)))
	defer span.End()

	if ownerID == "" {
		err := errors.ErrInvalidRequest("owner id must not be empty")
		endSpan(span, err)
		return nil, err
	}

	key, _, err := s.getOrCreate(ctx, ownerID, ownerID)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	pemBytes, err := s.sealer.Open(ownerID, key.PrivateKey)
	if err != nil {
		s.log.Error(ctx, "Failed to unseal private key", err, logger.Fields{"owner_id": ownerID, "fingerprint": key.Fingerprint})
		endSpan(span, err)
		return nil, err
	}
	signer, err := crypto.ParseSigner(pemBytes)
	if err != nil {
		err = errors.ErrInternal("stored private key is unreadable").WithCause(err)
		endSpan(span, err)
		return nil, err
	}
	return signer, nil
}

// authorize enforces self-only access.
func (s *userKeyAppServiceImpl) authorize(ctx context.Context, requesterID, targetOwnerID string) error {
	if requesterID == "" {
		s.metrics.RecordAccessDenied(string(constants.ErrCodeUnauthenticated))
		s.publish(ctx, models.NewKeyEvent(constants.KeyEventAccessDenied, targetOwnerID, "").
			WithReason(string(constants.ErrCodeUnauthenticated)))
		return errors.ErrUnauthenticated("authentication required")
	}
	if requesterID != targetOwnerID {
		s.metrics.RecordAccessDenied(string(constants.ErrCodeForbidden))
		s.publish(ctx, models.NewKeyEvent(constants.KeyEventAccessDenied, targetOwnerID, requesterID).
			WithReason(string(constants.ErrCodeForbidden)))
		s.log.Warn(ctx, "Refused access to another user's key", logger.Fields{
			"requester_id": requesterID,
			"owner_id":     targetOwnerID,
		})
		return errors.ErrOwnerMismatch(requesterID, targetOwnerID)
	}
	return nil
}

type flightResult struct {
	key      *models.UserKeyPair
	existing bool
	event    *models.KeyEvent
}

// getOrCreate returns the stored keypair for ownerID, generating one if none
// exists. Concurrent callers for one owner share a single generation, and the
// repository's insert-if-absent decides the winner across processes.
func (s *userKeyAppServiceImpl) getOrCreate(ctx context.Context, requesterID, ownerID string) (*models.UserKeyPair, bool, error) {
	key, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, false, s.storageFailure(ctx, "get", ownerID, err)
	}
	if key != nil {
		return key, true, nil
	}

	// leader is set only in the goroutine that ran the flight, so the
	// generated event goes out once however many callers shared it.
	var leader bool
	v, err, _ := s.flight.Do(ownerID, func() (interface{}, error) {
		leader = true
		return s.createLocked(context.WithoutCancel(ctx), requesterID, ownerID)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(flightResult)
	if leader && res.event != nil {
		s.publish(ctx, res.event)
	}
	return res.key.Clone(), res.existing, nil
}

func (s *userKeyAppServiceImpl) createLocked(ctx context.Context, requesterID, ownerID string) (flightResult, error) {
	s.locks.Lock(ownerID)
	defer s.locks.Unlock(ownerID)

	// A delete or another flight may have finished while we waited.
	existing, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return flightResult{}, s.storageFailure(ctx, "get", ownerID, err)
	}
	if existing != nil {
		return flightResult{key: existing, existing: true}, nil
	}
	return s.create(ctx, requesterID, ownerID)
}

func (s *userKeyAppServiceImpl) create(ctx context.Context, requesterID, ownerID string) (flightResult, error) {
	start := time.Now()
	fresh, err := s.generator.Generate(ctx, s.bits)
	s.metrics.RecordKeyGeneration(err == nil, time.Since(start))
	if err != nil {
		s.log.Error(ctx, "Key generation failed", err, logger.Fields{"owner_id": ownerID, "bits": s.bits})
		if !errors.IsGenerationError(err) {
			err = errors.ErrGeneration("key generation failed").WithCause(err)
		}
		return flightResult{}, err
	}

	sealed, err := s.sealer.Seal(ownerID, fresh.PrivateKey)
	if err != nil {
		return flightResult{}, err
	}
	fresh.OwnerID = ownerID
	fresh.PrivateKey = sealed

	stored, created, err := s.repo.CreateIfAbsent(ctx, ownerID, fresh)
	if err != nil {
		return flightResult{}, s.storageFailure(ctx, "create", ownerID, err)
	}
	if !created {
		s.log.Info(ctx, "Another instance stored a key first", logger.Fields{"owner_id": ownerID})
		return flightResult{key: stored, existing: true}, nil
	}

	s.log.Info(ctx, "Generated user keypair", logger.Fields{
		"owner_id":    ownerID,
		"fingerprint": stored.Fingerprint,
		"bits":        stored.Bits,
	})
	event := models.NewKeyEvent(constants.KeyEventGenerated, ownerID, requesterID).
		WithTransition(models.KeyStateAbsent, models.KeyStatePresent).
		WithFingerprint(stored.Fingerprint)
	return flightResult{key: stored, existing: false, event: event}, nil
}

func (s *userKeyAppServiceImpl) remove(ctx context.Context, requesterID, ownerID, reason string) error {
	event, err := s.removeLocked(ctx, requesterID, ownerID, reason)
	if err != nil {
		return err
	}
	if event != nil {
		s.publish(ctx, event)
	}
	return nil
}

func (s *userKeyAppServiceImpl) removeLocked(ctx context.Context, requesterID, ownerID, reason string) (*models.KeyEvent, error) {
	s.locks.Lock(ownerID)
	defer s.locks.Unlock(ownerID)

	current, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		return nil, s.storageFailure(ctx, "get", ownerID, err)
	}
	if err := s.repo.Delete(ctx, ownerID); err != nil {
		return nil, s.storageFailure(ctx, "delete", ownerID, err)
	}
	// Readers arriving after this point must not join a flight that may
	// still be returning the key just deleted.
	s.flight.Forget(ownerID)
	s.metrics.RecordKeyDeletion()

	if current == nil {
		s.log.Debug(ctx, "Delete requested for owner without a key", logger.Fields{"owner_id": ownerID})
		return nil, nil
	}

	s.log.Info(ctx, "Deleted user keypair", logger.Fields{
		"owner_id":     ownerID,
		"requester_id": requesterID,
		"fingerprint":  current.Fingerprint,
	})
	return models.NewKeyEvent(constants.KeyEventDeleted, ownerID, requesterID).
		WithTransition(models.KeyStatePresent, models.KeyStateAbsent).
		WithFingerprint(current.Fingerprint).
		WithReason(reason), nil
}

func (s *userKeyAppServiceImpl) storageFailure(ctx context.Context, op, ownerID string, err error) error {
	s.metrics.RecordStorageError(op)
	s.log.Error(ctx, "Key repository failure", err, logger.Fields{"owner_id": ownerID, "operation": op})
	if errors.IsStorageError(err) {
		return err
	}
	return errors.ErrStorage("key storage " + op + " failed").WithCause(err)
}

// publish never fails the caller; a lost audit event is logged instead.
func (s *userKeyAppServiceImpl) publish(ctx context.Context, event *models.KeyEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Error(ctx, "Failed to publish key event", err, logger.Fields{
			"event_id": event.ID,
			"type":     event.Type,
			"owner_id": event.OwnerID,
		})
	}
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
