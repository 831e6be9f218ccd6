package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"zeron/internal/otp/models"
	"zeron/pkg/domain"
	"zeron/pkg/platform/sentinel"
)

const (
	challengeKeyPrefix = "otp:ch:"
	pendingKeyPrefix   = "otp:pending:"

	// Resolved challenges are retained briefly for observability, then dropped.
	challengeRetention = 24 * time.Hour
)

var errCASLost = errors.New("cas lost")

// RedisStore is the distributed challenge store shared across service
// instances. Status transitions use WATCH-based compare-and-set so a
// challenge resolves exactly once cluster-wide.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func challengeKey(id domain.ChallengeID) string {
	return challengeKeyPrefix + id.String()
}

func pendingKey(user domain.UserID, op models.Operation) string {
	return pendingKeyPrefix + user.String() + ":" + string(op)
}

func (s *RedisStore) Create(ctx context.Context, c *models.Challenge) error {
	key := challengeKey(c.ID)
	fields := map[string]any{
		"operation":       string(c.Operation),
		"requested_by":    c.RequestedBy.String(),
		"subject_id":      c.SubjectID,
		"code_hash":       base64.StdEncoding.EncodeToString(c.CodeHash),
		"delivery_target": c.DeliveryTarget,
		"status":          string(c.Status),
		"attempts":        c.Attempts,
		"created_at":      c.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":      c.ExpiresAt.Format(time.RFC3339Nano),
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, challengeRetention)
		if c.Status == models.ChallengeStatusPending {
			pipe.Set(ctx, pendingKey(c.RequestedBy, c.Operation), c.ID.String(), challengeRetention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id domain.ChallengeID) (*models.Challenge, error) {
	return s.load(ctx, id)
}

func (s *RedisStore) FindPending(ctx context.Context, requestedBy domain.UserID, op models.Operation) (*models.Challenge, error) {
	raw, err := s.client.Get(ctx, pendingKey(requestedBy, op)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read pending pointer: %w", err)
	}
	id, err := domain.ParseChallengeID(raw)
	if err != nil {
		return nil, fmt.Errorf("parse pending pointer: %w", err)
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ChallengeStatusPending {
		return nil, sentinel.ErrNotFound
	}
	return c, nil
}

func (s *RedisStore) Transition(ctx context.Context, id domain.ChallengeID, from, to models.ChallengeStatus) (bool, error) {
	key := challengeKey(id)
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		vals, err := rtx.HMGet(ctx, key, "status", "requested_by", "operation").Result()
		if err != nil {
			return err
		}
		status, _ := vals[0].(string)
		if status == "" {
			return sentinel.ErrNotFound
		}
		if status != string(from) {
			return errCASLost
		}
		requestedBy, _ := vals[1].(string)
		operation, _ := vals[2].(string)

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "status", string(to))
			if from == models.ChallengeStatusPending && requestedBy != "" {
				pipe.Del(ctx, pendingKeyPrefix+requestedBy+":"+operation)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, errCASLost) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, sentinel.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("transition challenge: %w", err)
	}
	return true, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id domain.ChallengeID) (int, error) {
	key := challengeKey(id)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("check challenge: %w", err)
	}
	if exists == 0 {
		return 0, sentinel.ErrNotFound
	}
	n, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) load(ctx context.Context, id domain.ChallengeID) (*models.Challenge, error) {
	vals, err := s.client.HGetAll(ctx, challengeKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if len(vals) == 0 {
		return nil, sentinel.ErrNotFound
	}

	requestedBy, err := domain.ParseUserID(vals["requested_by"])
	if err != nil {
		return nil, fmt.Errorf("parse requested_by: %w", err)
	}
	codeHash, err := base64.StdEncoding.DecodeString(vals["code_hash"])
	if err != nil {
		return nil, fmt.Errorf("decode code hash: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, vals["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, vals["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(vals["attempts"])
	if err != nil {
		attempts = 0
	}

	return &models.Challenge{
		ID:             id,
		Operation:      models.Operation(vals["operation"]),
		RequestedBy:    requestedBy,
		SubjectID:      vals["subject_id"],
		CodeHash:       codeHash,
		DeliveryTarget: vals["delivery_target"],
		Status:         models.ChallengeStatus(vals["status"]),
		Attempts:       attempts,
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
	}, nil
}
