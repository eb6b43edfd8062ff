package stores

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "amc"

// watch retries before an optimistic transaction is reported as failed.
const challengeTxRetries = 4

// RedisChallengeStore keeps admin MFA challenges in Redis hashes. The
// single-use and attempt-budget updates run under WATCH so concurrent
// verifications of the same challenge cannot both win.
type RedisChallengeStore struct {
	redis redis.UniversalClient
}

func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{redis: client}
}

func (s *RedisChallengeStore) key(challengeID string) string {
	return challengeKeyPrefix + ":" + challengeID
}

func (s *RedisChallengeStore) Create(ctx context.Context, rec *ChallengeRecord, ttl time.Duration) error {
	key := s.key(rec.ID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", rec.UserID,
			"fph", rec.FingerprintHash,
			"ip", rec.IP,
			"ua", rec.UserAgent,
			"exp", strconv.FormatInt(rec.ExpiresAt, 10),
			"created", strconv.FormatInt(rec.CreatedAt, 10),
			"used", "0",
			"att", "0",
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, challengeID, userID string) (*ChallengeRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(challengeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	rec, err := decodeChallengeFields(challengeID, fields)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, challengeID, userID string, now int64) (ConsumeOutcome, error) {
	key := s.key(challengeID)
	outcome := ConsumeNotFound

	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 || fields["uid"] != userID {
			outcome = ConsumeNotFound
			return nil
		}

		rec, err := decodeChallengeFields(challengeID, fields)
		if err != nil {
			return err
		}
		if rec.UsedAt != 0 || rec.ExpiresAt <= now {
			outcome = ConsumeUsedOrExpired
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "used", strconv.FormatInt(now, 10))
			return nil
		})
		if err != nil {
			return err
		}

		outcome = ConsumeOK
		return nil
	}

	for i := 0; i < challengeTxRetries; i++ {
		err := s.redis.Watch(ctx, txn, key)
		if err == nil {
			return outcome, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Every retry lost the race; someone else is consuming this challenge.
	return ConsumeUsedOrExpired, nil
}

func (s *RedisChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int, now int64) (bool, error) {
	key := s.key(challengeID)
	exceeded := false

	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}

		attempts, err := strconv.Atoi(fields["att"])
		if err != nil {
			return fmt.Errorf("corrupt challenge record %s", challengeID)
		}
		attempts++
		exceeded = attempts >= maxAttempts

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "att", strconv.Itoa(attempts))
			if exceeded {
				// burn the challenge so later codes cannot redeem it
				pipe.HSet(ctx, key, "used", strconv.FormatInt(now, 10))
			}
			return nil
		})
		return err
	}

	for i := 0; i < challengeTxRetries; i++ {
		err := s.redis.Watch(ctx, txn, key)
		if err == nil {
			return exceeded, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return false, fmt.Errorf("%w: challenge attempt transaction kept failing", ErrBackendUnavailable)
}

func decodeChallengeFields(challengeID string, fields map[string]string) (*ChallengeRecord, error) {
	rec := &ChallengeRecord{
		ID:              challengeID,
		UserID:          fields["uid"],
		FingerprintHash: fields["fph"],
		IP:              fields["ip"],
		UserAgent:       fields["ua"],
	}

	for field, dst := range map[string]*int64{
		"exp":     &rec.ExpiresAt,
		"created": &rec.CreatedAt,
		"used":    &rec.UsedAt,
	} {
		v, err := strconv.ParseInt(fields[field], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt challenge record %s", ErrBackendUnavailable, challengeID)
		}
		*dst = v
	}

	attempts, err := strconv.ParseUint(fields["att"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt challenge record %s", ErrBackendUnavailable, challengeID)
	}
	rec.Attempts = uint16(attempts)

	return rec, nil
}
