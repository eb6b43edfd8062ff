package stores

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix = "arf"
	familyKeyPrefix  = "arff"
	userKeyPrefix    = "arfu"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusReused   int64 = 2
	rotateStatusRotated  int64 = 3
)

// rotateScript is the compare-and-swap core of the rotation protocol.
// It re-validates ownership, liveness, and the provided token hash, then
// retires the old record and installs the successor in one atomic step.
const rotateScript = `
local function record(key)
  local flat = redis.call("HGETALL", key)
  if #flat == 0 then
    return nil
  end
  local rec = {}
  for i = 1, #flat, 2 do
    rec[flat[i]] = flat[i + 1]
  end
  return rec
end

local old_key = KEYS[1]
local new_key = KEYS[2]
local family_key = KEYS[3]

local now = tonumber(ARGV[1])
local uid = ARGV[2]
local fam = ARGV[3]
local provided_hash = ARGV[4]
local new_id = ARGV[5]
local new_hash = ARGV[6]
local new_exp = ARGV[7]
local ip = ARGV[8]
local ua = ARGV[9]
local ttl_ms = tonumber(ARGV[10])

local old = record(old_key)
if not old or old.uid ~= uid or old.fam ~= fam then
  return {0}
end

if old.revoked ~= "0" or old.replaced ~= "" then
  return {2}
end

if tonumber(old.exp) <= now then
  return {1}
end

if old.hash ~= provided_hash then
  return {2}
end

redis.call("HSET", old_key, "revoked", now, "replaced", new_id)
redis.call("HSET", new_key,
  "uid", uid,
  "fam", fam,
  "hash", new_hash,
  "exp", new_exp,
  "ip", ip,
  "ua", ua,
  "mfa", old.mfa,
  "created", now,
  "revoked", "0",
  "replaced", "",
  "reuse", "0")
redis.call("PEXPIRE", new_key, ttl_ms)
redis.call("SADD", family_key, new_id)
redis.call("PEXPIRE", family_key, ttl_ms)

return {3}
`

// revokeFamilyScript stamps revoked-at (and optionally reuse-detected-at)
// on every live record of a family. Records are kept until natural expiry
// so the incident remains auditable.
const revokeFamilyScript = `
local family_key = KEYS[1]
local now = ARGV[1]
local prefix = ARGV[2]
local mark_reuse = ARGV[3]

local ids = redis.call("SMEMBERS", family_key)
local touched = 0
for _, id in ipairs(ids) do
  local key = prefix .. id
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "revoked") == "0" then
      redis.call("HSET", key, "revoked", now)
      if mark_reuse == "1" then
        redis.call("HSET", key, "reuse", now)
      end
      touched = touched + 1
    end
  end
end

return touched
`

var (
	rotateLua       = redis.NewScript(rotateScript)
	revokeFamilyLua = redis.NewScript(revokeFamilyScript)
)

// RedisRefreshStore keeps rotation families in Redis hashes, one record
// per token identity, with a per-family set as the revocation index.
type RedisRefreshStore struct {
	redis redis.UniversalClient
}

func NewRedisRefreshStore(client redis.UniversalClient) *RedisRefreshStore {
	return &RedisRefreshStore{redis: client}
}

func (s *RedisRefreshStore) key(tokenID string) string {
	return refreshKeyPrefix + ":" + tokenID
}

func (s *RedisRefreshStore) familyKey(userID, familyID string) string {
	return familyKeyPrefix + ":" + userID + ":" + familyID
}

func (s *RedisRefreshStore) userKey(userID string) string {
	return userKeyPrefix + ":" + userID
}

func (s *RedisRefreshStore) Persist(ctx context.Context, rec *RefreshRecord, ttl time.Duration) error {
	key := s.key(rec.ID)
	familyKey := s.familyKey(rec.UserID, rec.FamilyID)
	userKey := s.userKey(rec.UserID)

	mfa := "0"
	if rec.MFAVerified {
		mfa = "1"
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", rec.UserID,
			"fam", rec.FamilyID,
			"hash", hex.EncodeToString(rec.TokenHash[:]),
			"exp", strconv.FormatInt(rec.ExpiresAt, 10),
			"ip", rec.IP,
			"ua", rec.UserAgent,
			"mfa", mfa,
			"created", strconv.FormatInt(rec.CreatedAt, 10),
			"revoked", "0",
			"replaced", "",
			"reuse", "0",
		)
		pipe.PExpire(ctx, key, ttl)
		pipe.SAdd(ctx, familyKey, rec.ID)
		pipe.PExpire(ctx, familyKey, ttl)
		pipe.SAdd(ctx, userKey, rec.FamilyID)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return nil
}

func (s *RedisRefreshStore) Find(ctx context.Context, tokenID, userID, familyID string) (*RefreshRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}

	rec, err := decodeRefreshFields(tokenID, fields)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID || rec.FamilyID != familyID {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (s *RedisRefreshStore) Rotate(
	ctx context.Context,
	tokenID, userID, familyID string,
	providedHash [32]byte,
	next *RefreshRecord,
	ttl time.Duration,
	now int64,
) (RotateOutcome, error) {
	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tokenID), s.key(next.ID), s.familyKey(userID, familyID)},
		now,
		userID,
		familyID,
		hex.EncodeToString(providedHash[:]),
		next.ID,
		hex.EncodeToString(next.TokenHash[:]),
		strconv.FormatInt(next.ExpiresAt, 10),
		next.IP,
		next.UserAgent,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return RotateNotFound, fmt.Errorf("%w: invalid rotate script response", ErrBackendUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return RotateNotFound, fmt.Errorf("%w: invalid rotate script status", ErrBackendUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return RotateNotFound, nil
	case rotateStatusExpired:
		return RotateExpired, nil
	case rotateStatusReused:
		return RotateReused, nil
	case rotateStatusRotated:
		return RotateOK, nil
	default:
		return RotateNotFound, fmt.Errorf("%w: unknown rotate script status", ErrBackendUnavailable)
	}
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, tokenID, userID, familyID string, now int64) error {
	rec, err := s.Find(ctx, tokenID, userID, familyID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if rec.RevokedAt != 0 {
		return nil
	}

	if err := s.redis.HSet(ctx, s.key(tokenID), "revoked", strconv.FormatInt(now, 10)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *RedisRefreshStore) RevokeFamily(ctx context.Context, userID, familyID string, markReuse bool, now int64) (int, error) {
	mark := "0"
	if markReuse {
		mark = "1"
	}

	result, err := revokeFamilyLua.Run(
		ctx,
		s.redis,
		[]string{s.familyKey(userID, familyID)},
		now,
		refreshKeyPrefix+":",
		mark,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	touched, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid revoke script response", ErrBackendUnavailable)
	}
	return int(touched), nil
}

func (s *RedisRefreshStore) RevokeAllForUser(ctx context.Context, userID string, now int64) (int, error) {
	familyIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	total := 0
	for _, familyID := range familyIDs {
		n, err := s.RevokeFamily(ctx, userID, familyID, false, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func decodeRefreshFields(tokenID string, fields map[string]string) (*RefreshRecord, error) {
	rec := &RefreshRecord{
		ID:        tokenID,
		UserID:    fields["uid"],
		FamilyID:  fields["fam"],
		IP:        fields["ip"],
		UserAgent: fields["ua"],
	}

	hashRaw, err := hex.DecodeString(fields["hash"])
	if err != nil || len(hashRaw) != len(rec.TokenHash) {
		return nil, fmt.Errorf("%w: corrupt refresh record %s", ErrBackendUnavailable, tokenID)
	}
	copy(rec.TokenHash[:], hashRaw)

	for field, dst := range map[string]*int64{
		"exp":     &rec.ExpiresAt,
		"created": &rec.CreatedAt,
		"revoked": &rec.RevokedAt,
		"reuse":   &rec.ReuseDetectedAt,
	} {
		v, convErr := strconv.ParseInt(fields[field], 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("%w: corrupt refresh record %s", ErrBackendUnavailable, tokenID)
		}
		*dst = v
	}

	rec.MFAVerified = fields["mfa"] == "1"
	rec.ReplacedBy = fields["replaced"]

	return rec, nil
}
