package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testChallenge(id, userID string) *ChallengeRecord {
	now := time.Now().Unix()
	return &ChallengeRecord{
		ID:              id,
		UserID:          userID,
		FingerprintHash: "fp-hash",
		IP:              "203.0.113.7",
		UserAgent:       "test-agent",
		ExpiresAt:       now + 300,
		CreatedAt:       now,
	}
}

func TestRedisChallengeCreateAndGet(t *testing.T) {
	store := NewRedisChallengeStore(newTestRedis(t))
	ctx := context.Background()

	rec := testChallenge("c1", "u1")
	if err := store.Create(ctx, rec, 5*time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FingerprintHash != "fp-hash" || got.UsedAt != 0 || got.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := store.Get(ctx, "c1", "u2"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for wrong user, got %v", err)
	}
	if _, err := store.Get(ctx, "missing", "u1"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for missing challenge, got %v", err)
	}
}

func TestRedisChallengeConsumeSingleUse(t *testing.T) {
	store := NewRedisChallengeStore(newTestRedis(t))
	ctx := context.Background()
	now := time.Now().Unix()

	if err := store.Create(ctx, testChallenge("c1", "u1"), 5*time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	outcome, err := store.Consume(ctx, "c1", "u1", now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if outcome != ConsumeOK {
		t.Fatalf("expected ConsumeOK, got %v", outcome)
	}

	outcome, err = store.Consume(ctx, "c1", "u1", now)
	if err != nil {
		t.Fatalf("second Consume failed: %v", err)
	}
	if outcome != ConsumeUsedOrExpired {
		t.Fatalf("expected ConsumeUsedOrExpired on replay, got %v", outcome)
	}

	outcome, err = store.Consume(ctx, "missing", "u1", now)
	if err != nil {
		t.Fatalf("Consume(missing) failed: %v", err)
	}
	if outcome != ConsumeNotFound {
		t.Fatalf("expected ConsumeNotFound, got %v", outcome)
	}
}

func TestRedisChallengeConsumeExpired(t *testing.T) {
	store := NewRedisChallengeStore(newTestRedis(t))
	ctx := context.Background()

	rec := testChallenge("c1", "u1")
	rec.ExpiresAt = time.Now().Unix() - 1
	if err := store.Create(ctx, rec, 5*time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	outcome, err := store.Consume(ctx, "c1", "u1", time.Now().Unix())
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if outcome != ConsumeUsedOrExpired {
		t.Fatalf("expected ConsumeUsedOrExpired, got %v", outcome)
	}
}

func TestRedisChallengeConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewRedisChallengeStore(newTestRedis(t))
	ctx := context.Background()
	now := time.Now().Unix()

	if err := store.Create(ctx, testChallenge("c1", "u1"), 5*time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const attempts = 8
	outcomes := make([]ConsumeOutcome, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := store.Consume(ctx, "c1", "u1", now)
			if err != nil {
				t.Errorf("Consume failed: %v", err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, outcome := range outcomes {
		if outcome == ConsumeOK {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestRedisChallengeRecordFailureBurnsOnExceed(t *testing.T) {
	store := NewRedisChallengeStore(newTestRedis(t))
	ctx := context.Background()
	now := time.Now().Unix()

	if err := store.Create(ctx, testChallenge("c1", "u1"), 5*time.Minute); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const maxAttempts = 3
	for i := 1; i < maxAttempts; i++ {
		exceeded, err := store.RecordFailure(ctx, "c1", maxAttempts, now)
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if exceeded {
			t.Fatalf("attempt %d should not exceed the budget", i)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "c1", maxAttempts, now)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !exceeded {
		t.Fatal("final attempt must exceed the budget")
	}

	// burned: the challenge can no longer be consumed
	outcome, err := store.Consume(ctx, "c1", "u1", now)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if outcome != ConsumeUsedOrExpired {
		t.Fatalf("expected burned challenge, got %v", outcome)
	}

	rec, err := store.Get(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Attempts != maxAttempts {
		t.Fatalf("expected %d attempts recorded, got %d", maxAttempts, rec.Attempts)
	}

	// failures on a missing challenge are not an error
	exceeded, err = store.RecordFailure(ctx, "missing", maxAttempts, now)
	if err != nil || exceeded {
		t.Fatalf("RecordFailure(missing) = %v, %v", exceeded, err)
	}
}
