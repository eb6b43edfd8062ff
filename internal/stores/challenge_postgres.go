package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresChallengeStore persists admin MFA challenges in the
// admin_login_challenges table. Consume and RecordFailure lock the row
// so the single-use and attempt-budget checks serialize.
//
// Expected schema:
//
//	CREATE TABLE admin_login_challenges (
//	    id               TEXT PRIMARY KEY,
//	    user_id          TEXT NOT NULL,
//	    fingerprint_hash TEXT NOT NULL,
//	    ip               TEXT NOT NULL DEFAULT '',
//	    user_agent       TEXT NOT NULL DEFAULT '',
//	    expires_at       BIGINT NOT NULL,
//	    created_at       BIGINT NOT NULL,
//	    used_at          BIGINT NOT NULL DEFAULT 0,
//	    attempts         SMALLINT NOT NULL DEFAULT 0
//	);
type PostgresChallengeStore struct {
	db *sql.DB
}

func NewPostgresChallengeStore(db *sql.DB) *PostgresChallengeStore {
	return &PostgresChallengeStore{db: db}
}

const challengeColumns = `id, user_id, fingerprint_hash, ip, user_agent, expires_at, created_at, used_at, attempts`

func (s *PostgresChallengeStore) Create(ctx context.Context, rec *ChallengeRecord, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_login_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0)`,
		rec.ID, rec.UserID, rec.FingerprintHash, rec.IP, rec.UserAgent,
		rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *PostgresChallengeStore) Get(ctx context.Context, challengeID, userID string) (*ChallengeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM admin_login_challenges
		WHERE id = $1 AND user_id = $2`,
		challengeID, userID,
	)
	return scanChallengeRow(row)
}

func (s *PostgresChallengeStore) Consume(ctx context.Context, challengeID, userID string, now int64) (ConsumeOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+challengeColumns+`
		FROM admin_login_challenges
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`,
		challengeID, userID,
	)
	rec, err := scanChallengeRow(row)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ConsumeNotFound, nil
		}
		return ConsumeNotFound, err
	}

	if rec.UsedAt != 0 || rec.ExpiresAt <= now {
		return ConsumeUsedOrExpired, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE admin_login_challenges SET used_at = $1 WHERE id = $2`,
		now, challengeID,
	); err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ConsumeOK, nil
}

func (s *PostgresChallengeStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int, now int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx, `
		SELECT attempts FROM admin_login_challenges WHERE id = $1 FOR UPDATE`,
		challengeID,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	attempts++
	exceeded := attempts >= maxAttempts

	if exceeded {
		_, err = tx.ExecContext(ctx, `
			UPDATE admin_login_challenges SET attempts = $1, used_at = $2 WHERE id = $3`,
			attempts, now, challengeID,
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE admin_login_challenges SET attempts = $1 WHERE id = $2`,
			attempts, challengeID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return exceeded, nil
}

func scanChallengeRow(row rowScanner) (*ChallengeRecord, error) {
	var rec ChallengeRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.FingerprintHash, &rec.IP, &rec.UserAgent,
		&rec.ExpiresAt, &rec.CreatedAt, &rec.UsedAt, &rec.Attempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &rec, nil
}
