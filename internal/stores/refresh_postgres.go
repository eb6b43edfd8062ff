package stores

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresRefreshStore persists rotation families in the refresh_tokens
// table. Rotation takes a SELECT ... FOR UPDATE row lock so two
// concurrent rotations of the same record serialize; the loser sees the
// already-replaced row and reports reuse.
//
// Expected schema:
//
//	CREATE TABLE refresh_tokens (
//	    id                TEXT PRIMARY KEY,
//	    user_id           TEXT NOT NULL,
//	    family_id         TEXT NOT NULL,
//	    token_hash        TEXT NOT NULL,
//	    expires_at        BIGINT NOT NULL,
//	    created_at        BIGINT NOT NULL,
//	    ip                TEXT NOT NULL DEFAULT '',
//	    user_agent        TEXT NOT NULL DEFAULT '',
//	    mfa_verified      BOOLEAN NOT NULL DEFAULT FALSE,
//	    revoked_at        BIGINT NOT NULL DEFAULT 0,
//	    replaced_by       TEXT NOT NULL DEFAULT '',
//	    reuse_detected_at BIGINT NOT NULL DEFAULT 0
//	);
//	CREATE INDEX refresh_tokens_family_idx ON refresh_tokens (user_id, family_id);
type PostgresRefreshStore struct {
	db *sql.DB
}

func NewPostgresRefreshStore(db *sql.DB) *PostgresRefreshStore {
	return &PostgresRefreshStore{db: db}
}

const refreshColumns = `id, user_id, family_id, token_hash, expires_at, created_at,
	ip, user_agent, mfa_verified, revoked_at, replaced_by, reuse_detected_at`

func (s *PostgresRefreshStore) Persist(ctx context.Context, rec *RefreshRecord, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, '', 0)`,
		rec.ID, rec.UserID, rec.FamilyID, hex.EncodeToString(rec.TokenHash[:]),
		rec.ExpiresAt, rec.CreatedAt, rec.IP, rec.UserAgent, rec.MFAVerified,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *PostgresRefreshStore) Find(ctx context.Context, tokenID, userID, familyID string) (*RefreshRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE id = $1 AND user_id = $2 AND family_id = $3`,
		tokenID, userID, familyID,
	)
	return scanRefreshRow(row)
}

func (s *PostgresRefreshStore) Rotate(
	ctx context.Context,
	tokenID, userID, familyID string,
	providedHash [32]byte,
	next *RefreshRecord,
	_ time.Duration,
	now int64,
) (RotateOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+refreshColumns+`
		FROM refresh_tokens
		WHERE id = $1 AND user_id = $2 AND family_id = $3
		FOR UPDATE`,
		tokenID, userID, familyID,
	)
	old, err := scanRefreshRow(row)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return RotateNotFound, nil
		}
		return RotateNotFound, err
	}

	switch {
	case old.RevokedAt != 0 || old.ReplacedBy != "":
		return RotateReused, nil
	case old.ExpiresAt <= now:
		return RotateExpired, nil
	case old.TokenHash != providedHash:
		return RotateReused, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1, replaced_by = $2
		WHERE id = $3`,
		now, next.ID, tokenID,
	); err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, '', 0)`,
		next.ID, userID, familyID, hex.EncodeToString(next.TokenHash[:]),
		next.ExpiresAt, now, next.IP, next.UserAgent, old.MFAVerified,
	); err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return RotateOK, nil
}

func (s *PostgresRefreshStore) Revoke(ctx context.Context, tokenID, userID, familyID string, now int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1
		WHERE id = $2 AND user_id = $3 AND family_id = $4 AND revoked_at = 0`,
		now, tokenID, userID, familyID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *PostgresRefreshStore) RevokeFamily(ctx context.Context, userID, familyID string, markReuse bool, now int64) (int, error) {
	var (
		result sql.Result
		err    error
	)
	if markReuse {
		result, err = s.db.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = $1, reuse_detected_at = $1
			WHERE user_id = $2 AND family_id = $3 AND revoked_at = 0`,
			now, userID, familyID,
		)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = $1
			WHERE user_id = $2 AND family_id = $3 AND revoked_at = 0`,
			now, userID, familyID,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	touched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return int(touched), nil
}

func (s *PostgresRefreshStore) RevokeAllForUser(ctx context.Context, userID string, now int64) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at = 0`,
		now, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	touched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return int(touched), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshRow(row rowScanner) (*RefreshRecord, error) {
	var (
		rec     RefreshRecord
		hashHex string
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.FamilyID, &hashHex, &rec.ExpiresAt, &rec.CreatedAt,
		&rec.IP, &rec.UserAgent, &rec.MFAVerified, &rec.RevokedAt, &rec.ReplacedBy, &rec.ReuseDetectedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hashRaw, err := hex.DecodeString(hashHex)
	if err != nil || len(hashRaw) != len(rec.TokenHash) {
		return nil, fmt.Errorf("%w: corrupt refresh record %s", ErrBackendUnavailable, rec.ID)
	}
	copy(rec.TokenHash[:], hashRaw)

	return &rec, nil
}
