package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-driveconnect/core"
)

// ConnectionStore keeps provider links in the drive_connections table. Upsert
// runs a select-then-write inside a transaction; the unique index on
// (user_id, tenant_id, subject_id) backstops the race where two logins for
// the same identity land at once.
type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func (s *ConnectionStore) Upsert(ctx context.Context, conn core.Connection) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	conn.UserID = strings.TrimSpace(conn.UserID)
	conn.TenantID = strings.TrimSpace(conn.TenantID)
	conn.SubjectID = strings.TrimSpace(conn.SubjectID)
	if conn.UserID == "" || conn.TenantID == "" || conn.SubjectID == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: connection identity key is required")
	}
	if strings.TrimSpace(string(conn.Status)) == "" {
		conn.Status = core.ConnectionStatusActive
	}
	if !conn.Status.Valid() {
		return core.Connection{}, fmt.Errorf("sqlstore: invalid connection status %q", conn.Status)
	}

	var stored core.Connection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		existing := &connectionRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.user_id = ?", conn.UserID).
			Where("?TableAlias.tenant_id = ?", conn.TenantID).
			Where("?TableAlias.subject_id = ?", conn.SubjectID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err == nil && strings.TrimSpace(existing.ID) != "" {
			updated, updateErr := s.replaceRow(ctx, tx, existing, conn, now)
			if updateErr != nil {
				return updateErr
			}
			stored = updated
			return nil
		}

		record := newConnectionRecord(conn, now)
		record.ID = uuid.NewString()
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			// Lost the insert race; the row exists now, replace it.
			raced := &connectionRecord{}
			if selectErr := tx.NewSelect().
				Model(raced).
				Where("?TableAlias.user_id = ?", conn.UserID).
				Where("?TableAlias.tenant_id = ?", conn.TenantID).
				Where("?TableAlias.subject_id = ?", conn.SubjectID).
				Limit(1).
				Scan(ctx); selectErr != nil {
				return selectErr
			}
			updated, updateErr := s.replaceRow(ctx, tx, raced, conn, now)
			if updateErr != nil {
				return updateErr
			}
			stored = updated
			return nil
		}
		stored = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Connection{}, err
	}
	return stored, nil
}

// replaceRow writes the full secret+expiry replace onto an existing record.
func (s *ConnectionStore) replaceRow(
	ctx context.Context,
	tx bun.Tx,
	existing *connectionRecord,
	conn core.Connection,
	now time.Time,
) (core.Connection, error) {
	existing.EncryptedAccessToken = conn.EncryptedAccessToken
	existing.EncryptedRefreshToken = conn.EncryptedRefreshToken
	existing.AccessExpiresAt = conn.AccessExpiresAt.UTC()
	existing.Status = string(conn.Status)
	existing.LastError = conn.LastError
	existing.UpdatedAt = now

	if _, err := tx.NewUpdate().
		Model(existing).
		Where("id = ?", existing.ID).
		Exec(ctx); err != nil {
		return core.Connection{}, err
	}
	return existing.toDomain(), nil
}

func (s *ConnectionStore) FindByIdentity(ctx context.Context, ref core.IdentityRef) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	if err := ref.Validate(); err != nil {
		return core.Connection{}, err
	}

	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(ref.UserID)).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(ref.TenantID)).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Connection{}, fmt.Errorf("%w: user %q tenant %q", core.ErrConnectionNotFound, ref.UserID, ref.TenantID)
		}
		return core.Connection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) UpdateStatus(ctx context.Context, id string, status core.ConnectionStatus, reason string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: connection id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("sqlstore: invalid connection status %q", status)
	}

	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}
	conn := current.toDomain()
	if err := conn.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return err
	}
	current.Status = string(conn.Status)
	current.LastError = conn.LastError
	current.UpdatedAt = conn.UpdatedAt

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
