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

// DestinationStore keeps saved storage locations in the drive_destinations
// table. The unique index on (user_id, tenant_id, drive_id, item_id) makes
// re-saving the same folder an update instead of a second row.
type DestinationStore struct {
	db   *bun.DB
	repo repository.Repository[*destinationRecord]
}

func (s *DestinationStore) Upsert(ctx context.Context, dest core.Destination) (core.Destination, error) {
	if s == nil || s.db == nil {
		return core.Destination{}, fmt.Errorf("sqlstore: destination store is not configured")
	}
	if err := dest.Validate(); err != nil {
		return core.Destination{}, err
	}
	dest.UserID = strings.TrimSpace(dest.UserID)
	dest.TenantID = strings.TrimSpace(dest.TenantID)
	dest.DriveID = strings.TrimSpace(dest.DriveID)
	dest.ItemID = strings.TrimSpace(dest.ItemID)

	var stored core.Destination
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		existing := &destinationRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.user_id = ?", dest.UserID).
			Where("?TableAlias.tenant_id = ?", dest.TenantID).
			Where("?TableAlias.drive_id = ?", dest.DriveID).
			Where("?TableAlias.item_id = ?", dest.ItemID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err == nil && strings.TrimSpace(existing.ID) != "" {
			updated, updateErr := s.replaceRow(ctx, tx, existing, dest, now)
			if updateErr != nil {
				return updateErr
			}
			stored = updated
			return nil
		}

		record := newDestinationRecord(dest, now)
		record.ID = uuid.NewString()
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			raced := &destinationRecord{}
			if selectErr := tx.NewSelect().
				Model(raced).
				Where("?TableAlias.user_id = ?", dest.UserID).
				Where("?TableAlias.tenant_id = ?", dest.TenantID).
				Where("?TableAlias.drive_id = ?", dest.DriveID).
				Where("?TableAlias.item_id = ?", dest.ItemID).
				Limit(1).
				Scan(ctx); selectErr != nil {
				return selectErr
			}
			updated, updateErr := s.replaceRow(ctx, tx, raced, dest, now)
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
		return core.Destination{}, err
	}
	return stored, nil
}

func (s *DestinationStore) replaceRow(
	ctx context.Context,
	tx bun.Tx,
	existing *destinationRecord,
	dest core.Destination,
	now time.Time,
) (core.Destination, error) {
	existing.SiteID = dest.SiteID
	existing.SiteName = dest.SiteName
	existing.DriveName = dest.DriveName
	existing.DisplayName = dest.DisplayName
	existing.DisplayPath = dest.DisplayPath
	existing.WebURL = dest.WebURL
	existing.IsDefault = dest.IsDefault
	existing.UpdatedAt = now

	if _, err := tx.NewUpdate().
		Model(existing).
		Where("id = ?", existing.ID).
		Exec(ctx); err != nil {
		return core.Destination{}, err
	}
	return existing.toDomain(), nil
}

func (s *DestinationStore) ClearDefaults(ctx context.Context, ref core.IdentityRef) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: destination store is not configured")
	}
	if err := ref.Validate(); err != nil {
		return err
	}

	_, err := s.db.NewUpdate().
		Model((*destinationRecord)(nil)).
		Set("is_default = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", strings.TrimSpace(ref.UserID)).
		Where("tenant_id = ?", strings.TrimSpace(ref.TenantID)).
		Where("is_default = ?", true).
		Exec(ctx)
	return err
}

func (s *DestinationStore) FindDefault(ctx context.Context, ref core.IdentityRef) (core.Destination, error) {
	return s.findOne(ctx, ref, true)
}

func (s *DestinationStore) FindNewest(ctx context.Context, ref core.IdentityRef) (core.Destination, error) {
	return s.findOne(ctx, ref, false)
}

func (s *DestinationStore) findOne(ctx context.Context, ref core.IdentityRef, onlyDefault bool) (core.Destination, error) {
	if s == nil || s.db == nil {
		return core.Destination{}, fmt.Errorf("sqlstore: destination store is not configured")
	}
	if err := ref.Validate(); err != nil {
		return core.Destination{}, err
	}

	record := &destinationRecord{}
	query := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(ref.UserID)).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(ref.TenantID))
	if onlyDefault {
		query = query.Where("?TableAlias.is_default = ?", true)
	}
	err := query.
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Destination{}, fmt.Errorf("%w: user %q tenant %q", core.ErrDestinationNotFound, ref.UserID, ref.TenantID)
		}
		return core.Destination{}, err
	}
	return record.toDomain(), nil
}

func (s *DestinationStore) List(ctx context.Context, ref core.IdentityRef) ([]core.Destination, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: destination store is not configured")
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var records []*destinationRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(ref.UserID)).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(ref.TenantID)).
		OrderExpr("?TableAlias.updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Destination, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
