// Package sqlstore persists connections and destinations in a relational
// database through bun, for deployments that own their schema instead of
// renting a row API.
package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-driveconnect/core"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:drive_connections,alias:dc"`

	ID                    string    `bun:"id,pk"`
	UserID                string    `bun:"user_id,notnull"`
	TenantID              string    `bun:"tenant_id,notnull"`
	SubjectID             string    `bun:"subject_id,notnull"`
	EncryptedAccessToken  string    `bun:"access_token_enc,notnull"`
	EncryptedRefreshToken string    `bun:"refresh_token_enc,notnull"`
	AccessExpiresAt       time.Time `bun:"access_expires_at,nullzero"`
	Status                string    `bun:"status,notnull"`
	LastError             string    `bun:"last_error"`
	CreatedAt             time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *connectionRecord) toDomain() core.Connection {
	if r == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:                    r.ID,
		UserID:                r.UserID,
		TenantID:              r.TenantID,
		SubjectID:             r.SubjectID,
		EncryptedAccessToken:  r.EncryptedAccessToken,
		EncryptedRefreshToken: r.EncryptedRefreshToken,
		AccessExpiresAt:       r.AccessExpiresAt.UTC(),
		Status:                core.ConnectionStatus(r.Status),
		LastError:             r.LastError,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func newConnectionRecord(conn core.Connection, now time.Time) *connectionRecord {
	return &connectionRecord{
		ID:                    conn.ID,
		UserID:                conn.UserID,
		TenantID:              conn.TenantID,
		SubjectID:             conn.SubjectID,
		EncryptedAccessToken:  conn.EncryptedAccessToken,
		EncryptedRefreshToken: conn.EncryptedRefreshToken,
		AccessExpiresAt:       conn.AccessExpiresAt.UTC(),
		Status:                string(conn.Status),
		LastError:             conn.LastError,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

type destinationRecord struct {
	bun.BaseModel `bun:"table:drive_destinations,alias:dd"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull"`
	TenantID    string    `bun:"tenant_id,notnull"`
	SiteID      string    `bun:"site_id"`
	SiteName    string    `bun:"site_name"`
	DriveID     string    `bun:"drive_id,notnull"`
	DriveName   string    `bun:"drive_name"`
	ItemID      string    `bun:"item_id,notnull"`
	DisplayName string    `bun:"display_name,notnull"`
	DisplayPath string    `bun:"display_path"`
	WebURL      string    `bun:"web_url"`
	IsDefault   bool      `bun:"is_default,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *destinationRecord) toDomain() core.Destination {
	if r == nil {
		return core.Destination{}
	}
	return core.Destination{
		ID:          r.ID,
		UserID:      r.UserID,
		TenantID:    r.TenantID,
		SiteID:      r.SiteID,
		SiteName:    r.SiteName,
		DriveID:     r.DriveID,
		DriveName:   r.DriveName,
		ItemID:      r.ItemID,
		DisplayName: r.DisplayName,
		DisplayPath: r.DisplayPath,
		WebURL:      r.WebURL,
		IsDefault:   r.IsDefault,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newDestinationRecord(dest core.Destination, now time.Time) *destinationRecord {
	return &destinationRecord{
		ID:          dest.ID,
		UserID:      dest.UserID,
		TenantID:    dest.TenantID,
		SiteID:      dest.SiteID,
		SiteName:    dest.SiteName,
		DriveID:     dest.DriveID,
		DriveName:   dest.DriveName,
		ItemID:      dest.ItemID,
		DisplayName: dest.DisplayName,
		DisplayPath: dest.DisplayPath,
		WebURL:      dest.WebURL,
		IsDefault:   dest.IsDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
