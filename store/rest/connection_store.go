package rest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-driveconnect/core"
)

const connectionConflictColumns = "user_id,tenant_id,subject_id"

// ConnectionStore keeps provider links in a PostgREST table. The merge
// resolution on the identity key makes Upsert a full-row replace for an
// existing link and an insert otherwise, with no read-modify-write window.
type ConnectionStore struct {
	client *rowClient
	table  string
	now    func() time.Time
}

func NewConnectionStore(cfg core.StoreConfig, httpClient HTTPDoer) (*ConnectionStore, error) {
	client, err := newRowClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	table := strings.TrimSpace(cfg.ConnectionsTable)
	if table == "" {
		table = "drive_connections"
	}
	return &ConnectionStore{
		client: client,
		table:  table,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

type connectionRow struct {
	ID                    string     `json:"id,omitempty"`
	UserID                string     `json:"user_id"`
	TenantID              string     `json:"tenant_id"`
	SubjectID             string     `json:"subject_id"`
	EncryptedAccessToken  string     `json:"access_token_enc"`
	EncryptedRefreshToken string     `json:"refresh_token_enc"`
	AccessExpiresAt       time.Time  `json:"access_expires_at"`
	Status                string     `json:"status"`
	LastError             string     `json:"last_error"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

func (r connectionRow) toDomain() core.Connection {
	conn := core.Connection{
		ID:                    r.ID,
		UserID:                r.UserID,
		TenantID:              r.TenantID,
		SubjectID:             r.SubjectID,
		EncryptedAccessToken:  r.EncryptedAccessToken,
		EncryptedRefreshToken: r.EncryptedRefreshToken,
		AccessExpiresAt:       r.AccessExpiresAt,
		Status:                core.ConnectionStatus(r.Status),
		LastError:             r.LastError,
	}
	if r.CreatedAt != nil {
		conn.CreatedAt = r.CreatedAt.UTC()
	}
	if r.UpdatedAt != nil {
		conn.UpdatedAt = r.UpdatedAt.UTC()
	}
	return conn
}

func (s *ConnectionStore) Upsert(ctx context.Context, conn core.Connection) (core.Connection, error) {
	if s == nil || s.client == nil {
		return core.Connection{}, storeError(fmt.Errorf("rest: connection store is not configured"))
	}

	now := s.now()
	row := connectionRow{
		ID:                    strings.TrimSpace(conn.ID),
		UserID:                strings.TrimSpace(conn.UserID),
		TenantID:              strings.TrimSpace(conn.TenantID),
		SubjectID:             strings.TrimSpace(conn.SubjectID),
		EncryptedAccessToken:  conn.EncryptedAccessToken,
		EncryptedRefreshToken: conn.EncryptedRefreshToken,
		AccessExpiresAt:       conn.AccessExpiresAt.UTC(),
		Status:                string(conn.Status),
		LastError:             conn.LastError,
		UpdatedAt:             &now,
	}
	if row.UserID == "" || row.TenantID == "" || row.SubjectID == "" {
		return core.Connection{}, storeError(fmt.Errorf("rest: connection identity key is required"))
	}
	if row.Status == "" {
		row.Status = string(core.ConnectionStatusActive)
	}

	var returned []connectionRow
	if err := s.client.upsertRow(ctx, s.table, connectionConflictColumns, row, &returned); err != nil {
		return core.Connection{}, err
	}
	if len(returned) == 0 {
		return core.Connection{}, storeError(fmt.Errorf("rest: connection upsert returned no representation"))
	}
	return returned[0].toDomain(), nil
}

func (s *ConnectionStore) FindByIdentity(ctx context.Context, ref core.IdentityRef) (core.Connection, error) {
	if s == nil || s.client == nil {
		return core.Connection{}, storeError(fmt.Errorf("rest: connection store is not configured"))
	}
	if err := ref.Validate(); err != nil {
		return core.Connection{}, err
	}

	query := url.Values{}
	query.Set("user_id", eq(ref.UserID))
	query.Set("tenant_id", eq(ref.TenantID))
	query.Set("order", "updated_at.desc")
	query.Set("limit", strconv.Itoa(1))

	var rows []connectionRow
	if err := s.client.selectRows(ctx, s.table, query, &rows); err != nil {
		return core.Connection{}, err
	}
	if len(rows) == 0 {
		return core.Connection{}, core.ErrConnectionNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *ConnectionStore) UpdateStatus(ctx context.Context, id string, status core.ConnectionStatus, reason string) error {
	if s == nil || s.client == nil {
		return storeError(fmt.Errorf("rest: connection store is not configured"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storeError(fmt.Errorf("rest: connection id is required"))
	}
	if !status.Valid() {
		return fmt.Errorf("rest: invalid connection status %q", status)
	}

	query := url.Values{}
	query.Set("id", eq(id))
	query.Set("limit", strconv.Itoa(1))

	var rows []connectionRow
	if err := s.client.selectRows(ctx, s.table, query, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return core.ErrConnectionNotFound
	}
	conn := rows[0].toDomain()
	if err := conn.TransitionTo(status, reason, s.now()); err != nil {
		return err
	}

	patch := url.Values{}
	patch.Set("id", eq(id))
	payload := map[string]any{
		"status":     string(conn.Status),
		"last_error": conn.LastError,
		"updated_at": conn.UpdatedAt,
	}
	return s.client.patchRows(ctx, s.table, patch, payload)
}

var _ core.ConnectionStore = (*ConnectionStore)(nil)
