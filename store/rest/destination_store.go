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

const destinationConflictColumns = "user_id,tenant_id,drive_id,item_id"

// DestinationStore keeps saved storage locations in a PostgREST table.
// Default promotion is two writes: a PATCH demoting the identity's current
// defaults, then the merge upsert of the promoted row.
type DestinationStore struct {
	client *rowClient
	table  string
	now    func() time.Time
}

func NewDestinationStore(cfg core.StoreConfig, httpClient HTTPDoer) (*DestinationStore, error) {
	client, err := newRowClient(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	table := strings.TrimSpace(cfg.DestinationsTable)
	if table == "" {
		table = "drive_destinations"
	}
	return &DestinationStore{
		client: client,
		table:  table,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

type destinationRow struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id"`
	TenantID    string     `json:"tenant_id"`
	SiteID      string     `json:"site_id"`
	SiteName    string     `json:"site_name"`
	DriveID     string     `json:"drive_id"`
	DriveName   string     `json:"drive_name"`
	ItemID      string     `json:"item_id"`
	DisplayName string     `json:"display_name"`
	DisplayPath string     `json:"display_path"`
	WebURL      string     `json:"web_url"`
	IsDefault   bool       `json:"is_default"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func (r destinationRow) toDomain() core.Destination {
	dest := core.Destination{
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
	}
	if r.CreatedAt != nil {
		dest.CreatedAt = r.CreatedAt.UTC()
	}
	if r.UpdatedAt != nil {
		dest.UpdatedAt = r.UpdatedAt.UTC()
	}
	return dest
}

func (s *DestinationStore) Upsert(ctx context.Context, dest core.Destination) (core.Destination, error) {
	if s == nil || s.client == nil {
		return core.Destination{}, storeError(fmt.Errorf("rest: destination store is not configured"))
	}
	if err := dest.Validate(); err != nil {
		return core.Destination{}, err
	}

	now := s.now()
	row := destinationRow{
		ID:          strings.TrimSpace(dest.ID),
		UserID:      strings.TrimSpace(dest.UserID),
		TenantID:    strings.TrimSpace(dest.TenantID),
		SiteID:      strings.TrimSpace(dest.SiteID),
		SiteName:    strings.TrimSpace(dest.SiteName),
		DriveID:     strings.TrimSpace(dest.DriveID),
		DriveName:   strings.TrimSpace(dest.DriveName),
		ItemID:      strings.TrimSpace(dest.ItemID),
		DisplayName: strings.TrimSpace(dest.DisplayName),
		DisplayPath: strings.TrimSpace(dest.DisplayPath),
		WebURL:      strings.TrimSpace(dest.WebURL),
		IsDefault:   dest.IsDefault,
		UpdatedAt:   &now,
	}

	var returned []destinationRow
	if err := s.client.upsertRow(ctx, s.table, destinationConflictColumns, row, &returned); err != nil {
		return core.Destination{}, err
	}
	if len(returned) == 0 {
		return core.Destination{}, storeError(fmt.Errorf("rest: destination upsert returned no representation"))
	}
	return returned[0].toDomain(), nil
}

func (s *DestinationStore) ClearDefaults(ctx context.Context, ref core.IdentityRef) error {
	if s == nil || s.client == nil {
		return storeError(fmt.Errorf("rest: destination store is not configured"))
	}
	if err := ref.Validate(); err != nil {
		return err
	}

	query := url.Values{}
	query.Set("user_id", eq(ref.UserID))
	query.Set("tenant_id", eq(ref.TenantID))
	query.Set("is_default", eq("true"))

	now := s.now()
	payload := map[string]any{
		"is_default": false,
		"updated_at": now,
	}
	return s.client.patchRows(ctx, s.table, query, payload)
}

func (s *DestinationStore) FindDefault(ctx context.Context, ref core.IdentityRef) (core.Destination, error) {
	return s.findOne(ctx, ref, true)
}

func (s *DestinationStore) FindNewest(ctx context.Context, ref core.IdentityRef) (core.Destination, error) {
	return s.findOne(ctx, ref, false)
}

func (s *DestinationStore) findOne(ctx context.Context, ref core.IdentityRef, onlyDefault bool) (core.Destination, error) {
	if s == nil || s.client == nil {
		return core.Destination{}, storeError(fmt.Errorf("rest: destination store is not configured"))
	}
	if err := ref.Validate(); err != nil {
		return core.Destination{}, err
	}

	query := url.Values{}
	query.Set("user_id", eq(ref.UserID))
	query.Set("tenant_id", eq(ref.TenantID))
	if onlyDefault {
		query.Set("is_default", eq("true"))
	}
	query.Set("order", "updated_at.desc")
	query.Set("limit", strconv.Itoa(1))

	var rows []destinationRow
	if err := s.client.selectRows(ctx, s.table, query, &rows); err != nil {
		return core.Destination{}, err
	}
	if len(rows) == 0 {
		return core.Destination{}, core.ErrDestinationNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *DestinationStore) List(ctx context.Context, ref core.IdentityRef) ([]core.Destination, error) {
	if s == nil || s.client == nil {
		return nil, storeError(fmt.Errorf("rest: destination store is not configured"))
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("user_id", eq(ref.UserID))
	query.Set("tenant_id", eq(ref.TenantID))
	query.Set("order", "updated_at.desc")

	var rows []destinationRow
	if err := s.client.selectRows(ctx, s.table, query, &rows); err != nil {
		return nil, err
	}
	destinations := make([]core.Destination, 0, len(rows))
	for _, row := range rows {
		destinations = append(destinations, row.toDomain())
	}
	return destinations, nil
}

var _ core.DestinationStore = (*DestinationStore)(nil)
