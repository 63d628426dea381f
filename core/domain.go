package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidIdentity                   = errors.New("core: invalid identity")
	ErrInvalidConnectionStatusTransition = errors.New("core: invalid connection status transition")
	ErrConnectionNotFound                = errors.New("core: connection not found")
	ErrDestinationNotFound               = errors.New("core: destination not found")
)

// IdentityRef addresses one linked identity: an application user inside a
// provider tenant. Both values are caller supplied; this package never
// substitutes a default identity.
type IdentityRef struct {
	UserID   string
	TenantID string
}

func (r IdentityRef) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidIdentity)
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidIdentity)
	}
	return nil
}

type ConnectionStatus string

const (
	ConnectionStatusActive        ConnectionStatus = "active"
	ConnectionStatusPendingReauth ConnectionStatus = "pending_reauth"
	ConnectionStatusRevoked       ConnectionStatus = "revoked"
)

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusActive, ConnectionStatusPendingReauth, ConnectionStatusRevoked:
		return true
	default:
		return false
	}
}

// Connection is one provider link per (user, tenant, subject). Secrets are
// stored only as AEAD blobs; AccessExpiresAt already includes the safety
// margin, so a connection reported fresh is usable for the whole request.
type Connection struct {
	ID                    string
	UserID                string
	TenantID              string
	SubjectID             string
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	AccessExpiresAt       time.Time
	Status                ConnectionStatus
	LastError             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (c Connection) Identity() IdentityRef {
	return IdentityRef{UserID: c.UserID, TenantID: c.TenantID}
}

// Stale reports whether the stored access secret can no longer be handed out.
// Staleness is evaluated lazily; time passage never writes to the store.
func (c Connection) Stale(now time.Time) bool {
	if c.AccessExpiresAt.IsZero() {
		return true
	}
	return !c.AccessExpiresAt.After(now.UTC())
}

func (c *Connection) TransitionTo(status ConnectionStatus, reason string, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			c.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !connectionTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidConnectionStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		c.LastError = strings.TrimSpace(reason)
	}
	if status == ConnectionStatusActive {
		c.LastError = ""
	}
	return nil
}

func connectionTransitionAllowed(current, next ConnectionStatus) bool {
	allowed := map[ConnectionStatus]map[ConnectionStatus]struct{}{
		ConnectionStatusActive: {
			ConnectionStatusPendingReauth: {},
			ConnectionStatusRevoked:       {},
		},
		ConnectionStatusPendingReauth: {
			ConnectionStatusActive:  {},
			ConnectionStatusRevoked: {},
		},
		ConnectionStatusRevoked: {
			ConnectionStatusActive: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// Destination is a saved storage location (drive + folder) a user designated
// inside a tenant. At most one destination per (user, tenant) carries
// IsDefault; the resolver owns that flag.
type Destination struct {
	ID          string
	UserID      string
	TenantID    string
	SiteID      string
	SiteName    string
	DriveID     string
	DriveName   string
	ItemID      string
	DisplayName string
	DisplayPath string
	WebURL      string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d Destination) Validate() error {
	if err := (IdentityRef{UserID: d.UserID, TenantID: d.TenantID}).Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.DriveID) == "" {
		return fmt.Errorf("core: destination drive id is required")
	}
	if strings.TrimSpace(d.ItemID) == "" {
		return fmt.Errorf("core: destination item id is required")
	}
	if strings.TrimSpace(d.DisplayName) == "" {
		return fmt.Errorf("core: destination display name is required")
	}
	return nil
}
