package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Refresh runs the stale-to-fresh transition for one identity: decrypt the
// stored refresh secret, exchange it, and persist the full record replace.
// An authoritative provider rejection moves the connection to pending_reauth
// and surfaces as CONNECT_REFRESH_FAILED; a timeout surfaces as
// CONNECT_TRANSIENT and leaves the record untouched.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (RefreshResult, error) {
	if s == nil {
		return RefreshResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	fields := map[string]any{"user_id": req.Identity.UserID, "tenant_id": req.Identity.TenantID}

	result, err := s.refresh(ctx, req.Identity)
	s.observeOperation(ctx, startedAt, "refresh", err, fields)
	return result, err
}

func (s *Service) refresh(ctx context.Context, ref IdentityRef) (RefreshResult, error) {
	if err := ref.Validate(); err != nil {
		return RefreshResult{}, s.mapError(err)
	}
	if s.connectionStore == nil {
		return RefreshResult{}, s.mapError(fmt.Errorf("core: connection store is not configured"))
	}
	conn, err := s.connectionStore.FindByIdentity(ctx, ref)
	if err != nil {
		return RefreshResult{}, s.mapError(err)
	}
	return s.refreshConnection(ctx, conn)
}

func (s *Service) refreshConnection(ctx context.Context, conn Connection) (RefreshResult, error) {
	if s.identityClient == nil {
		return RefreshResult{}, s.mapError(fmt.Errorf("core: identity client is not configured"))
	}
	if s.tokenCipher == nil {
		return RefreshResult{}, s.mapError(fmt.Errorf("core: token cipher is not configured"))
	}

	refreshToken, err := s.decryptSecret(ctx, conn.EncryptedRefreshToken)
	if err != nil {
		return RefreshResult{}, err
	}

	grant, err := s.identityClient.Refresh(ctx, refreshToken)
	if err != nil {
		if IsRefreshFailure(err) {
			// Best effort: the caller still sees the refresh failure even if
			// the status write is lost.
			if conn.Status == ConnectionStatusActive {
				_ = s.connectionStore.UpdateStatus(ctx, conn.ID, ConnectionStatusPendingReauth, err.Error())
			}
		}
		return RefreshResult{}, s.mapError(err)
	}

	rotated := strings.TrimSpace(grant.RefreshToken) != ""
	stored, err := s.persistGrant(ctx, conn, grant)
	if err != nil {
		return RefreshResult{}, err
	}

	return RefreshResult{
		Connection:  stored,
		AccessToken: grant.AccessToken,
		Rotated:     rotated,
	}, nil
}

// decryptSecret unwraps a stored blob. An AEAD failure means the record was
// written under a different key or tampered with; that is surfaced as
// CONNECT_CREDENTIAL_CORRUPTED and never silently ignored.
func (s *Service) decryptSecret(ctx context.Context, blob string) (string, error) {
	if strings.TrimSpace(blob) == "" {
		return "", s.mapError(
			s.errorFactory("core: connection record has no stored secret", goerrors.CategoryAuth).
				WithCode(http.StatusUnauthorized).
				WithTextCode(ConnectErrorCredentialCorrupted),
		)
	}
	plaintext, err := s.tokenCipher.Decrypt(ctx, blob)
	if err != nil {
		return "", s.mapError(
			goerrors.Wrap(err, goerrors.CategoryAuth, "core: stored secret failed authenticated decryption").
				WithCode(http.StatusUnauthorized).
				WithTextCode(ConnectErrorCredentialCorrupted),
		)
	}
	return string(plaintext), nil
}

// freshAccessToken returns a currently valid plaintext access secret for the
// connection, refreshing first when the stored expiry has passed. The
// refreshed flag reports whether a provider round trip happened.
func (s *Service) freshAccessToken(ctx context.Context, conn Connection) (Connection, string, bool, error) {
	if !conn.Stale(s.now()) {
		accessToken, err := s.decryptSecret(ctx, conn.EncryptedAccessToken)
		if err != nil {
			return Connection{}, "", false, err
		}
		return conn, accessToken, false, nil
	}

	result, err := s.refreshConnection(ctx, conn)
	if err != nil {
		return Connection{}, "", false, err
	}
	return result.Connection, result.AccessToken, true, nil
}
