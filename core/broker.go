package core

import (
	"context"
	"fmt"
)

// AccessAndDestination is the single call upload-style flows depend on: it
// loads the connection for the identity, refreshes it when stale, and resolves
// the default destination. The connection is validated before the destination
// lookup, so a broken credential is reported ahead of a missing destination.
func (s *Service) AccessAndDestination(ctx context.Context, ref IdentityRef) (AccessGrant, error) {
	if s == nil {
		return AccessGrant{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	fields := map[string]any{"user_id": ref.UserID, "tenant_id": ref.TenantID}

	grant, err := s.accessAndDestination(ctx, ref)
	if err == nil {
		fields["refreshed"] = grant.Refreshed
	}
	s.observeOperation(ctx, startedAt, "access_and_destination", err, fields)
	return grant, err
}

func (s *Service) accessAndDestination(ctx context.Context, ref IdentityRef) (AccessGrant, error) {
	if err := ref.Validate(); err != nil {
		return AccessGrant{}, s.mapError(err)
	}
	if s.connectionStore == nil {
		return AccessGrant{}, s.mapError(fmt.Errorf("core: connection store is not configured"))
	}

	conn, err := s.connectionStore.FindByIdentity(ctx, ref)
	if err != nil {
		return AccessGrant{}, s.mapError(err)
	}

	conn, accessToken, refreshed, err := s.freshAccessToken(ctx, conn)
	if err != nil {
		return AccessGrant{}, err
	}

	destination, err := s.resolveDefaultDestination(ctx, ref)
	if err != nil {
		return AccessGrant{}, err
	}

	return AccessGrant{
		AccessToken: accessToken,
		ExpiresAt:   conn.AccessExpiresAt,
		Destination: destination,
		Refreshed:   refreshed,
	}, nil
}
