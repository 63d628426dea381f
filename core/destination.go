package core

import (
	"context"
	"errors"
	"fmt"
)

// SetDefaultDestination demotes every existing default for the identity, then
// writes the new record with is_default set. The demotion is best effort: a
// failed demote is logged and the promote still runs, so the worst outcome is
// a short-lived second default that the next successful call cleans up.
func (s *Service) SetDefaultDestination(ctx context.Context, req SetDefaultDestinationRequest) (Destination, error) {
	if s == nil {
		return Destination{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	dest := req.Destination
	fields := map[string]any{"user_id": dest.UserID, "tenant_id": dest.TenantID, "drive_id": dest.DriveID}

	stored, err := s.setDefaultDestination(ctx, dest)
	s.observeOperation(ctx, startedAt, "set_default_destination", err, fields)
	return stored, err
}

func (s *Service) setDefaultDestination(ctx context.Context, dest Destination) (Destination, error) {
	if err := dest.Validate(); err != nil {
		return Destination{}, s.mapError(err)
	}
	if s.destinationStore == nil {
		return Destination{}, s.mapError(fmt.Errorf("core: destination store is not configured"))
	}

	ref := IdentityRef{UserID: dest.UserID, TenantID: dest.TenantID}
	if err := s.destinationStore.ClearDefaults(ctx, ref); err != nil {
		s.logWarn(ctx, "demote existing defaults failed", map[string]any{
			"user_id":   ref.UserID,
			"tenant_id": ref.TenantID,
			"error":     err.Error(),
		})
	}

	dest.IsDefault = true
	stored, err := s.destinationStore.Upsert(ctx, dest)
	if err != nil {
		return Destination{}, s.mapError(err)
	}
	return stored, nil
}

// ResolveDefaultDestination returns the destination uploads should land in:
// the explicit default when one exists, otherwise the most recently updated
// record. No saved destinations at all is an error, never a silent fallback.
func (s *Service) ResolveDefaultDestination(ctx context.Context, ref IdentityRef) (Destination, error) {
	if s == nil {
		return Destination{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	fields := map[string]any{"user_id": ref.UserID, "tenant_id": ref.TenantID}

	dest, err := s.resolveDefaultDestination(ctx, ref)
	s.observeOperation(ctx, startedAt, "resolve_default_destination", err, fields)
	return dest, err
}

func (s *Service) resolveDefaultDestination(ctx context.Context, ref IdentityRef) (Destination, error) {
	if err := ref.Validate(); err != nil {
		return Destination{}, s.mapError(err)
	}
	if s.destinationStore == nil {
		return Destination{}, s.mapError(fmt.Errorf("core: destination store is not configured"))
	}

	dest, err := s.destinationStore.FindDefault(ctx, ref)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, ErrDestinationNotFound) {
		return Destination{}, s.mapError(err)
	}

	dest, err = s.destinationStore.FindNewest(ctx, ref)
	if err != nil {
		return Destination{}, s.mapError(err)
	}
	return dest, nil
}

// ListDestinations returns every saved destination for the identity, newest
// first.
func (s *Service) ListDestinations(ctx context.Context, ref IdentityRef) ([]Destination, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	fields := map[string]any{"user_id": ref.UserID, "tenant_id": ref.TenantID}

	destinations, err := s.listDestinations(ctx, ref)
	s.observeOperation(ctx, startedAt, "list_destinations", err, fields)
	return destinations, err
}

func (s *Service) listDestinations(ctx context.Context, ref IdentityRef) ([]Destination, error) {
	if err := ref.Validate(); err != nil {
		return nil, s.mapError(err)
	}
	if s.destinationStore == nil {
		return nil, s.mapError(fmt.Errorf("core: destination store is not configured"))
	}
	destinations, err := s.destinationStore.List(ctx, ref)
	if err != nil {
		return nil, s.mapError(err)
	}
	return destinations, nil
}
