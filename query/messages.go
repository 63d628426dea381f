package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-driveconnect/core"
)

const (
	TypeAccessAndDestination      = "driveconnect.query.access_and_destination"
	TypeResolveDefaultDestination = "driveconnect.query.destination.resolve_default"
	TypeListDestinations          = "driveconnect.query.destination.list"
)

type AccessAndDestinationMessage struct {
	Identity core.IdentityRef
}

func (AccessAndDestinationMessage) Type() string { return TypeAccessAndDestination }

func (m AccessAndDestinationMessage) Validate() error {
	return validateIdentity(m.Identity)
}

type ResolveDefaultDestinationMessage struct {
	Identity core.IdentityRef
}

func (ResolveDefaultDestinationMessage) Type() string { return TypeResolveDefaultDestination }

func (m ResolveDefaultDestinationMessage) Validate() error {
	return validateIdentity(m.Identity)
}

type ListDestinationsMessage struct {
	Identity core.IdentityRef
}

func (ListDestinationsMessage) Type() string { return TypeListDestinations }

func (m ListDestinationsMessage) Validate() error {
	return validateIdentity(m.Identity)
}

func validateIdentity(ref core.IdentityRef) error {
	if strings.TrimSpace(ref.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	if strings.TrimSpace(ref.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	return nil
}
