package driveconnect

import (
	"fmt"

	driveconnectcommand "github.com/goliatone/go-driveconnect/command"
	driveconnectquery "github.com/goliatone/go-driveconnect/query"
)

// CommandQueryService is what the facade wires its handlers against. The
// *core.Service satisfies it; callers can substitute their own implementation
// in tests or when composing a larger service.
type CommandQueryService interface {
	driveconnectcommand.MutatingService
	driveconnectquery.TokenBroker
	driveconnectquery.DestinationReader
}

type Commands struct {
	BeginLogin            *driveconnectcommand.BeginLoginCommand
	CompleteLogin         *driveconnectcommand.CompleteLoginCommand
	Refresh               *driveconnectcommand.RefreshCommand
	Revoke                *driveconnectcommand.RevokeCommand
	SetDefaultDestination *driveconnectcommand.SetDefaultDestinationCommand
}

type Queries struct {
	AccessAndDestination      *driveconnectquery.AccessAndDestinationQuery
	ResolveDefaultDestination *driveconnectquery.ResolveDefaultDestinationQuery
	ListDestinations          *driveconnectquery.ListDestinationsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("driveconnect: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginLogin:            driveconnectcommand.NewBeginLoginCommand(service),
		CompleteLogin:         driveconnectcommand.NewCompleteLoginCommand(service),
		Refresh:               driveconnectcommand.NewRefreshCommand(service),
		Revoke:                driveconnectcommand.NewRevokeCommand(service),
		SetDefaultDestination: driveconnectcommand.NewSetDefaultDestinationCommand(service),
	}
	facade.queries = Queries{
		AccessAndDestination:      driveconnectquery.NewAccessAndDestinationQuery(service),
		ResolveDefaultDestination: driveconnectquery.NewResolveDefaultDestinationQuery(service),
		ListDestinations:          driveconnectquery.NewListDestinationsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
