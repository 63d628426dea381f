package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-driveconnect/core"
)

type MutatingService interface {
	BeginLogin(ctx context.Context, req core.BeginLoginRequest) (core.BeginLoginResponse, error)
	CompleteLogin(ctx context.Context, req core.CompleteLoginRequest) (core.CompleteLoginResponse, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.RefreshResult, error)
	Revoke(ctx context.Context, ref core.IdentityRef, reason string) error
	SetDefaultDestination(ctx context.Context, req core.SetDefaultDestinationRequest) (core.Destination, error)
}

type BeginLoginCommand struct {
	service MutatingService
}

func NewBeginLoginCommand(service MutatingService) *BeginLoginCommand {
	return &BeginLoginCommand{service: service}
}

func (c *BeginLoginCommand) Execute(ctx context.Context, msg BeginLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	out, err := c.service.BeginLogin(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteLoginCommand struct {
	service MutatingService
}

func NewCompleteLoginCommand(service MutatingService) *CompleteLoginCommand {
	return &CompleteLoginCommand{service: service}
}

func (c *CompleteLoginCommand) Execute(ctx context.Context, msg CompleteLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteLogin(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.Refresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeCommand struct {
	service MutatingService
}

func NewRevokeCommand(service MutatingService) *RevokeCommand {
	return &RevokeCommand{service: service}
}

func (c *RevokeCommand) Execute(ctx context.Context, msg RevokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke service is required")
	}
	return c.service.Revoke(ctx, msg.Identity, msg.Reason)
}

type SetDefaultDestinationCommand struct {
	service MutatingService
}

func NewSetDefaultDestinationCommand(service MutatingService) *SetDefaultDestinationCommand {
	return &SetDefaultDestinationCommand{service: service}
}

func (c *SetDefaultDestinationCommand) Execute(ctx context.Context, msg SetDefaultDestinationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: destination service is required")
	}
	out, err := c.service.SetDefaultDestination(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
