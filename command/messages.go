package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-driveconnect/core"
)

const (
	TypeBeginLogin            = "driveconnect.command.login.begin"
	TypeCompleteLogin         = "driveconnect.command.login.complete"
	TypeRefresh               = "driveconnect.command.refresh"
	TypeRevoke                = "driveconnect.command.revoke"
	TypeSetDefaultDestination = "driveconnect.command.destination.set_default"
)

type BeginLoginMessage struct {
	Request core.BeginLoginRequest
}

func (BeginLoginMessage) Type() string { return TypeBeginLogin }

func (m BeginLoginMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	return nil
}

type CompleteLoginMessage struct {
	Request core.CompleteLoginRequest
}

func (CompleteLoginMessage) Type() string { return TypeCompleteLogin }

func (m CompleteLoginMessage) Validate() error {
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: state is required")
	}
	return nil
}

type RefreshMessage struct {
	Request core.RefreshRequest
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	return validateIdentity(m.Request.Identity)
}

type RevokeMessage struct {
	Identity core.IdentityRef
	Reason   string
}

func (RevokeMessage) Type() string { return TypeRevoke }

func (m RevokeMessage) Validate() error {
	return validateIdentity(m.Identity)
}

type SetDefaultDestinationMessage struct {
	Request core.SetDefaultDestinationRequest
}

func (SetDefaultDestinationMessage) Type() string { return TypeSetDefaultDestination }

func (m SetDefaultDestinationMessage) Validate() error {
	dest := m.Request.Destination
	if strings.TrimSpace(dest.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(dest.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	if strings.TrimSpace(dest.DriveID) == "" {
		return fmt.Errorf("command: drive id is required")
	}
	if strings.TrimSpace(dest.ItemID) == "" {
		return fmt.Errorf("command: item id is required")
	}
	return nil
}

func validateIdentity(ref core.IdentityRef) error {
	if strings.TrimSpace(ref.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(ref.TenantID) == "" {
		return fmt.Errorf("command: tenant id is required")
	}
	return nil
}
