package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginLoginMessage]            = (*BeginLoginCommand)(nil)
	_ gocmd.Commander[CompleteLoginMessage]         = (*CompleteLoginCommand)(nil)
	_ gocmd.Commander[RefreshMessage]               = (*RefreshCommand)(nil)
	_ gocmd.Commander[RevokeMessage]                = (*RevokeCommand)(nil)
	_ gocmd.Commander[SetDefaultDestinationMessage] = (*SetDefaultDestinationCommand)(nil)
)
