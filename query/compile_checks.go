package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-driveconnect/core"
)

var (
	_ gocmd.Querier[AccessAndDestinationMessage, core.AccessGrant]      = (*AccessAndDestinationQuery)(nil)
	_ gocmd.Querier[ResolveDefaultDestinationMessage, core.Destination] = (*ResolveDefaultDestinationQuery)(nil)
	_ gocmd.Querier[ListDestinationsMessage, []core.Destination]        = (*ListDestinationsQuery)(nil)
)
