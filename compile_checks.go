package driveconnect

import "github.com/goliatone/go-driveconnect/core"

var _ CommandQueryService = (*core.Service)(nil)
