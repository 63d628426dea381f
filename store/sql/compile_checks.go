package sqlstore

import "github.com/goliatone/go-driveconnect/core"

var (
	_ core.ConnectionStore        = (*ConnectionStore)(nil)
	_ core.DestinationStore       = (*DestinationStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
