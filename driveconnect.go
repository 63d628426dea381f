package driveconnect

import "github.com/goliatone/go-driveconnect/core"

type Config = core.Config

type ProviderConfig = core.ProviderConfig
type CryptoConfig = core.CryptoConfig
type StoreConfig = core.StoreConfig

type Option = core.Option

type Service = core.Service

type IdentityRef = core.IdentityRef
type Connection = core.Connection
type ConnectionStatus = core.ConnectionStatus
type Destination = core.Destination

type TokenCipher = core.TokenCipher
type IdentityClient = core.IdentityClient
type ConnectionStore = core.ConnectionStore
type DestinationStore = core.DestinationStore
type OAuthStateStore = core.OAuthStateStore
type StoreProvider = core.StoreProvider

type BeginLoginRequest = core.BeginLoginRequest
type BeginLoginResponse = core.BeginLoginResponse
type CompleteLoginRequest = core.CompleteLoginRequest
type CompleteLoginResponse = core.CompleteLoginResponse
type RefreshRequest = core.RefreshRequest
type RefreshResult = core.RefreshResult
type AccessGrant = core.AccessGrant
type SetDefaultDestinationRequest = core.SetDefaultDestinationRequest

const (
	ConnectionStatusActive        = core.ConnectionStatusActive
	ConnectionStatusPendingReauth = core.ConnectionStatusPendingReauth
	ConnectionStatusRevoked       = core.ConnectionStatusRevoked
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithTokenCipher       = core.WithTokenCipher
	WithIdentityClient    = core.WithIdentityClient
	WithOAuthStateStore   = core.WithOAuthStateStore
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConnectionStore   = core.WithConnectionStore
	WithDestinationStore  = core.WithDestinationStore
)

var (
	ErrConnectionNotFound  = core.ErrConnectionNotFound
	ErrDestinationNotFound = core.ErrDestinationNotFound
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
