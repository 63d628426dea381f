package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TokenCipher seals bearer-token plaintext into an opaque text blob and back.
// Implementations must draw a fresh random nonce per Encrypt and must fail
// closed on any tamper during Decrypt.
type TokenCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) (string, error)
	Decrypt(ctx context.Context, blob string) ([]byte, error)
}

// TokenGrant is one token-endpoint response, already normalized. Claims are
// populated on authorization-code exchanges; RefreshToken is empty when the
// provider chose not to rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	Claims       TokenClaims
}

// TokenClaims carries the identifiers decoded from the provider's
// self-describing access token. Decoding only; the direct server-to-server
// exchange is trusted for authenticity.
type TokenClaims struct {
	TenantID  string
	SubjectID string
}

// IdentityClient performs the two OAuth2 grant round trips against the
// identity provider's token endpoint. Stateless; every call is bounded by the
// client's request timeout.
type IdentityClient interface {
	AuthorizeURL(req AuthorizeURLRequest) (string, error)
	ExchangeCode(ctx context.Context, code string) (TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (TokenGrant, error)
}

type AuthorizeURLRequest struct {
	State       string
	Scopes      []string
	ForcePicker bool
	LoginHint   string
	ExtraQuery  map[string]string
	RedirectURI string
}

// ConnectionStore is the system of record for provider links. Upsert is
// idempotent under (user_id, tenant_id, subject_id) and replaces secrets and
// expiry as one write.
type ConnectionStore interface {
	Upsert(ctx context.Context, conn Connection) (Connection, error)
	FindByIdentity(ctx context.Context, ref IdentityRef) (Connection, error)
	UpdateStatus(ctx context.Context, id string, status ConnectionStatus, reason string) error
}

// DestinationStore persists saved storage locations. ClearDefaults demotes
// every default for the identity; Upsert is idempotent under
// (user_id, tenant_id, drive_id, item_id).
type DestinationStore interface {
	Upsert(ctx context.Context, dest Destination) (Destination, error)
	ClearDefaults(ctx context.Context, ref IdentityRef) error
	FindDefault(ctx context.Context, ref IdentityRef) (Destination, error)
	FindNewest(ctx context.Context, ref IdentityRef) (Destination, error)
	List(ctx context.Context, ref IdentityRef) ([]Destination, error)
}

type StoreProvider interface {
	ConnectionStore() ConnectionStore
	DestinationStore() DestinationStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// BeginLoginRequest starts the authorization-code flow for one application
// user. UserID is required: identity resolution belongs to the caller.
type BeginLoginRequest struct {
	UserID      string
	Scopes      []string
	ForcePicker bool
	LoginHint   string
}

type BeginLoginResponse struct {
	URL   string
	State string
}

type CompleteLoginRequest struct {
	Code  string
	State string
}

type CompleteLoginResponse struct {
	Connection Connection
	TenantID   string
	SubjectID  string
}

type RefreshRequest struct {
	Identity IdentityRef
}

type RefreshResult struct {
	Connection  Connection
	AccessToken string
	Rotated     bool
}

// AccessGrant is the token broker's answer: a currently valid plaintext
// access secret plus the destination follow-up operations should act on.
type AccessGrant struct {
	AccessToken string
	ExpiresAt   time.Time
	Destination Destination
	Refreshed   bool
}

type SetDefaultDestinationRequest struct {
	Destination Destination
}
