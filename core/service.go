package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service orchestrates the token cipher, the identity-provider client, and
// the row stores into the credential lifecycle described in the package docs.
// It holds no per-identity state: every operation re-reads the store and
// re-decrypts, so concurrent callers only race on the store's own uniqueness
// enforcement.
type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	tokenCipher      TokenCipher
	identityClient   IdentityClient
	oauthStateStore  OAuthStateStore
	connectionStore  ConnectionStore
	destinationStore DestinationStore
	now              func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("driveconnect", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("driveconnect"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(defaultOAuthStateTTL)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.connectionStore == nil || builder.destinationStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				if builder.connectionStore == nil {
					builder.connectionStore = storeProvider.ConnectionStore()
				}
				if builder.destinationStore == nil {
					builder.destinationStore = storeProvider.DestinationStore()
				}
			}
		}
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		tokenCipher:      builder.tokenCipher,
		identityClient:   builder.identityClient,
		oauthStateStore:  builder.oauthStateStore,
		connectionStore:  builder.connectionStore,
		destinationStore: builder.destinationStore,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

// BeginLogin mints an opaque state bound to the caller-resolved user id and
// returns the provider authorize URL to redirect the user to.
func (s *Service) BeginLogin(ctx context.Context, req BeginLoginRequest) (BeginLoginResponse, error) {
	if s == nil {
		return BeginLoginResponse{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err := s.mapError(fmt.Errorf("core: user id is required"))
		s.observeOperation(ctx, startedAt, "begin_login", err, map[string]any{})
		return BeginLoginResponse{}, err
	}
	if s.identityClient == nil {
		err := s.mapError(fmt.Errorf("core: identity client is not configured"))
		s.observeOperation(ctx, startedAt, "begin_login", err, map[string]any{"user_id": userID})
		return BeginLoginResponse{}, err
	}

	state, err := generateLoginState()
	if err != nil {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "begin_login", err, map[string]any{"user_id": userID})
		return BeginLoginResponse{}, err
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), s.config.Provider.Scopes...)
	}

	if err := s.oauthStateStore.Save(ctx, OAuthStateRecord{
		State:  state,
		UserID: userID,
		Scopes: scopes,
	}); err != nil {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "begin_login", err, map[string]any{"user_id": userID})
		return BeginLoginResponse{}, err
	}

	authorizeURL, err := s.identityClient.AuthorizeURL(AuthorizeURLRequest{
		State:       state,
		Scopes:      scopes,
		ForcePicker: req.ForcePicker,
		LoginHint:   strings.TrimSpace(req.LoginHint),
	})
	if err != nil {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "begin_login", err, map[string]any{"user_id": userID})
		return BeginLoginResponse{}, err
	}

	s.observeOperation(ctx, startedAt, "begin_login", nil, map[string]any{"user_id": userID})
	return BeginLoginResponse{URL: authorizeURL, State: state}, nil
}

// CompleteLogin consumes the login state, exchanges the authorization code,
// and persists the encrypted connection record. The full record — both
// secrets and the margin-adjusted expiry — is written in one upsert.
func (s *Service) CompleteLogin(ctx context.Context, req CompleteLoginRequest) (CompleteLoginResponse, error) {
	if s == nil {
		return CompleteLoginResponse{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()

	result, err := s.completeLogin(ctx, req)
	fields := map[string]any{}
	if result.TenantID != "" {
		fields["tenant_id"] = result.TenantID
	}
	if result.Connection.UserID != "" {
		fields["user_id"] = result.Connection.UserID
	}
	s.observeOperation(ctx, startedAt, "complete_login", err, fields)
	return result, err
}

func (s *Service) completeLogin(ctx context.Context, req CompleteLoginRequest) (CompleteLoginResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return CompleteLoginResponse{}, s.mapError(fmt.Errorf("core: authorization code is required"))
	}
	if s.identityClient == nil {
		return CompleteLoginResponse{}, s.mapError(fmt.Errorf("core: identity client is not configured"))
	}
	if s.tokenCipher == nil {
		return CompleteLoginResponse{}, s.mapError(fmt.Errorf("core: token cipher is not configured"))
	}
	if s.connectionStore == nil {
		return CompleteLoginResponse{}, s.mapError(fmt.Errorf("core: connection store is not configured"))
	}

	stateRecord, err := s.oauthStateStore.Consume(ctx, req.State)
	if err != nil {
		return CompleteLoginResponse{}, s.mapError(err)
	}

	grant, err := s.identityClient.ExchangeCode(ctx, code)
	if err != nil {
		return CompleteLoginResponse{}, s.mapError(err)
	}

	tenantID := strings.TrimSpace(grant.Claims.TenantID)
	subjectID := strings.TrimSpace(grant.Claims.SubjectID)
	if tenantID == "" || subjectID == "" {
		return CompleteLoginResponse{}, s.mapError(
			s.errorFactory("core: provider access token is missing tenant or subject claims", goerrors.CategoryExternal).
				WithCode(http.StatusBadGateway).
				WithTextCode(ConnectErrorExchangeFailed),
		)
	}
	if strings.TrimSpace(grant.RefreshToken) == "" {
		return CompleteLoginResponse{}, s.mapError(
			s.errorFactory("core: provider did not return a refresh token; the offline_access scope is required", goerrors.CategoryExternal).
				WithCode(http.StatusBadGateway).
				WithTextCode(ConnectErrorExchangeFailed),
		)
	}

	conn, err := s.persistGrant(ctx, Connection{
		UserID:    stateRecord.UserID,
		TenantID:  tenantID,
		SubjectID: subjectID,
		Status:    ConnectionStatusActive,
	}, grant)
	if err != nil {
		return CompleteLoginResponse{}, err
	}

	return CompleteLoginResponse{
		Connection: conn,
		TenantID:   tenantID,
		SubjectID:  subjectID,
	}, nil
}

// Revoke marks the connection for an identity as revoked. The record is kept
// so a later CompleteLogin can reactivate it in place.
func (s *Service) Revoke(ctx context.Context, ref IdentityRef, reason string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	fields := map[string]any{"user_id": ref.UserID, "tenant_id": ref.TenantID}

	err := s.revoke(ctx, ref, reason)
	s.observeOperation(ctx, startedAt, "revoke", err, fields)
	return err
}

func (s *Service) revoke(ctx context.Context, ref IdentityRef, reason string) error {
	if err := ref.Validate(); err != nil {
		return s.mapError(err)
	}
	if s.connectionStore == nil {
		return s.mapError(fmt.Errorf("core: connection store is not configured"))
	}
	conn, err := s.connectionStore.FindByIdentity(ctx, ref)
	if err != nil {
		return s.mapError(err)
	}
	if err := s.connectionStore.UpdateStatus(ctx, conn.ID, ConnectionStatusRevoked, strings.TrimSpace(reason)); err != nil {
		return s.mapError(err)
	}
	return nil
}

// persistGrant encrypts both secrets and writes the full record replace. The
// rotated refresh secret, when the provider supplies one, always wins.
func (s *Service) persistGrant(ctx context.Context, conn Connection, grant TokenGrant) (Connection, error) {
	encryptedAccess, err := s.tokenCipher.Encrypt(ctx, []byte(grant.AccessToken))
	if err != nil {
		return Connection{}, s.mapError(err)
	}

	refreshToken := strings.TrimSpace(grant.RefreshToken)
	if refreshToken != "" {
		encryptedRefresh, encErr := s.tokenCipher.Encrypt(ctx, []byte(refreshToken))
		if encErr != nil {
			return Connection{}, s.mapError(encErr)
		}
		conn.EncryptedRefreshToken = encryptedRefresh
	}

	conn.EncryptedAccessToken = encryptedAccess
	conn.AccessExpiresAt = s.resolveAccessExpiry(grant.ExpiresIn)
	conn.Status = ConnectionStatusActive
	conn.LastError = ""

	stored, err := s.connectionStore.Upsert(ctx, conn)
	if err != nil {
		return Connection{}, s.mapError(err)
	}
	return stored, nil
}

func (s *Service) resolveAccessExpiry(expiresIn int64) time.Time {
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	lifetime := time.Duration(expiresIn) * time.Second
	margin := s.config.ExpirySafetyMargin()
	if margin >= lifetime {
		margin = 0
	}
	return s.now().Add(lifetime - margin)
}
