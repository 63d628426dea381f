package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// reversibleCipher is a stand-in for the AEAD cipher: it wraps plaintext in a
// recognizable envelope so tests can assert what was stored without real
// crypto.
type reversibleCipher struct {
	encryptErr error
	decryptErr error
}

func (c reversibleCipher) Encrypt(_ context.Context, plaintext []byte) (string, error) {
	if c.encryptErr != nil {
		return "", c.encryptErr
	}
	return "enc(" + string(plaintext) + ")", nil
}

func (c reversibleCipher) Decrypt(_ context.Context, blob string) ([]byte, error) {
	if c.decryptErr != nil {
		return nil, c.decryptErr
	}
	if !strings.HasPrefix(blob, "enc(") || !strings.HasSuffix(blob, ")") {
		return nil, fmt.Errorf("cipher: message authentication failed")
	}
	return []byte(strings.TrimSuffix(strings.TrimPrefix(blob, "enc("), ")")), nil
}

type stubIdentityClient struct {
	authorizeURLFn func(req AuthorizeURLRequest) (string, error)
	exchangeCodeFn func(ctx context.Context, code string) (TokenGrant, error)
	refreshFn      func(ctx context.Context, refreshToken string) (TokenGrant, error)
}

func (c stubIdentityClient) AuthorizeURL(req AuthorizeURLRequest) (string, error) {
	if c.authorizeURLFn == nil {
		return "https://example.com/authorize?state=" + req.State, nil
	}
	return c.authorizeURLFn(req)
}

func (c stubIdentityClient) ExchangeCode(ctx context.Context, code string) (TokenGrant, error) {
	if c.exchangeCodeFn == nil {
		return TokenGrant{}, fmt.Errorf("exchange not configured")
	}
	return c.exchangeCodeFn(ctx, code)
}

func (c stubIdentityClient) Refresh(ctx context.Context, refreshToken string) (TokenGrant, error) {
	if c.refreshFn == nil {
		return TokenGrant{}, fmt.Errorf("refresh not configured")
	}
	return c.refreshFn(ctx, refreshToken)
}

type memoryConnectionStore struct {
	mu      sync.Mutex
	seq     int
	rows    map[string]Connection
	findErr error
	saveErr error

	statusUpdates []statusUpdate
}

type statusUpdate struct {
	id     string
	status ConnectionStatus
	reason string
}

func newMemoryConnectionStore() *memoryConnectionStore {
	return &memoryConnectionStore{rows: map[string]Connection{}}
}

func connectionKey(userID, tenantID string) string {
	return userID + "|" + tenantID
}

func (s *memoryConnectionStore) Upsert(_ context.Context, conn Connection) (Connection, error) {
	if s.saveErr != nil {
		return Connection{}, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connectionKey(conn.UserID, conn.TenantID)
	if existing, ok := s.rows[key]; ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		conn.ID = fmt.Sprintf("conn-%d", s.seq)
		conn.CreatedAt = time.Now().UTC()
	}
	conn.UpdatedAt = time.Now().UTC()
	s.rows[key] = conn
	return conn, nil
}

func (s *memoryConnectionStore) FindByIdentity(_ context.Context, ref IdentityRef) (Connection, error) {
	if s.findErr != nil {
		return Connection{}, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.rows[connectionKey(ref.UserID, ref.TenantID)]
	if !ok {
		return Connection{}, fmt.Errorf("%w: user %q tenant %q", ErrConnectionNotFound, ref.UserID, ref.TenantID)
	}
	return conn, nil
}

func (s *memoryConnectionStore) UpdateStatus(_ context.Context, id string, status ConnectionStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusUpdates = append(s.statusUpdates, statusUpdate{id: id, status: status, reason: reason})
	for key, conn := range s.rows {
		if conn.ID == id {
			conn.Status = status
			conn.LastError = reason
			conn.UpdatedAt = time.Now().UTC()
			s.rows[key] = conn
			return nil
		}
	}
	return fmt.Errorf("%w: id %q", ErrConnectionNotFound, id)
}

func (s *memoryConnectionStore) get(t *testing.T, ref IdentityRef) Connection {
	t.Helper()
	conn, err := s.FindByIdentity(context.Background(), ref)
	if err != nil {
		t.Fatalf("expected stored connection for %v: %v", ref, err)
	}
	return conn
}

type memoryDestinationStore struct {
	mu       sync.Mutex
	seq      int
	rows     map[string]Destination
	clearErr error
	saveErr  error

	clearCalls int
}

func newMemoryDestinationStore() *memoryDestinationStore {
	return &memoryDestinationStore{rows: map[string]Destination{}}
}

func destinationKey(dest Destination) string {
	return strings.Join([]string{dest.UserID, dest.TenantID, dest.DriveID, dest.ItemID}, "|")
}

func (s *memoryDestinationStore) Upsert(_ context.Context, dest Destination) (Destination, error) {
	if s.saveErr != nil {
		return Destination{}, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := destinationKey(dest)
	if existing, ok := s.rows[key]; ok {
		dest.ID = existing.ID
		dest.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		dest.ID = fmt.Sprintf("dest-%d", s.seq)
		dest.CreatedAt = time.Now().UTC()
	}
	dest.UpdatedAt = time.Now().UTC()
	s.rows[key] = dest
	return dest, nil
}

func (s *memoryDestinationStore) ClearDefaults(_ context.Context, ref IdentityRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearCalls++
	if s.clearErr != nil {
		return s.clearErr
	}
	for key, dest := range s.rows {
		if dest.UserID == ref.UserID && dest.TenantID == ref.TenantID && dest.IsDefault {
			dest.IsDefault = false
			dest.UpdatedAt = time.Now().UTC()
			s.rows[key] = dest
		}
	}
	return nil
}

func (s *memoryDestinationStore) FindDefault(_ context.Context, ref IdentityRef) (Destination, error) {
	return s.findOne(ref, true)
}

func (s *memoryDestinationStore) FindNewest(_ context.Context, ref IdentityRef) (Destination, error) {
	return s.findOne(ref, false)
}

func (s *memoryDestinationStore) findOne(ref IdentityRef, onlyDefault bool) (Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := s.matching(ref)
	found := false
	var newest Destination
	for _, dest := range matches {
		if onlyDefault && !dest.IsDefault {
			continue
		}
		if !found || dest.UpdatedAt.After(newest.UpdatedAt) {
			newest = dest
			found = true
		}
	}
	if !found {
		return Destination{}, fmt.Errorf("%w: user %q tenant %q", ErrDestinationNotFound, ref.UserID, ref.TenantID)
	}
	return newest, nil
}

func (s *memoryDestinationStore) List(_ context.Context, ref IdentityRef) ([]Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := s.matching(ref)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	return matches, nil
}

func (s *memoryDestinationStore) matching(ref IdentityRef) []Destination {
	var out []Destination
	for _, dest := range s.rows {
		if dest.UserID == ref.UserID && dest.TenantID == ref.TenantID {
			out = append(out, dest)
		}
	}
	return out
}

type serviceFixture struct {
	service      *Service
	connections  *memoryConnectionStore
	destinations *memoryDestinationStore
	identity     *stubIdentityClient
	cipher       *reversibleCipher
	states       *MemoryOAuthStateStore
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{
		connections:  newMemoryConnectionStore(),
		destinations: newMemoryDestinationStore(),
		identity:     &stubIdentityClient{},
		cipher:       &reversibleCipher{},
		states:       NewMemoryOAuthStateStore(time.Minute),
	}

	service, err := NewService(DefaultConfig(),
		WithTokenCipher(fixture.cipher),
		WithIdentityClient(fixture.identity),
		WithOAuthStateStore(fixture.states),
		WithConnectionStore(fixture.connections),
		WithDestinationStore(fixture.destinations),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.service = service
	return fixture
}

func (f *serviceFixture) seedConnection(t *testing.T, expiresAt time.Time) Connection {
	t.Helper()
	conn, err := f.connections.Upsert(context.Background(), Connection{
		UserID:                "user-1",
		TenantID:              "tenant-1",
		SubjectID:             "subject-1",
		EncryptedAccessToken:  "enc(stored-access)",
		EncryptedRefreshToken: "enc(stored-refresh)",
		AccessExpiresAt:       expiresAt,
		Status:                ConnectionStatusActive,
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return conn
}
