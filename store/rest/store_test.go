package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-driveconnect/core"
)

func testStoreConfig(baseURL string) core.StoreConfig {
	return core.StoreConfig{
		URL:                   baseURL,
		ServiceKey:            "service-key-1",
		ConnectionsTable:      "drive_connections",
		DestinationsTable:     "drive_destinations",
		RequestTimeoutSeconds: 5,
	}
}

func TestConnectionStore_Upsert(t *testing.T) {
	var captured *http.Request
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		payload, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(payload, &capturedBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":                "conn-1",
			"user_id":           "user-1",
			"tenant_id":         "tenant-1",
			"subject_id":        "subject-1",
			"access_token_enc":  "blob-a",
			"refresh_token_enc": "blob-r",
			"access_expires_at": time.Now().UTC().Add(time.Hour),
			"status":            "active",
			"created_at":        time.Now().UTC(),
			"updated_at":        time.Now().UTC(),
		}})
	}))
	defer server.Close()

	store, err := NewConnectionStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	stored, err := store.Upsert(context.Background(), core.Connection{
		UserID:                "user-1",
		TenantID:              "tenant-1",
		SubjectID:             "subject-1",
		EncryptedAccessToken:  "blob-a",
		EncryptedRefreshToken: "blob-r",
		AccessExpiresAt:       time.Now().UTC().Add(time.Hour),
		Status:                core.ConnectionStatusActive,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.ID != "conn-1" {
		t.Fatalf("expected stored id, got %q", stored.ID)
	}

	if captured.Method != http.MethodPost {
		t.Fatalf("expected POST, got %s", captured.Method)
	}
	if captured.URL.Path != "/rest/v1/drive_connections" {
		t.Fatalf("unexpected path %q", captured.URL.Path)
	}
	if got := captured.URL.Query().Get("on_conflict"); got != "user_id,tenant_id,subject_id" {
		t.Fatalf("unexpected on_conflict %q", got)
	}
	if got := captured.Header.Get("Prefer"); got != "resolution=merge-duplicates,return=representation" {
		t.Fatalf("unexpected Prefer header %q", got)
	}
	if captured.Header.Get("apikey") != "service-key-1" {
		t.Fatalf("expected apikey header")
	}
	if captured.Header.Get("Authorization") != "Bearer service-key-1" {
		t.Fatalf("expected bearer authorization header")
	}
	if capturedBody["access_token_enc"] != "blob-a" {
		t.Fatalf("expected encrypted access token in payload")
	}
	if _, ok := capturedBody["id"]; ok {
		t.Fatalf("expected empty id to be omitted from payload")
	}
	if _, ok := capturedBody["updated_at"]; !ok {
		t.Fatalf("expected updated_at in payload")
	}
}

func TestConnectionStore_FindByIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("user_id") != "eq.user-1" || query.Get("tenant_id") != "eq.tenant-1" {
			t.Errorf("unexpected filters: %v", query)
		}
		if query.Get("order") != "updated_at.desc" || query.Get("limit") != "1" {
			t.Errorf("expected order and limit, got %v", query)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":         "conn-1",
			"user_id":    "user-1",
			"tenant_id":  "tenant-1",
			"subject_id": "subject-1",
			"status":     "active",
		}})
	}))
	defer server.Close()

	store, err := NewConnectionStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	conn, err := store.FindByIdentity(context.Background(), core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if conn.SubjectID != "subject-1" {
		t.Fatalf("unexpected connection %+v", conn)
	}
}

func TestConnectionStore_FindByIdentity_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	store, err := NewConnectionStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.FindByIdentity(context.Background(), core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestConnectionStore_UpdateStatus(t *testing.T) {
	var patched *http.Request
	var patchedBody map[string]any
	currentStatus := "active"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if got := r.URL.Query().Get("id"); got != "eq.conn-1" {
				t.Errorf("expected id filter on select, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]map[string]any{{
				"id":         "conn-1",
				"user_id":    "user-1",
				"tenant_id":  "tenant-1",
				"subject_id": "subject-1",
				"status":     currentStatus,
			}})
		case http.MethodPatch:
			patched = r
			payload, _ := io.ReadAll(r.Body)
			json.Unmarshal(payload, &patchedBody)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	store, err := NewConnectionStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.UpdateStatus(context.Background(), "conn-1", core.ConnectionStatusPendingReauth, "invalid_grant"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if patched == nil {
		t.Fatalf("expected a PATCH after loading the row")
	}
	if got := patched.URL.Query().Get("id"); got != "eq.conn-1" {
		t.Fatalf("expected id filter, got %q", got)
	}
	if patched.Header.Get("Prefer") != "return=minimal" {
		t.Fatalf("expected return=minimal Prefer header")
	}
	if patchedBody["status"] != "pending_reauth" {
		t.Fatalf("expected pending_reauth status, got %v", patchedBody["status"])
	}
	if patchedBody["last_error"] != "invalid_grant" {
		t.Fatalf("expected last_error, got %v", patchedBody["last_error"])
	}

	if err := store.UpdateStatus(context.Background(), "conn-1", core.ConnectionStatus("bogus"), ""); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}

	// A revoked row only accepts reactivation; the invalid transition is
	// rejected before any write goes out.
	currentStatus = "revoked"
	patched = nil
	err = store.UpdateStatus(context.Background(), "conn-1", core.ConnectionStatusPendingReauth, "")
	if !errors.Is(err, core.ErrInvalidConnectionStatusTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
	if patched != nil {
		t.Fatalf("expected no write after rejected transition")
	}
}

func TestConnectionStore_ServerErrorIsStoreFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"permission denied"}`))
	}))
	defer server.Close()

	store, err := NewConnectionStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.FindByIdentity(context.Background(), core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDestinationStore_UpsertAndClearDefaults(t *testing.T) {
	type call struct {
		method string
		path   string
		query  string
		body   map[string]any
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(payload, &body)
		calls = append(calls, call{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   body,
		})
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":         "dest-1",
			"user_id":    "user-1",
			"tenant_id":  "tenant-1",
			"drive_id":   "drive-1",
			"item_id":    "item-1",
			"is_default": true,
		}})
	}))
	defer server.Close()

	store, err := NewDestinationStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ref := core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"}
	if err := store.ClearDefaults(context.Background(), ref); err != nil {
		t.Fatalf("clear defaults: %v", err)
	}

	stored, err := store.Upsert(context.Background(), core.Destination{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		DriveID:     "drive-1",
		ItemID:      "item-1",
		DisplayName: "Contracts",
		IsDefault:   true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.ID != "dest-1" || !stored.IsDefault {
		t.Fatalf("unexpected stored destination %+v", stored)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	patch := calls[0]
	if patch.method != http.MethodPatch {
		t.Fatalf("expected PATCH first, got %s", patch.method)
	}
	if patch.body["is_default"] != false {
		t.Fatalf("expected demotion payload, got %v", patch.body)
	}
	upsert := calls[1]
	if upsert.method != http.MethodPost || upsert.path != "/rest/v1/drive_destinations" {
		t.Fatalf("unexpected upsert call %+v", upsert)
	}
}

func TestDestinationStore_FindDefaultThenNewest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if query.Get("is_default") == "eq.true" {
			w.Write([]byte("[]"))
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":        "dest-2",
			"user_id":   "user-1",
			"tenant_id": "tenant-1",
			"drive_id":  "drive-1",
			"item_id":   "item-2",
		}})
	}))
	defer server.Close()

	store, err := NewDestinationStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ref := core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"}
	if _, err := store.FindDefault(context.Background(), ref); !errors.Is(err, core.ErrDestinationNotFound) {
		t.Fatalf("expected ErrDestinationNotFound, got %v", err)
	}
	newest, err := store.FindNewest(context.Background(), ref)
	if err != nil {
		t.Fatalf("find newest: %v", err)
	}
	if newest.ID != "dest-2" {
		t.Fatalf("unexpected destination %+v", newest)
	}
}

func TestDestinationStore_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") != "updated_at.desc" {
			t.Errorf("expected order filter, got %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "dest-1", "user_id": "user-1", "tenant_id": "tenant-1", "drive_id": "d", "item_id": "i1"},
			{"id": "dest-2", "user_id": "user-1", "tenant_id": "tenant-1", "drive_id": "d", "item_id": "i2"},
		})
	}))
	defer server.Close()

	store, err := NewDestinationStore(testStoreConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	destinations, err := store.List(context.Background(), core.IdentityRef{UserID: "user-1", TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(destinations) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(destinations))
	}
}

func TestNewRowClient_Validation(t *testing.T) {
	if _, err := NewConnectionStore(core.StoreConfig{ServiceKey: "k"}, nil); err == nil {
		t.Fatalf("expected missing url to be rejected")
	}
	if _, err := NewConnectionStore(core.StoreConfig{URL: "https://example.supabase.co"}, nil); err == nil {
		t.Fatalf("expected missing service key to be rejected")
	}
}
