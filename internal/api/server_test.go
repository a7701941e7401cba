package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/PCSdevs/pay-to-power-core/internal/auth"
	"github.com/PCSdevs/pay-to-power-core/internal/command"
	"github.com/PCSdevs/pay-to-power-core/internal/device"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/config"
	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/logging"
	"github.com/PCSdevs/pay-to-power-core/internal/outbox"
	"github.com/PCSdevs/pay-to-power-core/internal/subscription"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// fakePublisher records published MQTT messages.
type fakePublisher struct {
	published []string
}

func (p *fakePublisher) PublishJSON(topic string, _ []byte) error {
	p.published = append(p.published, topic)
	return nil
}

// testServer creates a Server backed by real repositories on in-memory SQLite.
func testServer(t *testing.T) (*Server, http.Handler, *device.Registry) {
	t.Helper()

	db := setupTestDB(t)
	deviceRepo := device.NewSQLiteRepository(db)
	registry := device.NewRegistry(deviceRepo, 3, 5)
	subsRepo := subscription.NewSQLiteRepository(db)
	store := outbox.NewSQLiteStore(db)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	issuer := command.NewIssuer(
		auth.NewRoleAuthorizer(),
		registry,
		subsRepo,
		store,
		&fakePublisher{},
		log,
	)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:        log,
		Issuer:        issuer,
		Devices:       registry,
		Subscriptions: subsRepo,
		Outbox:        store,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, srv.buildRouter(), registry
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			mac_address TEXT NOT NULL UNIQUE,
			board_number TEXT NOT NULL DEFAULT '',
			public_id TEXT NOT NULL UNIQUE,
			secret_key TEXT NOT NULL,
			is_client_mode_on INTEGER NOT NULL DEFAULT 0,
			hotspot_id TEXT,
			hotspot_password TEXT,
			client_id TEXT,
			client_password TEXT,
			admin_id TEXT,
			admin_password TEXT,
			wifi_ssid TEXT,
			wifi_password TEXT,
			company_id TEXT,
			registered_by TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE outbox_messages (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload TEXT NOT NULL,
			delivery_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (delivery_status IN ('pending', 'acknowledged')),
			timestamp TEXT NOT NULL
		) STRICT;
		CREATE UNIQUE INDEX idx_outbox_pending
			ON outbox_messages(device_id, topic)
			WHERE delivery_status = 'pending';
		CREATE TABLE subscriptions (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL,
			recurring INTEGER NOT NULL DEFAULT 0,
			additional_time INTEGER NOT NULL DEFAULT 0,
			due_timestamp TEXT NOT NULL,
			company_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE subscription_history (
			id TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			recurring INTEGER NOT NULL DEFAULT 0,
			additional_time INTEGER NOT NULL DEFAULT 0,
			due_timestamp TEXT NOT NULL,
			action TEXT NOT NULL CHECK (action IN ('created', 'updated')),
			changed_by TEXT,
			company_id TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// bearerToken mints a JWT for the given role.
func bearerToken(t *testing.T, role auth.Role) string {
	t.Helper()

	token, err := auth.GenerateAccessToken(auth.Actor{
		UserID:    "user-1",
		CompanyID: "company-1",
		Role:      role,
	}, testJWTSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

// doRequest performs a request against the router with an optional token.
func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// registerTestDevice registers a device through the API and returns its record.
func registerTestDevice(t *testing.T, router http.Handler, token, mac string) map[string]any {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/api/v1/devices", token,
		`{"macAddress":"`+mac+`","boardNumber":"B-100"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register device status = %d, body %s", w.Code, w.Body.String())
	}

	var dev map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &dev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return dev
}

func TestHealth(t *testing.T) {
	_, router, _ := testServer(t)

	w := doRequest(router, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	_, router, _ := testServer(t)

	w := doRequest(router, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	_, router, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, router, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestAuthRequired(t *testing.T) {
	_, router, _ := testServer(t)

	t.Run("missing token", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/devices", "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/devices", "not-a-jwt", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestRegisterDevice(t *testing.T) {
	_, router, _ := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)

	t.Run("success", func(t *testing.T) {
		dev := registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:01")

		if dev["macAddress"] != "aa:bb:cc:dd:ee:01" {
			t.Errorf("macAddress = %v, want canonical form", dev["macAddress"])
		}
		if dev["publicId"] == "" {
			t.Error("expected a public id")
		}
		if _, ok := dev["secretKey"]; ok {
			t.Error("secret key must not appear in API responses")
		}
	})

	t.Run("duplicate mac", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/devices", admin,
			`{"macAddress":"AA:BB:CC:DD:EE:01"}`)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("invalid mac", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/devices", admin,
			`{"macAddress":"not-a-mac"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("operator forbidden", func(t *testing.T) {
		operator := bearerToken(t, auth.RoleOperator)
		w := doRequest(router, http.MethodPost, "/api/v1/devices", operator,
			`{"macAddress":"AA:BB:CC:DD:EE:02"}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

func TestGetDevice(t *testing.T) {
	_, router, _ := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)
	dev := registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:10")

	t.Run("found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/devices/"+dev["id"].(string), admin, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/devices/nope", admin, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestListDevices(t *testing.T) {
	_, router, _ := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)
	registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:20")
	registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:21")

	w := doRequest(router, http.MethodGet, "/api/v1/devices", admin, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestUpdateWifi(t *testing.T) {
	_, router, _ := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)
	dev := registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:30")
	id := dev["id"].(string)

	w := doRequest(router, http.MethodPatch, "/api/v1/devices/"+id+"/wifi", admin,
		`{"wifiSsid":"factory-floor","wifiPassword":"s3cret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// The command must be waiting in the outbox.
	pw := doRequest(router, http.MethodGet, "/api/v1/devices/"+id+"/pending", admin, "")
	if pw.Code != http.StatusOK {
		t.Fatalf("pending status = %d", pw.Code)
	}
	var pending map[string]any
	if err := json.Unmarshal(pw.Body.Bytes(), &pending); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pending["count"] != float64(1) {
		t.Errorf("pending count = %v, want 1", pending["count"])
	}
}

func TestDeleteDevice(t *testing.T) {
	_, router, _ := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)
	dev := registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:40")
	id := dev["id"].(string)

	w := doRequest(router, http.MethodDelete, "/api/v1/devices/"+id, admin, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	gw := doRequest(router, http.MethodGet, "/api/v1/devices/"+id, admin, "")
	if gw.Code != http.StatusNotFound {
		t.Errorf("deleted device status = %d, want %d", gw.Code, http.StatusNotFound)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	_, router, registry := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)
	dev := registerTestDevice(t, router, admin, "AA:BB:CC:DD:EE:50")
	id := dev["id"].(string)

	due := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)

	t.Run("create", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/subscriptions", admin,
			`{"deviceId":"`+id+`","mode":"prepaid","recurring":true,"additionalTime":60,"dueTimestamp":"`+due+`"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/subscriptions", admin,
			`{"deviceId":"`+id+`","mode":"prepaid","dueTimestamp":"`+due+`"}`)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/subscriptions/"+id, admin, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var sub map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &sub); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if sub["mode"] != "prepaid" {
			t.Errorf("mode = %v, want prepaid", sub["mode"])
		}
	})

	t.Run("update", func(t *testing.T) {
		w := doRequest(router, http.MethodPatch, "/api/v1/subscriptions/"+id, admin,
			`{"mode":"postpaid"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
	})

	t.Run("history", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/subscriptions/"+id+"/history", admin, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp["count"] != float64(2) {
			t.Errorf("history count = %v, want 2", resp["count"])
		}
	})

	t.Run("rejected in client mode", func(t *testing.T) {
		if err := registry.SetClientMode(context.Background(), id, true); err != nil {
			t.Fatalf("SetClientMode: %v", err)
		}

		w := doRequest(router, http.MethodPatch, "/api/v1/subscriptions/"+id, admin,
			`{"mode":"prepaid"}`)
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/subscriptions/nope", admin, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
