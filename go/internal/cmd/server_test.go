package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/huroof/go/internal/config"
)

func TestServerWiringWithMemoryStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Codes.DevCodes = []string{" ab12cd ", "bad"}

	db, err := setupDatabase(context.Background(), cfg.Storage)
	if err != nil || db != nil {
		t.Fatalf("memory storage = %v, %v", db, err)
	}
	services, err := setupServices(context.Background(), &cfg, db)
	if err != nil {
		t.Fatalf("setupServices: %v", err)
	}
	snap, err := services.Store.GetOrCreate(context.Background(), "AB12CD")
	if err != nil || snap.Questions.General.Count() == 0 {
		t.Fatalf("memory mode has no general questions: %v", err)
	}

	server := setupServer(cfg.Server, services)
	if server.Addr != ":8080" {
		t.Fatalf("addr = %s", server.Addr)
	}

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || info["service"] != "huroof" {
		t.Fatalf("info = %s (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestDevCodesAreNormalized(t *testing.T) {
	mem := devCodes(config.Codes{SpecialPrefix: "S", DevCodes: []string{" ab12cd", "sxy12345", "nope"}})
	for code, want := range map[string]bool{"AB12CD": true, "SXY12345": false, "NOPE": false} {
		ok, _, err := mem.LookupCode(context.Background(), code)
		if err != nil || ok != want {
			t.Fatalf("LookupCode(%s) = %v, %v", code, ok, err)
		}
	}
}
