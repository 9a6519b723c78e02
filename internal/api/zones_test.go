package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/WispAyr/baywatch/internal/database"
	"github.com/WispAyr/baywatch/internal/events"
	"github.com/WispAyr/baywatch/internal/imaging"
	"github.com/WispAyr/baywatch/internal/occupancy"
	"github.com/WispAyr/baywatch/internal/zones"
)

func setupZoneTestServer(t *testing.T) (*Server, chi.Router, func()) {
	t.Helper()
	tmpDir := t.TempDir()

	db, err := database.Open(&database.Config{Path: tmpDir + "/test.db"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	migrator := database.NewMigrator(db)
	if err := migrator.Run(context.Background()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	zoneSvc := zones.NewService(db)
	evLogger := events.NewLogger(db, nil)
	occState := occupancy.NewState(evLogger, nil)
	hub := NewHub(func() Message { return Message{Type: MessageTypeInitialState} })
	go hub.Run()

	srv := NewServer(nil, db, zoneSvc, occState, evLogger, nil, nil, nil, nil, hub)
	router := srv.Routes()

	return srv, router, func() { db.Close() }
}

func testPolygon() imaging.Polygon {
	return imaging.Polygon{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body: %s", err, rec.Body.String())
	}
	return resp
}

func TestHandleCreateZone(t *testing.T) {
	_, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	body, _ := json.Marshal(zones.Input{Name: "dock", CameraID: "cam1", Polygon: testPolygon()})
	req := httptest.NewRequest(http.MethodPost, "/zones/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success response")
	}
}

func TestHandleCreateZoneRejectsInvalidPolygon(t *testing.T) {
	_, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	body, _ := json.Marshal(zones.Input{
		Name:     "dock",
		CameraID: "cam1",
		Polygon:  imaging.Polygon{{X: 0, Y: 0}, {X: 10, Y: 10}},
	})
	req := httptest.NewRequest(http.MethodPost, "/zones/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListAndGetZone(t *testing.T) {
	srv, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	created, err := srv.Zones.Create(context.Background(), zones.Input{Name: "lot", CameraID: "cam1", Polygon: testPolygon()})
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/zones/", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/zones/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestHandleGetZoneNotFound(t *testing.T) {
	_, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/zones/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleUpdateZone(t *testing.T) {
	srv, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	created, err := srv.Zones.Create(context.Background(), zones.Input{Name: "lot", CameraID: "cam1", Polygon: testPolygon()})
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"name": "lot-renamed"})
	req := httptest.NewRequest(http.MethodPatch, "/zones/"+created.ID, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDeleteZone(t *testing.T) {
	srv, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	created, err := srv.Zones.Create(context.Background(), zones.Input{Name: "lot", CameraID: "cam1", Polygon: testPolygon()})
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/zones/"+created.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/zones/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted zone to 404, got %d", getRec.Code)
	}
}

func TestHandleZoneCountNoEntryYet(t *testing.T) {
	srv, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	created, err := srv.Zones.Create(context.Background(), zones.Input{Name: "lot", CameraID: "cam1", Polygon: testPolygon()})
	if err != nil {
		t.Fatalf("create zone: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/zones/"+created.ID+"/count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleZoneHistoryUnknownZone(t *testing.T) {
	_, router, cleanup := setupZoneTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/zones/unknown/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
