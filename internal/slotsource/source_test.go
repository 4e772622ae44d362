package slotsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAPISourceFetch(t *testing.T) {
	var gotPath, gotDate, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slots":[
			{"_id":"s1","campaignName":"Summer","mediaFile":"https://cdn/a.mp4","slotStartTime":"9:00 AM"},
			{"_id":"s2","mediaFile":"","slotStartTime":"10:00"}
		]}`))
	}))
	defer srv.Close()

	src := NewAPISource(srv.URL+"/", "tok", time.Second, zerolog.Nop())
	date := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

	slots, err := src.Fetch(context.Background(), "loc 7", date)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/location/loc 7" || gotDate != "2025-03-01" || gotAuth != "Bearer tok" {
		t.Fatalf("unexpected request: path=%q date=%q auth=%q", gotPath, gotDate, gotAuth)
	}
	if len(slots) != 2 || slots[0].ID != "s1" || slots[0].CampaignName != "Summer" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

func TestAPISourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/location/missing":
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		case "/location/broken":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	src := NewAPISource(srv.URL, "", time.Second, zerolog.Nop())
	ctx := context.Background()

	if _, err := src.Fetch(ctx, "missing", time.Now()); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
	if _, err := src.Fetch(ctx, "broken", time.Now()); err == nil || errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := src.Fetch(ctx, "garbled", time.Now()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestAPISourceEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	slots, err := WithTelemetry(NewAPISource(srv.URL, "", time.Second, zerolog.Nop())).Fetch(context.Background(), "lobby", time.Now())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.yaml")
	data := []byte(`locations:
  lobby:
    slots:
      - campaignName: Summer Sale
        mediaFile: https://cdn.example.com/summer.mp4
        slotStartTime: "9:00 AM"
        advertiser: acme
      - mediaFile: poster.png
        slotStartTime: "10:30"
    dates:
      "2025-12-24":
        - mediaFile: xmas.png
          slotStartTime: "09:00"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewFileSource(path)
	ctx := context.Background()

	slots, err := src.Fetch(ctx, "lobby", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(slots) != 2 || slots[0].SlotStartTime != "9:00 AM" || slots[0].Extra["advertiser"] != "acme" {
		t.Fatalf("unexpected slots: %+v", slots)
	}

	dated, err := src.Fetch(ctx, "lobby", time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch dated: %v", err)
	}
	if len(dated) != 1 || dated[0].MediaFile != "xmas.png" {
		t.Fatalf("date override not applied: %+v", dated)
	}

	if _, err := src.Fetch(ctx, "rooftop", time.Now()); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}

	ids, err := src.Locations()
	if err != nil || len(ids) != 1 || ids[0] != "lobby" {
		t.Fatalf("unexpected locations: %v %v", ids, err)
	}
}

func TestLocationsLooksThroughTelemetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.yaml")
	if err := os.WriteFile(path, []byte("locations:\n  atrium:\n    slots: []\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ids, err := Locations(WithTelemetry(NewFileSource(path)))
	if err != nil || len(ids) != 1 || ids[0] != "atrium" {
		t.Fatalf("unexpected locations: %v %v", ids, err)
	}

	ids, err = Locations(WithTelemetry(NewAPISource("http://127.0.0.1:1", "", time.Second, zerolog.Nop())))
	if err != nil || ids != nil {
		t.Fatalf("api source should not list locations: %v %v", ids, err)
	}
}
