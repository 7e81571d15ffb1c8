package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"papertraderv1/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettings_DefaultsWhenEmpty(t *testing.T) {
	s := newTestStore(t)

	fs, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	want := model.DefaultFeedSettings()
	if fs != want {
		t.Errorf("settings = %+v, want defaults %+v", fs, want)
	}
}

func TestSettings_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := model.FeedSettings{UseRealtimeFeed: false, PollingIntervalMs: 2500}
	if err := s.SaveSettings(in); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	// Saving again must overwrite the single record, not add a second one.
	in.PollingIntervalMs = 7000
	if err := s.SaveSettings(in); err != nil {
		t.Fatalf("SaveSettings (update): %v", err)
	}

	out, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if out != in {
		t.Errorf("settings = %+v, want %+v", out, in)
	}
}

func TestJournal_AppendAndRead(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	trades := []model.Trade{
		{ID: "t1", OrderID: "o1", Code: "KRW-BTC", Side: model.SideBuy, Price: 50000000, Quantity: 0.01, TotalAmount: 500000, Fee: 250, Timestamp: ts},
		{ID: "t2", OrderID: "o2", Code: "KRW-BTC", Side: model.SideSell, Price: 51000000, Quantity: 0.01, TotalAmount: 510000, Fee: 255, Timestamp: ts.Add(time.Minute)},
		{ID: "t3", OrderID: "o3", Code: "KRW-ETH", Side: model.SideBuy, Price: 3000000, Quantity: 0.1, TotalAmount: 300000, Fee: 150, Timestamp: ts},
	}
	for _, tr := range trades {
		if err := s.JournalTrade(tr); err != nil {
			t.Fatalf("JournalTrade(%s): %v", tr.ID, err)
		}
	}

	got, err := s.ReadJournal("KRW-BTC", 10)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("journal length = %d, want 2", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("journal order = [%s, %s], want oldest first [t1, t2]", got[0].ID, got[1].ID)
	}
	if got[0].Fee != 250 {
		t.Errorf("fee = %v, want 250", got[0].Fee)
	}
}
