package storage

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/littlesearch/littlesearch/internal/crawler"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test_crawl.db")

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func sampleResult() *Result {
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Result{
		Pages: []*crawler.Page{
			{
				URL:        "https://example.com/",
				HTML:       "<html><head><title>Home</title></head><body>hi</body></html>",
				Title:      "Home",
				Text:       "Home hi",
				Links:      []string{"https://example.com/a", "https://other.com/"},
				StatusCode: 200,
				FetchedAt:  fetched,
				Anchors: map[string]string{
					"https://example.com/a": "Page A",
				},
				TTFB:         42 * time.Millisecond,
				DownloadTime: 120 * time.Millisecond,
			},
			{
				URL:        "https://example.com/a",
				HTML:       "<html></html>",
				StatusCode: 200,
				FetchedAt:  fetched.Add(time.Second),
			},
		},
		BlockedHosts: []string{"down.example.net", "forbidden.example.org"},
		Errors: []crawler.CrawlError{
			{URL: "https://down.example.net/", ErrorType: crawler.ErrorTypeConnection, ErrorMessage: "refused", OccurredAt: fetched},
			{URL: "https://example.com/missing", ErrorType: crawler.ErrorTypeHTTP, ErrorMessage: "HTTP 404", OccurredAt: fetched},
			{URL: "https://example.com/gone", ErrorType: crawler.ErrorTypeHTTP, ErrorMessage: "HTTP 410", OccurredAt: fetched},
		},
		Meta: map[string]string{
			"start_url":    "https://example.com/",
			"pages_stored": "2",
			"interrupted":  "false",
		},
	}
}

func TestSQLiteStorageSaveAndLoad(t *testing.T) {
	storage := newTestStorage(t)
	res := sampleResult()

	if err := storage.SaveResult(res); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	pages, err := storage.LoadPages()
	if err != nil {
		t.Fatalf("LoadPages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(pages))
	}

	home := pages[0]
	if home.URL != "https://example.com/" || home.Title != "Home" || home.Text != "Home hi" {
		t.Errorf("Unexpected page: %+v", home)
	}
	if home.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", home.StatusCode)
	}
	if !home.FetchedAt.Equal(res.Pages[0].FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", home.FetchedAt, res.Pages[0].FetchedAt)
	}
	if !reflect.DeepEqual(home.Links, res.Pages[0].Links) {
		t.Errorf("Links = %v, want %v", home.Links, res.Pages[0].Links)
	}
	if !reflect.DeepEqual(home.Anchors, res.Pages[0].Anchors) {
		t.Errorf("Anchors = %v, want %v", home.Anchors, res.Pages[0].Anchors)
	}
	if home.TTFB != 42*time.Millisecond || home.DownloadTime != 120*time.Millisecond {
		t.Errorf("Timings = %v/%v, want 42ms/120ms", home.TTFB, home.DownloadTime)
	}
	if len(pages[1].Links) != 0 {
		t.Errorf("Expected no links for %s, got %v", pages[1].URL, pages[1].Links)
	}

	hosts, err := storage.LoadBlockedHosts()
	if err != nil {
		t.Fatalf("LoadBlockedHosts() error = %v", err)
	}
	if !reflect.DeepEqual(hosts, res.BlockedHosts) {
		t.Errorf("BlockedHosts = %v, want %v", hosts, res.BlockedHosts)
	}

	crawlErrors, err := storage.LoadErrors()
	if err != nil {
		t.Fatalf("LoadErrors() error = %v", err)
	}
	if len(crawlErrors) != len(res.Errors) {
		t.Fatalf("Expected %d errors, got %d", len(res.Errors), len(crawlErrors))
	}
	for i, e := range crawlErrors {
		want := res.Errors[i]
		if e.URL != want.URL || e.ErrorType != want.ErrorType || e.ErrorMessage != want.ErrorMessage {
			t.Errorf("Error %d = %+v, want %+v", i, e, want)
		}
		if !e.OccurredAt.Equal(want.OccurredAt) {
			t.Errorf("Error %d OccurredAt = %v, want %v", i, e.OccurredAt, want.OccurredAt)
		}
	}

	if v, _ := storage.GetMeta("start_url"); v != "https://example.com/" {
		t.Errorf("start_url meta = %q", v)
	}
}

func TestSQLiteStorageSaveReplacesPreviousRun(t *testing.T) {
	storage := newTestStorage(t)

	if err := storage.SaveResult(sampleResult()); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	second := &Result{
		Pages: []*crawler.Page{
			{URL: "https://second.example/", StatusCode: 200, FetchedAt: time.Now()},
		},
	}
	if err := storage.SaveResult(second); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	pages, err := storage.LoadPages()
	if err != nil {
		t.Fatalf("LoadPages() error = %v", err)
	}
	if len(pages) != 1 || pages[0].URL != "https://second.example/" {
		t.Errorf("Expected only the second run's page, got %d pages", len(pages))
	}

	hosts, _ := storage.LoadBlockedHosts()
	if len(hosts) != 0 {
		t.Errorf("Expected blocked hosts to be cleared, got %v", hosts)
	}

	crawlErrors, _ := storage.LoadErrors()
	if len(crawlErrors) != 0 {
		t.Errorf("Expected errors to be cleared, got %v", crawlErrors)
	}
}

func TestSQLiteStorageEmptyResult(t *testing.T) {
	storage := newTestStorage(t)

	if err := storage.SaveResult(&Result{}); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}

	pages, err := storage.LoadPages()
	if err != nil {
		t.Fatalf("LoadPages() error = %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("Expected no pages, got %d", len(pages))
	}
}

func TestMetaOperations(t *testing.T) {
	storage := newTestStorage(t)

	value, err := storage.GetMeta("missing")
	if err != nil {
		t.Fatalf("GetMeta() error = %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value for missing key, got %q", value)
	}

	first := &Result{Meta: map[string]string{"finished_at": "2024-05-01T12:00:00Z"}}
	if err := storage.SaveResult(first); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	second := &Result{Meta: map[string]string{"finished_at": "2024-05-02T12:00:00Z"}}
	if err := storage.SaveResult(second); err != nil {
		t.Fatalf("SaveResult() overwrite error = %v", err)
	}

	value, err = storage.GetMeta("finished_at")
	if err != nil {
		t.Fatalf("GetMeta() error = %v", err)
	}
	if value != "2024-05-02T12:00:00Z" {
		t.Errorf("Expected overwritten value, got %q", value)
	}
}

func TestNewSQLiteStorageInvalidPath(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "missing", "dir", "crawl.db")
	if _, err := NewSQLiteStorage(dbFile); err == nil {
		t.Error("Expected error for database in a missing directory")
	}
}
