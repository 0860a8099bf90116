// Package storage exports crawl results to SQLite.
// A database holds the result of one run: pages, their links, blocked
// hosts, the error log and run metadata.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/littlesearch/littlesearch/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Result is everything a finished crawl hands to the exporter
type Result struct {
	Pages        []*crawler.Page
	BlockedHosts []string
	Errors       []crawler.CrawlError
	Meta         map[string]string
}

// SQLiteStorage writes crawl results to a SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveResult replaces the stored crawl with res in a single transaction
func (s *SQLiteStorage) SaveResult(res *Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range resultTables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := savePages(tx, res.Pages); err != nil {
		return err
	}
	if err := saveBlockedHosts(tx, res.BlockedHosts); err != nil {
		return err
	}
	if err := saveErrors(tx, res.Errors); err != nil {
		return err
	}

	keys := make([]string, 0, len(res.Meta))
	for k := range res.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
			k, res.Meta[k],
		); err != nil {
			return fmt.Errorf("failed to set meta %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func savePages(tx *sql.Tx, pages []*crawler.Page) error {
	if len(pages) == 0 {
		return nil
	}

	pageStmt, err := tx.Prepare(`
		INSERT INTO pages (
			url, status_code, title, plain_text, html,
			html_size_bytes, link_count, ttfb_ms, download_ms, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page statement: %w", err)
	}
	defer func() { _ = pageStmt.Close() }()

	linkStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO links (source_url, target_url, position, anchor_text)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link statement: %w", err)
	}
	defer func() { _ = linkStmt.Close() }()

	for _, p := range pages {
		if _, err := pageStmt.Exec(
			p.URL,
			p.StatusCode,
			p.Title,
			p.Text,
			p.HTML,
			len(p.HTML),
			len(p.Links),
			p.TTFB.Milliseconds(),
			p.DownloadTime.Milliseconds(),
			p.FetchedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}

		for i, target := range p.Links {
			if _, err := linkStmt.Exec(p.URL, target, i, nullIfEmpty(p.Anchors[target])); err != nil {
				return fmt.Errorf("failed to insert link %s -> %s: %w", p.URL, target, err)
			}
		}
	}

	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func saveBlockedHosts(tx *sql.Tx, hosts []string) error {
	now := time.Now().UTC()
	for _, host := range hosts {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO blocked_hosts (host, recorded_at) VALUES (?, ?)",
			host, now,
		); err != nil {
			return fmt.Errorf("failed to insert blocked host %s: %w", host, err)
		}
	}
	return nil
}

func saveErrors(tx *sql.Tx, crawlErrors []crawler.CrawlError) error {
	if len(crawlErrors) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO crawl_errors (
			url, error_type, error_message, occurred_at
		) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range crawlErrors {
		if _, err := stmt.Exec(e.URL, e.ErrorType, e.ErrorMessage, e.OccurredAt.UTC()); err != nil {
			return fmt.Errorf("failed to save error for %s: %w", e.URL, err)
		}
	}
	return nil
}

// LoadPages reads the stored pages back, ordered by URL, with their links
func (s *SQLiteStorage) LoadPages() ([]*crawler.Page, error) {
	rows, err := s.db.Query(`
		SELECT url, status_code, COALESCE(title, ''), COALESCE(plain_text, ''),
		       COALESCE(html, ''), COALESCE(ttfb_ms, 0), COALESCE(download_ms, 0), fetched_at
		FROM pages
		ORDER BY url
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pages []*crawler.Page
	byURL := make(map[string]*crawler.Page)
	for rows.Next() {
		p := &crawler.Page{}
		var ttfbMS, downloadMS int64
		if err := rows.Scan(&p.URL, &p.StatusCode, &p.Title, &p.Text, &p.HTML, &ttfbMS, &downloadMS, &p.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.TTFB = time.Duration(ttfbMS) * time.Millisecond
		p.DownloadTime = time.Duration(downloadMS) * time.Millisecond
		pages = append(pages, p)
		byURL[p.URL] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	linkRows, err := s.db.Query(`
		SELECT source_url, target_url, COALESCE(anchor_text, '')
		FROM links
		ORDER BY source_url, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = linkRows.Close() }()

	for linkRows.Next() {
		var source, target, anchor string
		if err := linkRows.Scan(&source, &target, &anchor); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		p, ok := byURL[source]
		if !ok {
			continue
		}
		p.Links = append(p.Links, target)
		if anchor != "" {
			if p.Anchors == nil {
				p.Anchors = make(map[string]string)
			}
			p.Anchors[target] = anchor
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}

	return pages, nil
}

// LoadBlockedHosts returns the stored blocked hosts in sorted order
func (s *SQLiteStorage) LoadBlockedHosts() ([]string, error) {
	rows, err := s.db.Query("SELECT host FROM blocked_hosts ORDER BY host")
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked hosts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan blocked host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// LoadErrors returns the stored error log in the order it was recorded
func (s *SQLiteStorage) LoadErrors() ([]crawler.CrawlError, error) {
	rows, err := s.db.Query(`
		SELECT url, error_type, COALESCE(error_message, ''), occurred_at
		FROM crawl_errors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var crawlErrors []crawler.CrawlError
	for rows.Next() {
		var e crawler.CrawlError
		if err := rows.Scan(&e.URL, &e.ErrorType, &e.ErrorMessage, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan error: %w", err)
		}
		crawlErrors = append(crawlErrors, e)
	}
	return crawlErrors, rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}
