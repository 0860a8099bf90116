package storage

const schemaSQL = `
-- One row per stored HTML page; written once after a crawl
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    status_code INTEGER NOT NULL,
    title TEXT,
    plain_text TEXT,
    html TEXT,
    html_size_bytes INTEGER,
    link_count INTEGER NOT NULL DEFAULT 0,
    ttfb_ms INTEGER,
    download_ms INTEGER,
    fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_fetched ON pages(fetched_at);

-- Outbound links of stored pages, in the page's link order
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_url TEXT NOT NULL,
    target_url TEXT NOT NULL,
    position INTEGER NOT NULL,
    anchor_text TEXT,
    UNIQUE(source_url, target_url)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_url);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_url);

-- Hosts suspended during the crawl
CREATE TABLE IF NOT EXISTS blocked_hosts (
    host TEXT PRIMARY KEY NOT NULL,
    recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS crawl_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    error_type TEXT NOT NULL,
    error_message TEXT,
    occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_errors_url ON crawl_errors(url);
CREATE INDEX IF NOT EXISTS idx_errors_type ON crawl_errors(error_type);

-- View of how often each page is linked from other stored pages
CREATE VIEW IF NOT EXISTS inbound_link_counts AS
SELECT target_url AS url, COUNT(*) AS inbound
FROM links
GROUP BY target_url;

-- Crawl meta table stores run metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`

// Tables cleared before a crawl result is written
var resultTables = []string{"links", "pages", "blocked_hosts", "crawl_errors"}
