package sqlite

// Timestamps are Unix milliseconds so range deletes compare numerically.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'running',
    roots TEXT NOT NULL,
    target TEXT NOT NULL,
    threshold REAL NOT NULL,
    dry_run INTEGER NOT NULL DEFAULT 0,
    delete_source INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    files INTEGER NOT NULL DEFAULT 0,
    embedded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    duplicates INTEGER NOT NULL DEFAULT 0,
    relocated INTEGER NOT NULL DEFAULT 0,
    relocation_failures INTEGER NOT NULL DEFAULT 0,
    comparisons INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS relocations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    duplicate TEXT NOT NULL,
    original TEXT NOT NULL,
    similarity REAL NOT NULL,
    destination TEXT NOT NULL DEFAULT '',
    deleted_source INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
    UNIQUE (run_id, duplicate)
);

CREATE INDEX IF NOT EXISTS idx_relocations_run ON relocations(run_id);
`
