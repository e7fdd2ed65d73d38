package history

// Schema holds the DDL for the pick history.
const Schema = `
CREATE TABLE IF NOT EXISTS picks (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    path        TEXT NOT NULL,
    framework   TEXT NOT NULL DEFAULT '',
    page_url    TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_picks_created ON picks(created_at DESC);
`
