package store

// Schema contains the complete DDL for the ezpage tables.
const Schema = `
-- Page documents: one serialized node tree per page
CREATE TABLE IF NOT EXISTS pages (
    id          TEXT PRIMARY KEY,
    content     TEXT NOT NULL,
    touched     INTEGER NOT NULL DEFAULT 0,
    revision    INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Action journal: one row per applied or rejected action
CREATE TABLE IF NOT EXISTS action_log (
    id          TEXT PRIMARY KEY,
    page_id     TEXT NOT NULL,
    session_id  TEXT NOT NULL DEFAULT '',
    seq         INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    node_id     TEXT NOT NULL DEFAULT '',
    ok          INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_log_page ON action_log(page_id, created_at);
`
