package store

const schema = `
CREATE TABLE IF NOT EXISTS categories (
    id   TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tools (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    slug               TEXT NOT NULL UNIQUE,
    category_id        TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL DEFAULT '',
    description        TEXT NOT NULL DEFAULT '',
    pricing            TEXT NOT NULL DEFAULT 'Freemium',
    monthly_price      REAL,
    supports_korean    BOOLEAN NOT NULL DEFAULT 0,
    internal_score     REAL NOT NULL DEFAULT 0,
    external_score     REAL NOT NULL DEFAULT 0,
    hybrid_score       REAL NOT NULL DEFAULT 0,
    ranking_score      REAL NOT NULL DEFAULT 0,
    rating_avg         REAL NOT NULL DEFAULT 0,
    review_count       INTEGER NOT NULL DEFAULT 0,
    upvote_count       INTEGER NOT NULL DEFAULT 0,
    visit_count        INTEGER NOT NULL DEFAULT 0,
    weekly_visit_delta INTEGER NOT NULL DEFAULT 0,
    trend_direction    TEXT NOT NULL DEFAULT 'new',
    trend_magnitude    INTEGER NOT NULL DEFAULT 0,
    confidence_level   TEXT NOT NULL DEFAULT 'none',
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tools_category ON tools(category_id);
CREATE INDEX IF NOT EXISTS idx_tools_hybrid ON tools(hybrid_score);

CREATE TABLE IF NOT EXISTS tool_external_ids (
    tool_id    TEXT NOT NULL REFERENCES tools(id),
    source_key TEXT NOT NULL,
    identifier TEXT NOT NULL,
    PRIMARY KEY (tool_id, source_key)
);

CREATE TABLE IF NOT EXISTS tool_external_scores (
    tool_id          TEXT NOT NULL REFERENCES tools(id),
    source_key       TEXT NOT NULL,
    normalized_score REAL NOT NULL,
    raw_data         TEXT NOT NULL DEFAULT '{}',
    fetched_at       DATETIME NOT NULL,
    PRIMARY KEY (tool_id, source_key)
);

CREATE TABLE IF NOT EXISTS external_data_sources (
    source_key      TEXT PRIMARY KEY,
    last_status     TEXT NOT NULL,
    last_fetched_at DATETIME,
    last_error      TEXT NOT NULL DEFAULT '',
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_weights (
    weight_key   TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    weight_value REAL NOT NULL,
    PRIMARY KEY (weight_key, category)
);

CREATE TABLE IF NOT EXISTS trend_snapshots (
    tool_id       TEXT NOT NULL REFERENCES tools(id),
    snapshot_date TEXT NOT NULL,
    hybrid_score  REAL NOT NULL,
    visit_count   INTEGER NOT NULL DEFAULT 0,
    alerted       BOOLEAN NOT NULL DEFAULT 0,
    PRIMARY KEY (tool_id, snapshot_date)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_date ON trend_snapshots(snapshot_date);

CREATE TABLE IF NOT EXISTS recommendation_mappings (
    scope   TEXT NOT NULL,
    slug    TEXT NOT NULL,
    tool_id TEXT NOT NULL REFERENCES tools(id),
    level   TEXT NOT NULL,
    PRIMARY KEY (scope, slug, tool_id)
);

CREATE TABLE IF NOT EXISTS tool_suggestions (
    id             TEXT PRIMARY KEY,
    tool_name      TEXT NOT NULL,
    tool_url       TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    category_slug  TEXT NOT NULL DEFAULT '',
    votes          INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'pending',
    merged_tool_id TEXT,
    merged_at      DATETIME,
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_status ON tool_suggestions(status);
`
