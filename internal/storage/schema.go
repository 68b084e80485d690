package storage

const schema = `
-- One row per tracked (user, problem). Times are unix milliseconds.
CREATE TABLE IF NOT EXISTS review_records (
    user_id TEXT NOT NULL,
    problem_id TEXT NOT NULL,
    title TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    topics TEXT NOT NULL, -- JSON array of normalized topic names
    confidence INTEGER NOT NULL,
    ease_factor REAL NOT NULL CHECK (ease_factor >= 1.3),
    interval_days INTEGER NOT NULL CHECK (interval_days >= 1),
    repetitions INTEGER NOT NULL DEFAULT 0,
    total_reviews INTEGER NOT NULL CHECK (total_reviews >= 1),
    confidence_sum INTEGER NOT NULL,
    mastery_level TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    last_reviewed_at INTEGER NOT NULL,
    next_review_date INTEGER NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    insights TEXT NOT NULL DEFAULT '[]',

    PRIMARY KEY (user_id, problem_id)
);

CREATE INDEX IF NOT EXISTS idx_review_records_due
    ON review_records (user_id, next_review_date);

-- Append-only log of review submissions. 'day' is the calendar day of the
-- review in the reviewer's time zone.
CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    problem_id TEXT NOT NULL,
    confidence INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    day TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_events_user_day
    ON review_events (user_id, day);

-- The 'sources' table tracks where solved-problem registry files come from,
-- either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);

-- Problems a user has already solved, as read from a source.
CREATE TABLE IF NOT EXISTS solved_problems (
    source_id INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    problem_id TEXT NOT NULL,
    title TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    topics TEXT NOT NULL,

    PRIMARY KEY (source_id, user_id, problem_id),
    FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
);
`
