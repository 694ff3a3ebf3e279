package simstore

const schema = `
CREATE TABLE IF NOT EXISTS branches (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    branched_from TEXT NOT NULL,
    cursor_date TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_branches_cursor_date ON branches(cursor_date);

-- Single-row pointer to the active branch. Activity is derived from this
-- row, so switching branches is one write and can never leave zero or two
-- active branches behind.
CREATE TABLE IF NOT EXISTS clock_pointer (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    active_branch_id TEXT NOT NULL REFERENCES branches(id),
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scheduled_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    description TEXT,
    scheduled_for TEXT NOT NULL,
    payload TEXT,
    executed BOOLEAN NOT NULL DEFAULT FALSE,
    executed_at TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_scheduled_for ON scheduled_events(scheduled_for, seq);
CREATE INDEX IF NOT EXISTS idx_events_type ON scheduled_events(type);
CREATE INDEX IF NOT EXISTS idx_events_executed ON scheduled_events(executed);

CREATE TABLE IF NOT EXISTS day_packets (
    date TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS finance_snapshots (
    as_of TEXT PRIMARY KEY,
    cash_on_hand_usd REAL NOT NULL,
    monthly_burn_usd REAL NOT NULL,
    revenue_mtd_usd REAL NOT NULL,
    ap_usd REAL NOT NULL,
    ar_usd REAL NOT NULL,
    headcount INTEGER NOT NULL
);
`
