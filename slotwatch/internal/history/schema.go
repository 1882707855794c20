package history

const schema = `
CREATE TABLE IF NOT EXISTS checks (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	status        TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	months        TEXT NOT NULL DEFAULT '[]',
	alerts        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_started ON checks(started_at DESC);

CREATE TABLE IF NOT EXISTS notified (
	month       TEXT PRIMARY KEY,
	dates       TEXT NOT NULL,
	notified_at INTEGER NOT NULL
);
`
