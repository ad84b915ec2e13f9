package state

// Schema is the sqlite schema for the durable store backend. The seq
// columns carry the insertion/creation order the snapshot contract
// requires; message ids are derived from the message seq.
const Schema = `
CREATE TABLE IF NOT EXISTS persona (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	name TEXT NOT NULL,
	bio TEXT NOT NULL DEFAULT '',
	tone TEXT NOT NULL,
	objective TEXT NOT NULL DEFAULT '',
	greeting TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS groups (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	joined_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id TEXT NOT NULL REFERENCES groups(group_id),
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	from_agent BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id);

CREATE TABLE IF NOT EXISTS status (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	connected BOOLEAN NOT NULL DEFAULT 0,
	last_inbound TEXT,
	last_outbound TEXT
);
`
