package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Store backend. It preserves exactly the
// same invariants as MemoryStore: one mutex serializes all mutators, and
// every multi-statement mutation runs inside a transaction.
type SQLiteStore struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath and seeds the
// persona and status singletons when absent.
func NewSQLiteStore(dbPath string, persona Persona) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO persona (id, name, bio, tone, objective, greeting) VALUES (1, ?, ?, ?, ?, ?)`,
		persona.Name, persona.Bio, string(persona.Tone), persona.Objective, persona.Greeting,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed persona: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO status (id, connected) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed status: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetState reads all four entity kinds inside one transaction.
func (s *SQLiteStore) GetState() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := AgentState{Groups: []Group{}, Messages: []Message{}}
	tx, err := s.db.Begin()
	if err != nil {
		return st
	}
	defer tx.Rollback()

	st.Persona, _ = readPersona(tx)
	st.Status, _ = readStatus(tx)

	rows, err := tx.Query(`SELECT group_id, name, description, joined_at FROM groups ORDER BY seq`)
	if err == nil {
		for rows.Next() {
			var g Group
			var joined string
			if err := rows.Scan(&g.ID, &g.Name, &g.Description, &joined); err == nil {
				g.JoinedAt, _ = time.Parse(time.RFC3339Nano, joined)
				st.Groups = append(st.Groups, g)
			}
		}
		rows.Close()
	}

	rows, err = tx.Query(`SELECT seq, group_id, sender, content, timestamp, from_agent FROM messages ORDER BY seq`)
	if err == nil {
		for rows.Next() {
			var m Message
			var seq int64
			var ts string
			if err := rows.Scan(&seq, &m.GroupID, &m.Sender, &m.Content, &ts, &m.FromAgent); err == nil {
				m.ID = fmt.Sprintf("msg-%d", seq)
				m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
				st.Messages = append(st.Messages, m)
			}
		}
		rows.Close()
	}

	return st
}

func readPersona(tx *sql.Tx) (Persona, error) {
	var p Persona
	var tone string
	err := tx.QueryRow(`SELECT name, bio, tone, objective, greeting FROM persona WHERE id = 1`).
		Scan(&p.Name, &p.Bio, &tone, &p.Objective, &p.Greeting)
	p.Tone = Tone(tone)
	return p, err
}

func readStatus(tx *sql.Tx) (Status, error) {
	var st Status
	var inbound, outbound sql.NullString
	err := tx.QueryRow(`SELECT connected, last_inbound, last_outbound FROM status WHERE id = 1`).
		Scan(&st.Connected, &inbound, &outbound)
	if inbound.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, inbound.String); perr == nil {
			st.LastInbound = &t
		}
	}
	if outbound.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, outbound.String); perr == nil {
			st.LastOutbound = &t
		}
	}
	return st, err
}

// UpdatePersona merges non-empty patch fields into the persona row.
func (s *SQLiteStore) UpdatePersona(patch PersonaPatch) (Persona, error) {
	if patch.Tone != "" && !patch.Tone.Valid() {
		return Persona{}, &ValidationError{Field: "tone", Reason: fmt.Sprintf("%q is not one of friendly, professional, enthusiastic, analytical", patch.Tone)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Persona{}, fmt.Errorf("update persona: %w", err)
	}
	defer tx.Rollback()

	p, err := readPersona(tx)
	if err != nil {
		return Persona{}, fmt.Errorf("update persona: %w", err)
	}
	applyPersonaPatch(&p, patch)
	if _, err := tx.Exec(
		`UPDATE persona SET name = ?, bio = ?, tone = ?, objective = ?, greeting = ? WHERE id = 1`,
		p.Name, p.Bio, string(p.Tone), p.Objective, p.Greeting,
	); err != nil {
		return Persona{}, fmt.Errorf("update persona: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Persona{}, fmt.Errorf("update persona: %w", err)
	}
	return p, nil
}

// AddGroup registers or updates a group row. JoinedAt survives
// re-registration because the insert path only runs once per id.
func (s *SQLiteStore) AddGroup(id, name, description string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Group{ID: id, Name: name, Description: description}
	}
	defer tx.Rollback()

	var g Group
	var joined string
	err = tx.QueryRow(`SELECT group_id, name, description, joined_at FROM groups WHERE group_id = ?`, id).
		Scan(&g.ID, &g.Name, &g.Description, &joined)
	switch {
	case err == sql.ErrNoRows:
		if name == "" {
			name = id
		}
		g = Group{ID: id, Name: name, Description: description, JoinedAt: s.now().UTC()}
		_, err = tx.Exec(
			`INSERT INTO groups (group_id, name, description, joined_at) VALUES (?, ?, ?, ?)`,
			g.ID, g.Name, g.Description, g.JoinedAt.Format(time.RFC3339Nano),
		)
	case err == nil:
		g.JoinedAt, _ = time.Parse(time.RFC3339Nano, joined)
		if name != "" {
			g.Name = name
		}
		if description != "" {
			g.Description = description
		}
		_, err = tx.Exec(`UPDATE groups SET name = ?, description = ? WHERE group_id = ?`, g.Name, g.Description, g.ID)
	}
	if err != nil {
		return g
	}
	_ = tx.Commit()
	return g
}

// LogMessage appends a message row and advances the status timestamps.
// The group check, the insert, and the status update share one
// transaction under the store mutex.
func (s *SQLiteStore) LogMessage(groupID, sender, content string, fromAgent bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM groups WHERE group_id = ?`, groupID).Scan(&exists); err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}
	if exists == 0 {
		return Message{}, &NotFoundError{Kind: "group", ID: groupID}
	}

	m := Message{
		GroupID:   groupID,
		Sender:    sender,
		Content:   content,
		Timestamp: s.now().UTC(),
		FromAgent: fromAgent,
	}
	res, err := tx.Exec(
		`INSERT INTO messages (group_id, sender, content, timestamp, from_agent) VALUES (?, ?, ?, ?, ?)`,
		m.GroupID, m.Sender, m.Content, m.Timestamp.Format(time.RFC3339Nano), m.FromAgent,
	)
	if err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}
	m.ID = fmt.Sprintf("msg-%d", seq)

	column := "last_inbound"
	if fromAgent {
		column = "last_outbound"
	}
	ts := m.Timestamp.Format(time.RFC3339Nano)
	if _, err := tx.Exec(
		`UPDATE status SET `+column+` = ? WHERE id = 1 AND (`+column+` IS NULL OR `+column+` < ?)`,
		ts, ts,
	); err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("log message: %w", err)
	}
	return m, nil
}

// SetConnected records the outcome of the latest external call.
func (s *SQLiteStore) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(`UPDATE status SET connected = ? WHERE id = 1`, connected)
}
