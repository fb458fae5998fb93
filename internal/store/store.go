package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"uk.co.dudmesh.conversations/internal/model"
)

type Config interface {
	DatabaseURL() string
}

// Store is the durable home of messages, appointments and inquiries.
// Writes are serialized over a single connection so that timestamps assigned
// inside a transaction follow commit order.
type Store struct {
	db    *sqlx.DB
	clock *clock
}

func New(config Config) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", config.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, clock: &clock{now: time.Now}}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	var latest int64
	if err := db.Get(&latest, `select coalesce(max(CreatedAt), 0) from messages`); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading latest timestamp: %w", err)
	}
	s.clock.last = latest

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("pinging database", err)
	}
	return nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`create table if not exists messages(
		ID               text not null primary key,
		CreatorID        text not null,
		Recipients       text not null,
		SenderRole       text not null,
		Kind             text not null,
		Body             text not null default '',
		Proposal         text null,
		ResultAttachment text null,
		SeenBy           text null,
		ReplyTo          text null,
		CreatedAt        integer not null,
		UpdatedAt        integer not null
	)`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	_, err = s.db.Exec(`create index if not exists messages_created_at on messages(CreatedAt)`)
	if err != nil {
		return fmt.Errorf("creating messages index: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists appointments(
		ID         text not null primary key,
		MessageID  text not null unique,
		PartyAID   text not null,
		PartyBID   text not null,
		Status     text not null,
		WhenAt     integer not null,
		Mode       text not null,
		SubjectRef text not null default '',
		CreatedAt  integer not null,
		UpdatedAt  integer not null
	)`)
	if err != nil {
		return fmt.Errorf("creating appointments table: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists inquiries(
		ID         text not null primary key,
		StudentID  text not null,
		TutorID    text not null,
		SubjectRef text not null,
		CreatedAt  integer not null
	)`)
	if err != nil {
		return fmt.Errorf("creating inquiries table: %w", err)
	}

	return nil
}

// clock hands out strictly increasing unix-nano timestamps.
type clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (c *clock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UTC().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return n
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrorStore, err)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// in expands slice arguments for "in (?)" clauses.
func (s *Store) in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expanding query: %w", err)
	}
	return s.db.Rebind(q), a, nil
}
