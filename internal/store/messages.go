package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

// ListFilter narrows ListMessages. The zero value lists everything visible.
type ListFilter struct {
	With   user.ID   // only messages the other participant also received
	Since  time.Time // only messages created strictly after Since
	Before time.Time // only messages created strictly before Before
	Limit  int       // only the newest Limit messages; zero means all
}

const recipientClause = `exists (select 1 from json_each(m.Recipients) where json_each.value in (?))`

func validateMessage(m *model.Message) error {
	if m.CreatorID == "" {
		return fmt.Errorf("%w: creator is required", model.ErrorValidation)
	}
	if len(m.Recipients) == 0 {
		return fmt.Errorf("%w: recipients are required", model.ErrorValidation)
	}
	if !m.SenderRole.Valid() {
		return fmt.Errorf("%w: sender role is required", model.ErrorValidation)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown message kind %q", model.ErrorValidation, m.Kind)
	}
	if (m.Kind == model.MessageKindProposal) != (m.Proposal != nil) {
		return fmt.Errorf("%w: proposal must be present exactly for proposal messages", model.ErrorValidation)
	}
	if (m.Kind == model.MessageKindResultAttachment) != (m.ResultAttachment != nil) {
		return fmt.Errorf("%w: result attachment must be present exactly for result-attachment messages", model.ErrorValidation)
	}
	if p := m.Proposal; p != nil {
		if p.When.IsZero() {
			return fmt.Errorf("%w: proposal time is required", model.ErrorValidation)
		}
		if !p.Mode.Valid() {
			return fmt.Errorf("%w: unknown proposal mode %q", model.ErrorValidation, p.Mode)
		}
	}
	if r := m.ResultAttachment; r != nil && r.AppointmentID == "" {
		return fmt.Errorf("%w: result attachment needs an appointment", model.ErrorValidation)
	}
	return nil
}

// CreateMessage assigns the id and timestamps and persists the message.
// The creator is always kept among the recipients.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	m := *msg
	m.Recipients = append([]user.ID{}, msg.Recipients...)
	if !m.HasRecipient(m.CreatorID) {
		m.Recipients = append(m.Recipients, m.CreatorID)
	}
	m.SeenBy = []user.ID{}
	if msg.Proposal != nil {
		p := *msg.Proposal
		p.Status = model.StatusPending
		p.ActorID = ""
		m.Proposal = &p
	}

	id, err := model.CreateOrderedID()
	if err != nil {
		return nil, fmt.Errorf("creating message id: %w", err)
	}
	m.ID = model.MessageID(id)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storeError("beginning transaction", err)
	}
	defer tx.Rollback()

	if m.ReplyTo != "" {
		target, err := getMessage(ctx, tx, m.ReplyTo)
		if errors.Is(err, model.ErrorNotFound) {
			return nil, fmt.Errorf("%w: reply target %s does not exist", model.ErrorValidation, m.ReplyTo)
		}
		if err != nil {
			return nil, err
		}
		if !sameConversation(target, &m) {
			return nil, fmt.Errorf("%w: reply target %s belongs to another conversation", model.ErrorValidation, m.ReplyTo)
		}
	}

	now := fromNanos(s.clock.next())
	m.CreatedAt = now
	m.UpdatedAt = now

	row, err := newMessageRow(&m)
	if err != nil {
		return nil, err
	}
	res, err := tx.NamedExecContext(ctx, `insert into messages
		(ID, CreatorID, Recipients, SenderRole, Kind, Body, Proposal, ResultAttachment, SeenBy, ReplyTo, CreatedAt, UpdatedAt)
		values(:ID, :CreatorID, :Recipients, :SenderRole, :Kind, :Body, :Proposal, :ResultAttachment, :SeenBy, :ReplyTo, :CreatedAt, :UpdatedAt)`, row)
	if err != nil {
		return nil, storeError("inserting message", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return nil, storeError("getting rows affected", err)
	} else if rows != 1 {
		return nil, fmt.Errorf("%w: expected 1 row to be affected, got %d", model.ErrorStore, rows)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("committing message", err)
	}

	return &m, nil
}

// sameConversation reports whether reply can answer target: the replying
// creator received target and at least one other participant of the reply
// did too. Stored recipients are canonical, so variants already match.
func sameConversation(target, reply *model.Message) bool {
	if !target.HasRecipient(reply.CreatorID) {
		return false
	}
	for _, r := range reply.Recipients {
		if r != reply.CreatorID && target.HasRecipient(r) {
			return true
		}
	}
	return false
}

func (s *Store) GetMessage(ctx context.Context, id model.MessageID) (*model.Message, error) {
	return getMessage(ctx, s.db, id)
}

func getMessage(ctx context.Context, q sqlx.QueryerContext, id model.MessageID) (*model.Message, error) {
	row := messageRow{}
	err := sqlx.GetContext(ctx, q, &row, `select * from messages where ID = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, model.ErrorNotFound)
		}
		return nil, storeError("fetching message", err)
	}
	return row.toModel()
}

// ListMessages returns what participant sees on the page of the given role:
// their own messages sent under that role, and messages from others sent
// under the opposite role. Oldest first.
func (s *Store) ListMessages(ctx context.Context, participant user.ID, role model.Role, filter ListFilter) ([]*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role is required", model.ErrorValidation)
	}
	self := participant.Variants()

	var sb strings.Builder
	args := []interface{}{self}
	sb.WriteString(`select m.* from messages m where ` + recipientClause)
	sb.WriteString(` and ((m.CreatorID in (?) and m.SenderRole = ?) or (m.CreatorID not in (?) and m.SenderRole = ?))`)
	args = append(args, self, role, self, role.Opposite())

	if filter.With != "" {
		sb.WriteString(` and ` + recipientClause)
		args = append(args, filter.With.Variants())
	}
	if !filter.Since.IsZero() {
		sb.WriteString(` and m.CreatedAt > ?`)
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Before.IsZero() {
		sb.WriteString(` and m.CreatedAt < ?`)
		args = append(args, filter.Before.UnixNano())
	}
	if filter.Limit <= 0 {
		sb.WriteString(` order by m.CreatedAt, m.ID`)
		return s.selectMessages(ctx, sb.String(), args...)
	}

	// the newest Limit messages, still returned oldest first
	sb.WriteString(fmt.Sprintf(` order by m.CreatedAt desc, m.ID desc limit %d`, filter.Limit))
	query := `select * from (` + sb.String() + `) order by CreatedAt, ID`
	return s.selectMessages(ctx, query, args...)
}

// Poll returns messages other participants sent to participant under the
// opposite role after since, oldest first. It never writes.
func (s *Store) Poll(ctx context.Context, participant user.ID, role model.Role, since time.Time) ([]*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role is required", model.ErrorValidation)
	}
	self := participant.Variants()
	query := `select m.* from messages m where ` + recipientClause + `
		and m.SenderRole = ? and m.CreatorID not in (?) and m.CreatedAt > ?
		order by m.CreatedAt, m.ID`
	var sinceNanos int64
	if !since.IsZero() {
		sinceNanos = since.UnixNano()
	}
	return s.selectMessages(ctx, query, self, role.Opposite(), self, sinceNanos)
}

func (s *Store) selectMessages(ctx context.Context, query string, args ...interface{}) ([]*model.Message, error) {
	q, a, err := s.in(query, args...)
	if err != nil {
		return nil, err
	}
	rows := []messageRow{}
	if err := s.db.SelectContext(ctx, &rows, q, a...); err != nil {
		return nil, storeError("listing messages", err)
	}
	return messagesFromRows(rows)
}
