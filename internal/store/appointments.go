package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

// UpdateProposalStatus moves a proposal to status on behalf of actor and keeps
// the companion appointment in step, all in one transaction. The actor must be
// a recipient; the proposer may only cancel or complete. Accepting or
// declining upserts the appointment keyed by message id; cancelling or
// completing only updates an existing one. The appointment is nil when none exists.
func (s *Store) UpdateProposalStatus(ctx context.Context, id model.MessageID, status model.Status, actor user.ID) (*model.Message, *model.Appointment, error) {
	if actor == "" {
		return nil, nil, fmt.Errorf("%w: actor is required", model.ErrorValidation)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, storeError("beginning transaction", err)
	}
	defer tx.Rollback()

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if msg.Kind != model.MessageKindProposal || msg.Proposal == nil {
		return nil, nil, fmt.Errorf("%w: message %s is not a proposal", model.ErrorValidation, id)
	}
	if !msg.HasRecipient(actor) {
		return nil, nil, fmt.Errorf("%w: %s is not a party to proposal %s", model.ErrorForbidden, actor, id)
	}
	if actor == msg.CreatorID && !status.ProposerMay() {
		return nil, nil, fmt.Errorf("%w: the proposer cannot set %s", model.ErrorForbidden, status)
	}
	if !msg.Proposal.Status.CanTransitionTo(status) {
		return nil, nil, fmt.Errorf("%w: %s to %s", model.ErrorInvalidTransition, msg.Proposal.Status, status)
	}

	now := s.clock.next()
	_, err = tx.ExecContext(ctx, `update messages
		set Proposal = json_set(Proposal, '$.status', ?, '$.actorId', ?), UpdatedAt = ?
		where ID = ?`, status, actor, now, id)
	if err != nil {
		return nil, nil, storeError("updating proposal", err)
	}

	switch {
	case status.CreatesAppointment():
		if err := s.upsertAppointment(ctx, tx, msg, status, actor, now); err != nil {
			return nil, nil, err
		}
	case status == model.StatusCancelled || status == model.StatusCompleted:
		_, err := tx.ExecContext(ctx, `update appointments set Status = ?, UpdatedAt = ? where MessageID = ?`, status, now, id)
		if err != nil {
			return nil, nil, storeError("updating appointment", err)
		}
	}

	appointment, err := appointmentForMessage(ctx, tx, id)
	if err != nil && !errors.Is(err, model.ErrorNotFound) {
		return nil, nil, err
	}
	updated, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storeError("committing status update", err)
	}

	return updated, appointment, nil
}

// upsertAppointment inserts the appointment for msg, with actor as the
// responding party, or, if one already exists for the message, only
// refreshes its status.
func (s *Store) upsertAppointment(ctx context.Context, tx *sqlx.Tx, msg *model.Message, status model.Status, actor user.ID, now int64) error {
	subject := msg.Proposal.SubjectRef
	if subject == "" {
		// best effort: inquiries are matched by party pair only
		ref, err := s.findSubjectRef(ctx, tx, msg.CreatorID, actor)
		if err != nil {
			log.Warnf("hydrating subject for message %s: %+v", msg.ID, err)
		}
		subject = ref
	}

	row := &appointmentRow{
		ID:         model.CreateID(),
		MessageID:  string(msg.ID),
		PartyAID:   string(msg.CreatorID),
		PartyBID:   string(actor),
		Status:     string(status),
		WhenAt:     msg.Proposal.When.UnixNano(),
		Mode:       string(msg.Proposal.Mode),
		SubjectRef: subject,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := tx.NamedExecContext(ctx, `insert into appointments
		(ID, MessageID, PartyAID, PartyBID, Status, WhenAt, Mode, SubjectRef, CreatedAt, UpdatedAt)
		values(:ID, :MessageID, :PartyAID, :PartyBID, :Status, :WhenAt, :Mode, :SubjectRef, :CreatedAt, :UpdatedAt)
		on conflict(MessageID) do update set Status = excluded.Status, UpdatedAt = excluded.UpdatedAt`, row)
	if err != nil {
		return storeError("upserting appointment", err)
	}
	return nil
}

func (s *Store) findSubjectRef(ctx context.Context, tx *sqlx.Tx, a, b user.ID) (string, error) {
	q, args, err := s.in(`select SubjectRef from inquiries
		where (StudentID in (?) and TutorID in (?)) or (StudentID in (?) and TutorID in (?))
		order by CreatedAt desc limit 1`, a.Variants(), b.Variants(), b.Variants(), a.Variants())
	if err != nil {
		return "", err
	}
	var ref string
	if err := tx.GetContext(ctx, &ref, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("finding inquiry: %w", err)
	}
	return ref, nil
}

func (s *Store) GetAppointment(ctx context.Context, id model.AppointmentID) (*model.Appointment, error) {
	row := appointmentRow{}
	if err := s.db.GetContext(ctx, &row, `select * from appointments where ID = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("appointment %s: %w", id, model.ErrorNotFound)
		}
		return nil, storeError("fetching appointment", err)
	}
	return row.toModel()
}

func (s *Store) AppointmentForMessage(ctx context.Context, id model.MessageID) (*model.Appointment, error) {
	return appointmentForMessage(ctx, s.db, id)
}

func appointmentForMessage(ctx context.Context, q sqlx.QueryerContext, id model.MessageID) (*model.Appointment, error) {
	row := appointmentRow{}
	if err := sqlx.GetContext(ctx, q, &row, `select * from appointments where MessageID = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("appointment for message %s: %w", id, model.ErrorNotFound)
		}
		return nil, storeError("fetching appointment", err)
	}
	return row.toModel()
}

func (s *Store) ListAppointments(ctx context.Context, participant user.ID) ([]*model.Appointment, error) {
	q, args, err := s.in(`select * from appointments where PartyAID in (?) or PartyBID in (?) order by CreatedAt`,
		participant.Variants(), participant.Variants())
	if err != nil {
		return nil, err
	}
	rows := []appointmentRow{}
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storeError("listing appointments", err)
	}
	appointments := make([]*model.Appointment, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, nil
}

func (s *Store) CreateInquiry(ctx context.Context, inquiry *model.Inquiry) (*model.Inquiry, error) {
	if inquiry.StudentID == "" || inquiry.TutorID == "" {
		return nil, fmt.Errorf("%w: inquiry needs a student and a tutor", model.ErrorValidation)
	}
	i := *inquiry
	i.ID = model.CreateID()
	now := s.clock.next()
	i.CreatedAt = fromNanos(now)

	_, err := s.db.NamedExecContext(ctx, `insert into inquiries
		(ID, StudentID, TutorID, SubjectRef, CreatedAt)
		values(:ID, :StudentID, :TutorID, :SubjectRef, :CreatedAt)`, &inquiryRow{
		ID:         i.ID,
		StudentID:  string(i.StudentID),
		TutorID:    string(i.TutorID),
		SubjectRef: i.SubjectRef,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, storeError("inserting inquiry", err)
	}
	return &i, nil
}
