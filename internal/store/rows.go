package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

type messageRow struct {
	ID               string         `db:"ID"`
	CreatorID        string         `db:"CreatorID"`
	Recipients       string         `db:"Recipients"`
	SenderRole       string         `db:"SenderRole"`
	Kind             string         `db:"Kind"`
	Body             string         `db:"Body"`
	Proposal         sql.NullString `db:"Proposal"`
	ResultAttachment sql.NullString `db:"ResultAttachment"`
	SeenBy           sql.NullString `db:"SeenBy"`
	ReplyTo          sql.NullString `db:"ReplyTo"`
	CreatedAt        int64          `db:"CreatedAt"`
	UpdatedAt        int64          `db:"UpdatedAt"`
}

type appointmentRow struct {
	ID         string `db:"ID"`
	MessageID  string `db:"MessageID"`
	PartyAID   string `db:"PartyAID"`
	PartyBID   string `db:"PartyBID"`
	Status     string `db:"Status"`
	WhenAt     int64  `db:"WhenAt"`
	Mode       string `db:"Mode"`
	SubjectRef string `db:"SubjectRef"`
	CreatedAt  int64  `db:"CreatedAt"`
	UpdatedAt  int64  `db:"UpdatedAt"`
}

type inquiryRow struct {
	ID         string `db:"ID"`
	StudentID  string `db:"StudentID"`
	TutorID    string `db:"TutorID"`
	SubjectRef string `db:"SubjectRef"`
	CreatedAt  int64  `db:"CreatedAt"`
}

func newMessageRow(m *model.Message) (*messageRow, error) {
	recipients, err := json.Marshal(m.Recipients)
	if err != nil {
		return nil, fmt.Errorf("marshalling recipients: %w", err)
	}
	seenBy := m.SeenBy
	if seenBy == nil {
		seenBy = []user.ID{}
	}
	seen, err := json.Marshal(seenBy)
	if err != nil {
		return nil, fmt.Errorf("marshalling seen by: %w", err)
	}

	row := &messageRow{
		ID:         string(m.ID),
		CreatorID:  string(m.CreatorID),
		Recipients: string(recipients),
		SenderRole: string(m.SenderRole),
		Kind:       string(m.Kind),
		Body:       m.Body,
		SeenBy:     sql.NullString{String: string(seen), Valid: true},
		ReplyTo:    sql.NullString{String: string(m.ReplyTo), Valid: m.ReplyTo != ""},
		CreatedAt:  m.CreatedAt.UnixNano(),
		UpdatedAt:  m.UpdatedAt.UnixNano(),
	}

	if m.Proposal != nil {
		raw, err := json.Marshal(m.Proposal)
		if err != nil {
			return nil, fmt.Errorf("marshalling proposal: %w", err)
		}
		row.Proposal = sql.NullString{String: string(raw), Valid: true}
	}
	if m.ResultAttachment != nil {
		raw, err := json.Marshal(m.ResultAttachment)
		if err != nil {
			return nil, fmt.Errorf("marshalling result attachment: %w", err)
		}
		row.ResultAttachment = sql.NullString{String: string(raw), Valid: true}
	}

	return row, nil
}

// toModel canonicalizes every identifier on the way out, so rows written
// before normalization surface with the same ids as new ones.
func (r *messageRow) toModel() (*model.Message, error) {
	creator, err := user.Parse(r.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("message %s creator: %w", r.ID, err)
	}
	recipients, err := parseIDList(r.Recipients)
	if err != nil {
		return nil, fmt.Errorf("message %s recipients: %w", r.ID, err)
	}
	seenBy := []user.ID{}
	if r.SeenBy.Valid {
		seenBy, err = parseIDList(r.SeenBy.String)
		if err != nil {
			return nil, fmt.Errorf("message %s seen by: %w", r.ID, err)
		}
	}

	m := &model.Message{
		ID:         model.MessageID(r.ID),
		CreatorID:  creator,
		Recipients: recipients,
		SenderRole: model.Role(r.SenderRole),
		Kind:       model.MessageKind(r.Kind),
		Body:       r.Body,
		SeenBy:     seenBy,
		ReplyTo:    model.MessageID(r.ReplyTo.String),
		CreatedAt:  fromNanos(r.CreatedAt),
		UpdatedAt:  fromNanos(r.UpdatedAt),
	}

	if r.Proposal.Valid {
		m.Proposal = &model.Proposal{}
		if err := json.Unmarshal([]byte(r.Proposal.String), m.Proposal); err != nil {
			return nil, fmt.Errorf("message %s proposal: %w", r.ID, err)
		}
		if m.Proposal.ActorID != "" {
			if m.Proposal.ActorID, err = user.Parse(string(m.Proposal.ActorID)); err != nil {
				return nil, fmt.Errorf("message %s actor: %w", r.ID, err)
			}
		}
	}
	if r.ResultAttachment.Valid {
		m.ResultAttachment = &model.ResultAttachment{}
		if err := json.Unmarshal([]byte(r.ResultAttachment.String), m.ResultAttachment); err != nil {
			return nil, fmt.Errorf("message %s result attachment: %w", r.ID, err)
		}
	}

	return m, nil
}

func (r *appointmentRow) toModel() (*model.Appointment, error) {
	partyA, err := user.Parse(r.PartyAID)
	if err != nil {
		return nil, fmt.Errorf("appointment %s party a: %w", r.ID, err)
	}
	partyB, err := user.Parse(r.PartyBID)
	if err != nil {
		return nil, fmt.Errorf("appointment %s party b: %w", r.ID, err)
	}
	return &model.Appointment{
		ID:         model.AppointmentID(r.ID),
		MessageID:  model.MessageID(r.MessageID),
		PartyAID:   partyA,
		PartyBID:   partyB,
		Status:     model.Status(r.Status),
		When:       fromNanos(r.WhenAt),
		Mode:       model.ProposalMode(r.Mode),
		SubjectRef: r.SubjectRef,
		CreatedAt:  fromNanos(r.CreatedAt),
		UpdatedAt:  fromNanos(r.UpdatedAt),
	}, nil
}

func parseIDList(raw string) ([]user.ID, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return user.ParseAll(ids)
}

func messagesFromRows(rows []messageRow) ([]*model.Message, error) {
	messages := make([]*model.Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}
