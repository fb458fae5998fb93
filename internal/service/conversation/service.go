package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.conversations/internal/meeting"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/internal/notify"
	"uk.co.dudmesh.conversations/internal/store"
	"uk.co.dudmesh.conversations/pkg/user"
)

type Store interface {
	CreateMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	GetMessage(ctx context.Context, id model.MessageID) (*model.Message, error)
	ListMessages(ctx context.Context, participant user.ID, role model.Role, filter store.ListFilter) ([]*model.Message, error)
	Poll(ctx context.Context, participant user.ID, role model.Role, since time.Time) ([]*model.Message, error)
	UpdateProposalStatus(ctx context.Context, id model.MessageID, status model.Status, actor user.ID) (*model.Message, *model.Appointment, error)
	MarkSeen(ctx context.Context, query model.SeenQuery, reader user.ID) (int64, error)
	BackfillSeen(ctx context.Context, u user.ID) (model.BackfillResult, error)
	ListAppointments(ctx context.Context, participant user.ID) ([]*model.Appointment, error)
	CreateInquiry(ctx context.Context, inquiry *model.Inquiry) (*model.Inquiry, error)
}

// service normalizes everything that arrives from the outside world, then
// hands it to the store and tells the notifier about each commit.
type service struct {
	store    Store
	notifier notify.Notifier
	meetings meeting.Scheduler
}

func New(store Store, notifier notify.Notifier, meetings meeting.Scheduler) *service {
	if meetings == nil {
		meetings = meeting.Noop{}
	}
	return &service{store: store, notifier: notifier, meetings: meetings}
}

func parseID(field, raw string) (user.ID, error) {
	id, err := user.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", model.ErrorValidation, field, err)
	}
	return id, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC3339 timestamp", model.ErrorValidation, raw)
	}
	return since, nil
}

func (s *service) CreateMessage(ctx context.Context, params *model.CreateMessageParams) (*model.Message, error) {
	creator, err := parseID("creatorId", params.CreatorID)
	if err != nil {
		return nil, err
	}
	recipients, err := user.ParseAll(params.Recipients)
	if err != nil {
		return nil, fmt.Errorf("%w: recipients: %w", model.ErrorValidation, err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: recipients are required", model.ErrorValidation)
	}
	role, err := model.ParseRole(params.SenderRole)
	if err != nil {
		return nil, err
	}

	kind := model.MessageKind(strings.TrimSpace(params.Kind))
	if kind == "" {
		kind = model.MessageKindText
	}

	msg := &model.Message{
		CreatorID:        creator,
		Recipients:       recipients,
		SenderRole:       role,
		Kind:             kind,
		Body:             params.Body,
		ResultAttachment: params.ResultAttachment,
		ReplyTo:          model.MessageID(params.ReplyTo),
	}
	if p := params.Proposal; p != nil {
		msg.Proposal = &model.Proposal{
			When:        p.When.UTC(),
			Mode:        model.ProposalMode(p.Mode),
			SubjectRef:  p.SubjectRef,
			OfferingRef: p.OfferingRef,
		}
	}

	created, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	s.notifier.Notify(ctx, created)
	return created, nil
}

func (s *service) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return s.store.GetMessage(ctx, model.MessageID(id))
}

// ListMessages returns the participant's page for one role, oldest first.
// With a limit only the newest messages come back and Truncated says whether
// older ones were left out.
func (s *service) ListMessages(ctx context.Context, params *model.ListMessagesParams) (*model.MessageList, error) {
	participant, err := parseID("userId", params.UserID)
	if err != nil {
		return nil, err
	}
	role, err := model.ParseRole(params.Role)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", model.ErrorValidation)
	}

	filter := store.ListFilter{}
	if params.Limit > 0 {
		filter.Limit = params.Limit + 1
	}
	if params.With != "" {
		if filter.With, err = parseID("with", params.With); err != nil {
			return nil, err
		}
	}
	if filter.Since, err = parseTime(params.Since); err != nil {
		return nil, err
	}
	if filter.Before, err = parseTime(params.Before); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, participant, role, filter)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	list := &model.MessageList{Messages: messages}
	if params.Limit > 0 && len(messages) > params.Limit {
		list.Messages = messages[len(messages)-params.Limit:]
		list.Truncated = true
	}
	return list, nil
}

// Poll returns what the fallback channel owes a client since its last cursor.
// An empty result keeps the cursor where it was.
func (s *service) Poll(ctx context.Context, params *model.PollParams) (*model.PollResult, error) {
	participant, err := parseID("userId", params.UserID)
	if err != nil {
		return nil, err
	}
	role, err := model.ParseRole(params.Role)
	if err != nil {
		return nil, err
	}
	since, err := parseTime(params.Since)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.Poll(ctx, participant, role, since)
	if err != nil {
		return nil, fmt.Errorf("polling messages: %w", err)
	}

	next := since
	for _, m := range messages {
		if m.CreatedAt.After(next) {
			next = m.CreatedAt
		}
	}
	return &model.PollResult{
		Messages: messages,
		Meta:     model.PollMeta{Count: len(messages), Since: since, Next: next},
	}, nil
}

// UpdateProposalStatus moves a proposal through the appointment state machine.
// A freshly accepted online appointment also gets a meeting booked.
func (s *service) UpdateProposalStatus(ctx context.Context, id string, params *model.UpdateStatusParams) (*model.StatusUpdate, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", model.ErrorValidation)
	}
	status, err := model.ParseStatus(params.Status)
	if err != nil {
		return nil, err
	}
	actor, err := parseID("actorId", params.ActorID)
	if err != nil {
		return nil, err
	}

	msg, appointment, err := s.store.UpdateProposalStatus(ctx, model.MessageID(id), status, actor)
	if err != nil {
		return nil, fmt.Errorf("updating proposal %s: %w", id, err)
	}
	s.notifier.Notify(ctx, msg)

	if appointment != nil && appointment.Status == model.StatusAccepted && appointment.CreatedAt.Equal(appointment.UpdatedAt) {
		log.Infoj(log.JSON{"event": "appointment.accepted", "appointment": appointment.ID, "message": msg.ID})
		s.meetings.Schedule(ctx, appointment)
	}
	return &model.StatusUpdate{Message: msg, Appointment: appointment}, nil
}

func (s *service) MarkSeen(ctx context.Context, params *model.MarkSeenParams) (*model.MarkSeenResult, error) {
	reader, err := parseID("userId", params.UserID)
	if err != nil {
		return nil, err
	}

	query := model.SeenQuery{MessageID: model.MessageID(params.MessageID)}
	if query.MessageID == "" {
		if query.ConversationWith, err = parseID("conversationUserId", params.ConversationUserID); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.MarkSeen(ctx, query, reader)
	if err != nil {
		return nil, fmt.Errorf("marking seen: %w", err)
	}
	return &model.MarkSeenResult{Updated: updated}, nil
}

func (s *service) BackfillSeen(ctx context.Context, userID string) (model.BackfillResult, error) {
	u, err := parseID("userId", userID)
	if err != nil {
		return model.BackfillResult{}, err
	}
	result, err := s.store.BackfillSeen(ctx, u)
	if err != nil {
		return model.BackfillResult{}, fmt.Errorf("backfilling seen for %s: %w", u, err)
	}
	log.Infoj(log.JSON{"event": "seen.backfill", "user": u, "touchedA": result.TouchedA, "touchedB": result.TouchedB})
	return result, nil
}

func (s *service) ListAppointments(ctx context.Context, userID string) ([]*model.Appointment, error) {
	u, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListAppointments(ctx, u)
}

func (s *service) CreateInquiry(ctx context.Context, params *model.CreateInquiryParams) (*model.Inquiry, error) {
	student, err := parseID("studentId", params.StudentID)
	if err != nil {
		return nil, err
	}
	tutor, err := parseID("tutorId", params.TutorID)
	if err != nil {
		return nil, err
	}
	if student == tutor {
		return nil, fmt.Errorf("%w: student and tutor must differ", model.ErrorValidation)
	}
	return s.store.CreateInquiry(ctx, &model.Inquiry{StudentID: student, TutorID: tutor, SubjectRef: params.SubjectRef})
}
