package model

import (
	"time"

	"uk.co.dudmesh.conversations/pkg/user"
)

type MessageID string

type MessageKind string

const (
	MessageKindText             MessageKind = "text"
	MessageKindProposal         MessageKind = "proposal"
	MessageKindResultAttachment MessageKind = "result-attachment"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindProposal, MessageKindResultAttachment:
		return true
	}
	return false
}

type ProposalMode string

const (
	ProposalModeOnline   ProposalMode = "online"
	ProposalModeInPerson ProposalMode = "in-person"
)

func (m ProposalMode) Valid() bool {
	return m == ProposalModeOnline || m == ProposalModeInPerson
}

type Proposal struct {
	When        time.Time    `json:"when"`
	Mode        ProposalMode `json:"mode"`
	Status      Status       `json:"status"`
	ActorID     user.ID      `json:"actorId,omitempty"`
	SubjectRef  string       `json:"subjectRef,omitempty"`
	OfferingRef string       `json:"offeringRef,omitempty"`
}

type ResultAttachment struct {
	AppointmentID AppointmentID `json:"appointmentId"`
	Attempt       int           `json:"attempt"`
	Score         float64       `json:"score"`
	CompletedAt   time.Time     `json:"completedAt"`
}

// Message is immutable once stored apart from Proposal.Status, Proposal.ActorID,
// SeenBy and UpdatedAt.
type Message struct {
	ID               MessageID         `json:"id"`
	CreatorID        user.ID           `json:"creatorId"`
	Recipients       []user.ID         `json:"recipients"`
	SenderRole       Role              `json:"senderRole"`
	Kind             MessageKind       `json:"kind"`
	Body             string            `json:"body"`
	Proposal         *Proposal         `json:"proposal,omitempty"`
	ResultAttachment *ResultAttachment `json:"resultAttachment,omitempty"`
	SeenBy           []user.ID         `json:"seenBy"`
	ReplyTo          MessageID         `json:"replyTo,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func (m *Message) HasRecipient(id user.ID) bool {
	for _, r := range m.Recipients {
		if r == id {
			return true
		}
	}
	return false
}

func (m *Message) SeenByUser(id user.ID) bool {
	for _, r := range m.SeenBy {
		if r == id {
			return true
		}
	}
	return false
}

// CreateMessageParams is a message as submitted at the boundary, before normalization.
type CreateMessageParams struct {
	CreatorID        string            `json:"creatorId"`
	Recipients       []string          `json:"recipients"`
	SenderRole       string            `json:"senderRole"`
	Kind             string            `json:"kind"`
	Body             string            `json:"body"`
	Proposal         *ProposalParams   `json:"proposal,omitempty"`
	ResultAttachment *ResultAttachment `json:"resultAttachment,omitempty"`
	ReplyTo          string            `json:"replyTo,omitempty"`
}

type ProposalParams struct {
	When        time.Time `json:"when"`
	Mode        string    `json:"mode"`
	SubjectRef  string    `json:"subjectRef,omitempty"`
	OfferingRef string    `json:"offeringRef,omitempty"`
}

type UpdateStatusParams struct {
	Status  string `json:"status"`
	ActorID string `json:"actorId"`
}

// SeenQuery selects the messages a reader acknowledges: either one message or
// everything the reader received from ConversationWith.
type SeenQuery struct {
	MessageID        MessageID
	ConversationWith user.ID
}

type BackfillResult struct {
	TouchedA int64 `json:"touchedA"`
	TouchedB int64 `json:"touchedB"`
}

type ListMessagesParams struct {
	UserID string `query:"userId"`
	Role   string `query:"role"`
	With   string `query:"with"`
	Since  string `query:"since"`
	Before string `query:"before"`
	Limit  int    `query:"limit"`
}

// MessageList is a role page. Truncated is set when a limit left older
// messages out; pass the first message's createdAt as before to page back.
type MessageList struct {
	Messages  []*Message
	Truncated bool
}

type PollParams struct {
	UserID string `query:"userId"`
	Role   string `query:"role"`
	Since  string `query:"since"`
}

type PollMeta struct {
	Count int       `json:"count"`
	Since time.Time `json:"since"`
	Next  time.Time `json:"next"`
}

// PollResult is what a poller gets back. Next is the cursor for the following poll.
type PollResult struct {
	Messages []*Message `json:"messages"`
	Meta     PollMeta   `json:"meta"`
}

// MarkSeenParams acknowledges either one message or a whole conversation.
type MarkSeenParams struct {
	UserID             string `json:"userId"`
	ConversationUserID string `json:"conversationUserId,omitempty"`
	MessageID          string `json:"messageId,omitempty"`
}

type MarkSeenResult struct {
	Updated int64 `json:"updated"`
}

type BackfillParams struct {
	UserID string `json:"userId"`
}

type StatusUpdate struct {
	Message     *Message     `json:"message"`
	Appointment *Appointment `json:"appointment,omitempty"`
}
