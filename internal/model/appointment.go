package model

import (
	"fmt"
	"time"

	"uk.co.dudmesh.conversations/pkg/user"
)

type AppointmentID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted: {StatusCancelled, StatusCompleted},
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrorValidation, s)
}

// CanTransitionTo reports whether a proposal may move from s to next.
// Repeating the current status is always allowed so retries are harmless.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CreatesAppointment reports whether reaching s upserts the companion appointment.
func (s Status) CreatesAppointment() bool {
	return s == StatusAccepted || s == StatusDeclined
}

type Appointment struct {
	ID         AppointmentID `json:"id"`
	MessageID  MessageID     `json:"messageId"`
	PartyAID   user.ID       `json:"partyAId"` // proposer
	PartyBID   user.ID       `json:"partyBId"` // responder
	Status     Status        `json:"status"`
	When       time.Time     `json:"when"`
	Mode       ProposalMode  `json:"mode"`
	SubjectRef string        `json:"subjectRef,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Inquiry is a student's request for tutoring; only used to fill in a missing
// subject on new appointments.
type Inquiry struct {
	ID         string    `json:"id"`
	StudentID  user.ID   `json:"studentId"`
	TutorID    user.ID   `json:"tutorId"`
	SubjectRef string    `json:"subjectRef"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateInquiryParams struct {
	StudentID  string `json:"studentId"`
	TutorID    string `json:"tutorId"`
	SubjectRef string `json:"subjectRef"`
}

// ProposerMay reports whether the author of a proposal may move it to s.
// Answering is left to the other party.
func (s Status) ProposerMay() bool {
	return s == StatusCancelled || s == StatusCompleted
}
