package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

func TestUpdateProposalStatus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	u1 := user.MustParse("U1")
	u2 := user.MustParse("U2")

	msg, err := s.CreateMessage(ctx, proposalMessage("U1", "U2"))
	require.NoError(t, err)

	t.Run("Accept", func(t *testing.T) {
		updated, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusAccepted, u2)
		assert.Nil(err)
		assert.Equal(model.StatusAccepted, updated.Proposal.Status)
		assert.Equal(u2, updated.Proposal.ActorID)
		assert.True(updated.UpdatedAt.After(msg.UpdatedAt))
		if assert.NotNil(appointment) {
			assert.Equal(msg.ID, appointment.MessageID)
			assert.Equal(model.StatusAccepted, appointment.Status)
			assert.Equal(u1, appointment.PartyAID)
			assert.Equal(u2, appointment.PartyBID)
			assert.Equal(model.ProposalModeOnline, appointment.Mode)
			assert.True(msg.Proposal.When.Equal(appointment.When))
		}
		assert.Equal(1, countAppointments(t, s, msg.ID))
	})

	t.Run("Accept again", func(t *testing.T) {
		first, err := s.AppointmentForMessage(ctx, msg.ID)
		require.NoError(t, err)

		_, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusAccepted, u2)
		assert.Nil(err)
		assert.Equal(first.ID, appointment.ID)
		assert.Equal(1, countAppointments(t, s, msg.ID))
	})

	t.Run("Invalid transition", func(t *testing.T) {
		_, _, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusDeclined, u2)
		assert.ErrorIs(err, model.ErrorInvalidTransition)
		fetched, err := s.GetMessage(ctx, msg.ID)
		assert.Nil(err)
		assert.Equal(model.StatusAccepted, fetched.Proposal.Status)
	})

	t.Run("Complete updates the appointment", func(t *testing.T) {
		_, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusCompleted, u1)
		assert.Nil(err)
		assert.Equal(model.StatusCompleted, appointment.Status)
		assert.Equal(u2, appointment.PartyBID)
		assert.Equal(1, countAppointments(t, s, msg.ID))
	})

	t.Run("Not found", func(t *testing.T) {
		_, _, err := s.UpdateProposalStatus(ctx, "missing", model.StatusAccepted, u2)
		assert.ErrorIs(err, model.ErrorNotFound)
	})

	t.Run("Not a proposal", func(t *testing.T) {
		text, err := s.CreateMessage(ctx, textMessage("U1", model.RoleStudent, "U2"))
		require.NoError(t, err)
		_, _, err = s.UpdateProposalStatus(ctx, text.ID, model.StatusAccepted, u2)
		assert.ErrorIs(err, model.ErrorValidation)
		fetched, err := s.GetMessage(ctx, text.ID)
		assert.Nil(err)
		assert.Nil(fetched.Proposal)
	})

	t.Run("Cancel before answer", func(t *testing.T) {
		p, err := s.CreateMessage(ctx, proposalMessage("U1", "U2"))
		require.NoError(t, err)
		updated, appointment, err := s.UpdateProposalStatus(ctx, p.ID, model.StatusCancelled, u1)
		assert.Nil(err)
		assert.Equal(model.StatusCancelled, updated.Proposal.Status)
		assert.Nil(appointment)
		assert.Equal(0, countAppointments(t, s, p.ID))
	})
}

func TestProposalActor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	msg, err := s.CreateMessage(ctx, proposalMessage("U1", "U2"))
	require.NoError(t, err)

	t.Run("Outsider", func(t *testing.T) {
		for _, status := range []model.Status{model.StatusAccepted, model.StatusDeclined, model.StatusCancelled} {
			_, _, err := s.UpdateProposalStatus(ctx, msg.ID, status, user.MustParse("mallory"))
			assert.ErrorIs(err, model.ErrorForbidden)
		}
		assert.Equal(0, countAppointments(t, s, msg.ID))
		fetched, err := s.GetMessage(ctx, msg.ID)
		assert.Nil(err)
		assert.Equal(model.StatusPending, fetched.Proposal.Status)
	})

	t.Run("Proposer cannot answer", func(t *testing.T) {
		for _, status := range []model.Status{model.StatusAccepted, model.StatusDeclined} {
			_, _, err := s.UpdateProposalStatus(ctx, msg.ID, status, user.MustParse("U1"))
			assert.ErrorIs(err, model.ErrorForbidden)
		}
		assert.Equal(0, countAppointments(t, s, msg.ID))
	})

	t.Run("Recipient under a legacy identifier", func(t *testing.T) {
		legacy := insertLegacy(t, s, "U1", model.RoleStudent, "U2", "U1")
		_, err := s.db.Exec(`update messages set Kind = 'proposal', Proposal = ? where ID = ?`,
			`{"when":"2025-01-10T10:00:00Z","mode":"online","status":"pending"}`, legacy)
		require.NoError(t, err)

		_, appointment, err := s.UpdateProposalStatus(ctx, legacy, model.StatusAccepted, user.MustParse("user_U2"))
		assert.Nil(err)
		if assert.NotNil(appointment) {
			assert.Equal(user.MustParse("U2"), appointment.PartyBID)
		}
	})
}

func TestConcurrentAcceptCreatesOneAppointment(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	msg, err := s.CreateMessage(ctx, proposalMessage("U1", "U2"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusAccepted, user.MustParse("U2"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.Nil(err)
	}
	assert.Equal(1, countAppointments(t, s, msg.ID))
}

func TestSubjectHydration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateInquiry(ctx, &model.Inquiry{StudentID: "42", TutorID: user.MustParse("tutor"), SubjectRef: "algebra"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.CreateInquiry(ctx, &model.Inquiry{StudentID: user.MustParse("42"), TutorID: user.MustParse("tutor"), SubjectRef: "calculus"})
	require.NoError(t, err)

	t.Run("From most recent inquiry", func(t *testing.T) {
		msg, err := s.CreateMessage(ctx, proposalMessage("tutor", "42"))
		require.NoError(t, err)
		_, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusAccepted, user.MustParse("user_42"))
		assert.Nil(err)
		assert.Equal("calculus", appointment.SubjectRef)
	})

	t.Run("Proposal subject wins", func(t *testing.T) {
		p := proposalMessage("tutor", "42")
		p.Proposal.SubjectRef = "geometry"
		msg, err := s.CreateMessage(ctx, p)
		require.NoError(t, err)
		_, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusDeclined, user.MustParse("42"))
		assert.Nil(err)
		assert.Equal("geometry", appointment.SubjectRef)
		assert.Equal(model.StatusDeclined, appointment.Status)
	})

	t.Run("No inquiry", func(t *testing.T) {
		msg, err := s.CreateMessage(ctx, proposalMessage("tutor", "stranger"))
		require.NoError(t, err)
		_, appointment, err := s.UpdateProposalStatus(ctx, msg.ID, model.StatusAccepted, user.MustParse("stranger"))
		assert.Nil(err)
		assert.Equal("", appointment.SubjectRef)
	})

	t.Run("List for participant", func(t *testing.T) {
		appointments, err := s.ListAppointments(ctx, user.MustParse("42"))
		assert.Nil(err)
		assert.Len(appointments, 2)

		fetched, err := s.GetAppointment(ctx, appointments[0].ID)
		assert.Nil(err)
		assert.Equal(appointments[0].MessageID, fetched.MessageID)

		_, err = s.GetAppointment(ctx, "missing")
		assert.ErrorIs(err, model.ErrorNotFound)
	})
}
