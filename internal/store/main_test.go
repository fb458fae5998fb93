package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

type testConfig string

func (c testConfig) DatabaseURL() string {
	return string(c)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(testConfig("file:" + model.CreateID() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func textMessage(from string, role model.Role, to ...string) *model.Message {
	recipients := make([]user.ID, 0, len(to))
	for _, r := range to {
		recipients = append(recipients, user.MustParse(r))
	}
	return &model.Message{
		CreatorID:  user.MustParse(from),
		Recipients: recipients,
		SenderRole: role,
		Kind:       model.MessageKindText,
		Body:       "hello",
	}
}

func proposalMessage(from string, to string) *model.Message {
	m := textMessage(from, model.RoleStudent, to)
	m.Kind = model.MessageKindProposal
	m.Body = ""
	m.Proposal = &model.Proposal{
		When: time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC),
		Mode: model.ProposalModeOnline,
	}
	return m
}

// insertLegacy writes a row the way records looked before identifiers were
// normalized and before seen tracking existed.
func insertLegacy(t *testing.T, s *Store, creator string, role model.Role, recipients ...string) model.MessageID {
	t.Helper()
	raw, err := json.Marshal(recipients)
	require.NoError(t, err)
	id, err := model.CreateOrderedID()
	require.NoError(t, err)
	now := s.clock.next()
	_, err = s.db.Exec(`insert into messages
		(ID, CreatorID, Recipients, SenderRole, Kind, Body, CreatedAt, UpdatedAt)
		values(?, ?, ?, ?, 'text', 'legacy', ?, ?)`, id, creator, string(raw), role, now, now)
	require.NoError(t, err)
	return model.MessageID(id)
}

func countAppointments(t *testing.T, s *Store, id model.MessageID) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.GetContext(context.Background(), &n, `select count(*) from appointments where MessageID = ?`, id))
	return n
}
