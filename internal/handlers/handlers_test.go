package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.conversations/internal/delivery"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/internal/notify"
	"uk.co.dudmesh.conversations/internal/service/conversation"
	"uk.co.dudmesh.conversations/internal/store"
	"uk.co.dudmesh.conversations/pkg/crypt"
)

type testConfig string

func (c testConfig) DatabaseURL() string { return string(c) }

func (c testConfig) PushTimeout() time.Duration { return time.Second }

func (c testConfig) RegistryShards() int { return 4 }

type testServer struct {
	echo *echo.Echo
	hub  *delivery.Hub
}

func newTestServer(t *testing.T, opts RouteOptions) *testServer {
	t.Helper()
	config := testConfig("file:" + model.CreateID() + "?mode=memory&cache=shared")
	db, err := store.New(config)
	require.NoError(t, err)
	hub := delivery.New(config)
	local := notify.NewLocal(hub)
	t.Cleanup(func() {
		local.Wait()
		hub.Close()
		db.Close()
	})

	server := echo.New()
	server.HTTPErrorHandler = ErrorHandler
	Routes(server, conversation.New(db, local, nil), hub, opts)
	return &testServer{echo: server, hub: hub}
}

func (s *testServer) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const proposalBody = `{"creatorId":"1","recipients":["2"],"senderRole":"student","kind":"proposal",
	"proposal":{"when":"2025-01-10T10:00:00Z","mode":"online"}}`

func TestMessages(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, RouteOptions{})

	rec := s.do(http.MethodPost, "/messages", `{"creatorId":"1","recipients":["user_2"],"senderRole":"student","body":"hi"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal("user_1", string(created.CreatorID))

	t.Run("Role context", func(t *testing.T) {
		cases := []struct {
			query string
			count int
		}{
			{"userId=2&role=tutor", 1},
			{"userId=2&role=student", 0},
			{"userId=user_1&role=student", 1},
			{"userId=1&role=tutor", 0},
		}
		for _, tc := range cases {
			rec := s.do(http.MethodGet, "/messages?"+tc.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var messages []model.Message
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
			assert.Len(messages, tc.count, tc.query)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/messages", `{"creatorId":"1","recipients":["2"],"senderRole":"student","body":"more"}`).Code)
		}
		rec := s.do(http.MethodGet, "/messages?userId=2&role=tutor&limit=2", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var messages []model.Message
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
		assert.Len(messages, 2)
		assert.Equal("true", rec.Header().Get(HeaderTruncated))
		assert.Equal(messages[0].CreatedAt.Format(time.RFC3339Nano), rec.Header().Get(HeaderNextBefore))

		rec = s.do(http.MethodGet, "/messages?userId=2&role=tutor&limit=3", "")
		assert.Empty(rec.Header().Get(HeaderTruncated))
	})

	t.Run("Get", func(t *testing.T) {
		assert.Equal(http.StatusOK, s.do(http.MethodGet, "/messages/"+string(created.ID), "").Code)
		assert.Equal(http.StatusNotFound, s.do(http.MethodGet, "/messages/missing", "").Code)
	})

	t.Run("Validation", func(t *testing.T) {
		assert.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/messages", `{"creatorId":"1","senderRole":"student"}`).Code)
		assert.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/messages", `{"creatorId":`).Code)
		assert.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/messages?userId=2", "").Code)
	})
}

func TestProposalStatus(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, RouteOptions{})

	rec := s.do(http.MethodPost, "/messages", proposalBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	target := "/messages/" + string(created.ID) + "/status"

	for i := 0; i < 2; i++ {
		rec = s.do(http.MethodPatch, target, `{"status":"accepted","actorId":"2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	var update model.StatusUpdate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &update))
	assert.Equal(model.StatusAccepted, update.Message.Proposal.Status)
	assert.Equal(model.StatusAccepted, update.Appointment.Status)

	assert.Equal(http.StatusConflict, s.do(http.MethodPatch, target, `{"status":"declined","actorId":"2"}`).Code)
	assert.Equal(http.StatusNotFound, s.do(http.MethodPatch, "/messages/missing/status", `{"status":"accepted","actorId":"2"}`).Code)
	assert.Equal(http.StatusBadRequest, s.do(http.MethodPatch, target, `{"status":"accepted"}`).Code)
	assert.Equal(http.StatusForbidden, s.do(http.MethodPatch, target, `{"status":"cancelled","actorId":"mallory"}`).Code)

	rec = s.do(http.MethodGet, "/appointments?userId=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var appointments []model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appointments))
	assert.Len(appointments, 1)
}

func TestPoll(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, RouteOptions{})

	rec := s.do(http.MethodGet, "/poll?userId=2&role=tutor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"messages":[]`)

	s.do(http.MethodPost, "/messages", `{"creatorId":"1","recipients":["2"],"senderRole":"student","body":"a"}`)
	rec = s.do(http.MethodGet, "/poll?userId=2&role=tutor", "")
	var result model.PollResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(1, result.Meta.Count)

	rec = s.do(http.MethodGet, "/poll?userId=2&role=tutor&since="+result.Meta.Next.Format(time.RFC3339Nano), "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(0, result.Meta.Count)

	assert.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/poll?userId=2&role=tutor&since=soon", "").Code)
}

func TestSeen(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, RouteOptions{})

	rec := s.do(http.MethodPost, "/messages", `{"creatorId":"1","recipients":["42"],"senderRole":"student","body":"a"}`)
	var created model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.do(http.MethodPost, "/seen", `{"userId":"user_42","conversationUserId":"1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(`{"updated":1}`, rec.Body.String())

	rec = s.do(http.MethodPost, "/messages/"+string(created.ID)+"/seen", `{"userId":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(`{"updated":0}`, rec.Body.String())

	assert.Equal(http.StatusNotFound, s.do(http.MethodPost, "/messages/missing/seen", `{"userId":"42"}`).Code)

	rec = s.do(http.MethodPost, "/seen/backfill", `{"userId":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(`{"touchedA":0,"touchedB":0}`, rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	assert := assert.New(t)

	key, err := crypt.GenerateKey()
	require.NoError(t, err)
	s := newTestServer(t, RouteOptions{IdentityKey: &key.PublicKey})

	token, err := crypt.SignToken(key, "1", time.Minute)
	require.NoError(t, err)
	body := `{"creatorId":"user_1","recipients":["2"],"senderRole":"student","body":"hi"}`

	assert.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/messages", body).Code)
	assert.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/messages", body, echo.HeaderAuthorization, "Bearer nonsense").Code)
	assert.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/messages", body, echo.HeaderAuthorization, "Basic "+token).Code)
	assert.Equal(http.StatusForbidden, s.do(http.MethodGet, "/messages?userId=2&role=tutor", "", echo.HeaderAuthorization, "Bearer "+token).Code)
	assert.Equal(http.StatusCreated, s.do(http.MethodPost, "/messages", body, echo.HeaderAuthorization, "Bearer "+token).Code)
	assert.Equal(http.StatusOK, s.do(http.MethodGet, "/messages?userId=1&role=student&access_token="+token, "").Code)
}

func TestStream(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t, RouteOptions{})
	server := httptest.NewServer(s.echo)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/stream?userId=2&role=tutor", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal("text/event-stream", res.Header.Get(echo.HeaderContentType))

	reader := bufio.NewReader(res.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, data := readEvent()
	assert.Equal("handshake", event)
	assert.JSONEq(`{"connected":true,"userId":"user_2","role":"tutor"}`, data)

	rec := s.do(http.MethodPost, "/messages", `{"creatorId":"1","recipients":["2"],"senderRole":"student","body":"pushed"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	event, data = readEvent()
	assert.Equal("message", event)
	assert.Contains(data, `"body":"pushed"`)

	assert.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/stream?userId=2", "").Code)
}

func TestStatusFor(t *testing.T) {
	assert := assert.New(t)

	cases := map[error]int{
		model.ErrorValidation:        http.StatusBadRequest,
		model.ErrorInvalidTransition: http.StatusConflict,
		model.ErrorNotFound:          http.StatusNotFound,
		model.ErrorUnauthorized:      http.StatusUnauthorized,
		model.ErrorForbidden:         http.StatusForbidden,
		model.ErrorStore:             http.StatusServiceUnavailable,
		errors.New("boom"):           http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(status, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}
