package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.conversations/internal/boot"
	"uk.co.dudmesh.conversations/internal/model"
	"uk.co.dudmesh.conversations/pkg/user"
)

func TestCloseWaitsForMeetings(t *testing.T) {
	assert := assert.New(t)

	var created atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"token-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/meetings", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		created.Add(1)
		w.WriteHeader(http.StatusCreated)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	bootConfig, err := boot.LoadFrom(envconfig.MapLookuper(map[string]string{
		"DATABASE_URL":      "file:close_test.db?mode=memory&cache=shared",
		"MEETING_API_URL":   server.URL + "/meetings",
		"MEETING_TOKEN_URL": server.URL + "/token",
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := newConfig(ctx, bootConfig)
	require.NotNil(t, config.meetings)

	config.meetings.Schedule(ctx, &model.Appointment{
		ID:       "a1",
		PartyAID: user.MustParse("1"),
		PartyBID: user.MustParse("2"),
		Status:   model.StatusAccepted,
		Mode:     model.ProposalModeOnline,
		When:     time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC),
	})
	cancel()
	config.Close()

	assert.Equal(int32(1), created.Load())
}
