package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/oauth2/clientcredentials"
	"uk.co.dudmesh.conversations/internal/model"
)

const requestTimeout = 10 * time.Second

// Scheduler books a meeting for an accepted appointment. It runs after the
// appointment is stored and has no say over it.
type Scheduler interface {
	Schedule(ctx context.Context, appointment *model.Appointment)
}

type Noop struct{}

func (Noop) Schedule(context.Context, *model.Appointment) {}

type Options struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type CreateMeetingRequest struct {
	AppointmentID model.AppointmentID `json:"appointmentId"`
	Topic         string              `json:"topic,omitempty"`
	StartTime     time.Time           `json:"startTime"`
	Mode          model.ProposalMode  `json:"mode"`
	Participants  []string            `json:"participants"`
}

// Client creates meetings with a provider that authenticates with the OAuth2
// client credentials grant.
type Client struct {
	http   *http.Client
	apiURL string
	wg     sync.WaitGroup
}

func New(opts Options) *Client {
	credentials := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
	}
	httpClient := credentials.Client(context.Background())
	httpClient.Timeout = requestTimeout
	return &Client{http: httpClient, apiURL: opts.APIURL}
}

// Schedule fires the create request in the background; failures are logged.
func (c *Client) Schedule(ctx context.Context, appointment *model.Appointment) {
	if appointment == nil || appointment.Status != model.StatusAccepted || appointment.Mode != model.ProposalModeOnline {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Create(ctx, appointment); err != nil {
			log.Errorf("creating meeting for appointment %s: %+v", appointment.ID, err)
		}
	}()
}

func (c *Client) Create(ctx context.Context, appointment *model.Appointment) error {
	body, err := json.Marshal(CreateMeetingRequest{
		AppointmentID: appointment.ID,
		Topic:         appointment.SubjectRef,
		StartTime:     appointment.When,
		Mode:          appointment.Mode,
		Participants:  []string{string(appointment.PartyAID), string(appointment.PartyBID)},
	})
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("meeting provider returned %s", res.Status)
	}
	log.Infof("meeting created for appointment %s", appointment.ID)
	return nil
}

// Wait blocks until background requests have finished.
func (c *Client) Wait() {
	c.wg.Wait()
}
