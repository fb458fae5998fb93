package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"golang.org/x/time/rate"
	"uk.co.dudmesh.conversations/internal/boot"
	"uk.co.dudmesh.conversations/internal/delivery"
	"uk.co.dudmesh.conversations/internal/handlers"
	"uk.co.dudmesh.conversations/internal/meeting"
	"uk.co.dudmesh.conversations/internal/notify"
	"uk.co.dudmesh.conversations/internal/service/conversation"
	"uk.co.dudmesh.conversations/internal/store"
	"uk.co.dudmesh.conversations/pkg/crypt"
)

type ConversationService interface {
	handlers.ConversationService
}

type notifier interface {
	notify.Notifier
	Close() error
}

type config struct {
	boot.Config
	store               *store.Store
	hub                 *delivery.Hub
	notifier            notifier
	meetings            *meeting.Client
	conversationService ConversationService
	identityKey         *ecdsa.PublicKey
}

// localNotifier gives the in-process notifier the same shutdown shape as AMQP.
type localNotifier struct {
	*notify.Local
}

func (l localNotifier) Close() error {
	l.Wait()
	return nil
}

func newNotifier(ctx context.Context, bootConfig *boot.Config, hub *delivery.Hub) notifier {
	if bootConfig.AMQP.URL == "" {
		return localNotifier{notify.NewLocal(hub)}
	}

	publisher, err := notify.NewAMQP(ctx, notify.AMQPOptions{
		URL:      bootConfig.AMQP.URL,
		Exchange: bootConfig.AMQP.Exchange,
	})
	if err != nil {
		log.Fatalf("connecting to amqp: %+v", err)
	}
	go func() {
		if err := publisher.Consume(ctx, bootConfig.AMQP.Queue, hub); err != nil {
			log.Errorf("consuming notifications: %+v", err)
		}
	}()
	return publisher
}

func newConfig(ctx context.Context, bootConfig *boot.Config) *config {
	db, err := store.New(bootConfig)
	if err != nil {
		log.Fatalf("opening store: %+v", err)
	}

	hub := delivery.New(bootConfig)
	n := newNotifier(ctx, bootConfig, hub)

	var meetings meeting.Scheduler = meeting.Noop{}
	var client *meeting.Client
	if bootConfig.MeetingsEnabled() {
		client = meeting.New(meeting.Options{
			APIURL:       bootConfig.Meeting.APIURL,
			TokenURL:     bootConfig.Meeting.TokenURL,
			ClientID:     bootConfig.Meeting.ClientID,
			ClientSecret: bootConfig.Meeting.ClientSecret,
		})
		meetings = client
	}

	var identityKey *ecdsa.PublicKey
	if bootConfig.Identity.JWK != "" {
		if identityKey, err = crypt.DecodePublicKey(bootConfig.Identity.JWK); err != nil {
			log.Fatalf("decoding identity key: %+v", err)
		}
	} else if bootConfig.IsProduction() {
		log.Warn("IDENTITY_JWK is not set, requests are not authenticated")
	}

	return &config{
		Config:              *bootConfig,
		store:               db,
		hub:                 hub,
		notifier:            n,
		meetings:            client,
		conversationService: conversation.New(db, n, meetings),
		identityKey:         identityKey,
	}
}

func (c *config) Close() {
	// scheduling runs after the response, let in-flight requests finish
	if c.meetings != nil {
		c.meetings.Wait()
	}
	if err := c.notifier.Close(); err != nil {
		log.Errorf("closing notifier: %+v", err)
	}
	if err := c.store.Close(); err != nil {
		log.Errorf("closing store: %+v", err)
	}
}

func main() {
	bootConfig, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}
	log.SetLevel(bootConfig.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := newConfig(ctx, bootConfig)

	server := echo.New()
	server.HideBanner = true
	server.HTTPErrorHandler = handlers.ErrorHandler
	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("conversations"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(bootConfig.Level())

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     config.AllowedOrigins(),
		AllowHeaders:     headers,
		ExposeHeaders:    []string{handlers.HeaderTruncated, handlers.HeaderNextBefore},
		AllowCredentials: true,
	}))

	server.GET("/healthz", handlers.Health(config.store, config.hub.Connections))
	handlers.Routes(server, config.conversationService, config.hub, handlers.RouteOptions{
		IdentityKey: config.identityKey,
		Upgrader:    handlers.NewUpgrader(config.AllowedOrigins()),
		PollLimiter: middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(config.Server.PollRateLimit))),
	})

	metrics := echo.New()
	metrics.HideBanner = true
	metrics.GET("/metrics", echoprometheus.NewHandler())
	go func() {
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Logger.Fatal("shutting down the server")
		}
	}()
	log.Infoj(log.JSON{"event": "server.started", "port": config.Server.Port, "env": config.Env, "amqp": config.AMQP.URL != ""})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// push channels are closed first so long-lived streams let Shutdown finish
	config.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Logger.Error(err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		server.Logger.Error(err)
	}
	cancel()
	config.Close()
}
