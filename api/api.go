package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"card-token-bridge/bridge"
	"card-token-bridge/cache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxCardBody = 16 << 10

// Dispatcher starts a tokenization without waiting for it.
type Dispatcher interface {
	HandleTokenRequest(ctx context.Context, sub bridge.Submission)
}

// API exposes the two embedded-application ports over HTTP.
type API struct {
	dispatcher Dispatcher
	mailbox    cache.Mailbox
	logger     *slog.Logger
}

func NewAPI(dispatcher Dispatcher, mailbox cache.Mailbox, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		dispatcher: dispatcher,
		mailbox:    mailbox,
		logger:     logger,
	}
}

// Handler returns a router with every route and the standard middleware stack.
func (a *API) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(structuredLogger(a.logger))
	router.Use(middleware.Recoverer)
	router.Use(cors)
	a.AppendRoutes(router)
	return router
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/health", a.health)
	r.Route("/v1/ports", func(r chi.Router) {
		r.Post("/askForToken", a.askForToken)
		r.Get("/receiveStripeToken/{submissionID}", a.receiveStripeToken)
	})
}

type submissionAccepted struct {
	SubmissionID string                `json:"submission_id"`
	Status       bridge.DeliveryStatus `json:"status"`
}

func (a *API) askForToken(w http.ResponseWriter, r *http.Request) {
	var card bridge.CardModel
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCardBody)).Decode(&card); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid Request Body")
		return
	}

	sub := bridge.Submission{ID: bridge.NewSubmissionID(), Card: card}
	if err := a.mailbox.MarkPending(r.Context(), sub.ID); err != nil {
		a.logger.Error("failed to record submission",
			slog.String("submission_id", sub.ID),
			slog.Any("err", err),
		)
		sendError(w, http.StatusServiceUnavailable, "Token mailbox unavailable")
		return
	}

	a.dispatcher.HandleTokenRequest(r.Context(), sub)

	w.Header().Set("Location", "/v1/ports/receiveStripeToken/"+sub.ID)
	sendSuccess(w, http.StatusAccepted, "Tokenization started", submissionAccepted{
		SubmissionID: sub.ID,
		Status:       bridge.StatusPending,
	})
}

func (a *API) receiveStripeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "submissionID")

	d, err := a.mailbox.Fetch(r.Context(), id)
	if errors.Is(err, cache.ErrNotFound) {
		sendError(w, http.StatusNotFound, "Submission not found")
		return
	}
	if err != nil {
		a.logger.Error("failed to fetch delivery", slog.String("submission_id", id), slog.Any("err", err))
		sendError(w, http.StatusServiceUnavailable, "Token mailbox unavailable")
		return
	}

	switch d.Status {
	case bridge.StatusPending:
		sendSuccess(w, http.StatusAccepted, "Tokenization in progress", d)
	case bridge.StatusFailed:
		sendSuccess(w, http.StatusOK, "Tokenization failed", d)
	default:
		sendSuccess(w, http.StatusOK, "", d)
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.mailbox.Ping(ctx); err != nil {
		sendError(w, http.StatusServiceUnavailable, "mailbox unavailable")
		return
	}
	sendSuccess(w, http.StatusOK, "ok", nil)
}
