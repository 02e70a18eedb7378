package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"card-token-bridge/api"
	"card-token-bridge/bridge"
	"card-token-bridge/cache"
	"card-token-bridge/providers"

	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, provider http.HandlerFunc) (http.Handler, *bridge.Bridge) {
	t.Helper()
	stripe := httptest.NewServer(provider)
	t.Cleanup(stripe.Close)

	mailbox := cache.NewMemoryStore()
	t.Cleanup(mailbox.Close)
	b, err := bridge.New(
		bridge.Config{PublishableKey: "pk_test_api"},
		providers.NewStripeProvider(providers.WithBaseURL(stripe.URL)),
		mailbox,
		quietLogger(),
	)
	require.NoError(t, err)
	return api.NewAPI(b, mailbox, quietLogger()).Handler(), b
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	h.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func submit(t *testing.T, h http.Handler, card string) string {
	t.Helper()
	w, env := do(t, h, http.MethodPost, "/v1/ports/askForToken", []byte(card))
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		SubmissionID string `json:"submission_id"`
		Status       string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	require.NotEmpty(t, accepted.SubmissionID)
	require.Equal(t, "pending", accepted.Status)
	require.Equal(t, "/v1/ports/receiveStripeToken/"+accepted.SubmissionID, w.Header().Get("Location"))
	return accepted.SubmissionID
}

func TestAPI_EndToEnd(t *testing.T) {
	h, b := setup(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer pk_test_api", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"tok_test1","object":"token"}`))
	})

	id := submit(t, h, `{"number":"4242424242424242","cvc":"123","expiration":"12/25"}`)
	b.Wait()

	w, env := do(t, h, http.MethodGet, "/v1/ports/receiveStripeToken/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "success", env.Status)

	var d bridge.Delivery
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, bridge.Delivery{SubmissionID: id, Status: bridge.StatusSucceeded, TokenID: "tok_test1"}, d)
}

func TestAPI_RejectionIsNotDeliveredAsToken(t *testing.T) {
	h, b := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	id := submit(t, h, `{"ccNumber":"4000000000000002","cvc":"123","expiration":"12/25"}`)
	b.Wait()

	w, env := do(t, h, http.MethodGet, "/v1/ports/receiveStripeToken/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Tokenization failed", env.Message)

	var d bridge.Delivery
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, bridge.StatusFailed, d.Status)
	require.Empty(t, d.TokenID)
	require.Equal(t, bridge.ProviderRejection, d.Error.Kind)
	require.Equal(t, "card_declined", d.Error.Detail.Code)
}

func TestAPI_PendingAndUnknown(t *testing.T) {
	release := make(chan struct{})
	h, b := setup(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"id":"tok_slow"}`))
	})

	id := submit(t, h, `{"number":"4242424242424242","cvc":"123","expiration":"12/25"}`)

	w, env := do(t, h, http.MethodGet, "/v1/ports/receiveStripeToken/"+id, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var d bridge.Delivery
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, bridge.StatusPending, d.Status)

	close(release)
	b.Wait()

	w, _ = do(t, h, http.MethodGet, "/v1/ports/receiveStripeToken/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_BadBody(t *testing.T) {
	h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})

	w, env := do(t, h, http.MethodPost, "/v1/ports/askForToken", []byte(`{not json`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "error", env.Status)
}

func TestAPI_Health(t *testing.T) {
	h, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	w, env := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "success", env.Status)
}

type brokenMailbox struct {
	*cache.MemoryStore
}

func (brokenMailbox) Ping(context.Context) error { return errors.New("down") }

func (brokenMailbox) MarkPending(context.Context, string) error { return errors.New("down") }

type noDispatch struct{ calls int }

func (d *noDispatch) HandleTokenRequest(context.Context, bridge.Submission) { d.calls++ }

func TestAPI_MailboxDown(t *testing.T) {
	dispatch := &noDispatch{}
	mailbox := cache.NewMemoryStore()
	t.Cleanup(mailbox.Close)
	h := api.NewAPI(dispatch, brokenMailbox{mailbox}, quietLogger()).Handler()

	w, _ := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, h, http.MethodPost, "/v1/ports/askForToken", []byte(`{"number":"4242424242424242"}`))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Zero(t, dispatch.calls)
}
