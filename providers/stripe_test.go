package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"card-token-bridge/bridge"

	"github.com/stretchr/testify/require"
)

func TestStripeProvider_Success(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/tokens", r.URL.Path)
		require.Equal(t, "Bearer pk_test_abc", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "4242424242424242", r.PostForm.Get("card[number]"))
		require.Equal(t, "123", r.PostForm.Get("card[cvc]"))
		require.Equal(t, "12", r.PostForm.Get("card[exp_month]"))
		require.Equal(t, "25", r.PostForm.Get("card[exp_year]"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tok_test1","object":"token","type":"card","used":false}`))
	}))
	defer srv.Close()

	p := NewStripeProvider(WithBaseURL(srv.URL + "/"))
	res := p.CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{
		Number: "4242424242424242",
		CVC:    "123",
		Exp:    "12/25",
	})

	require.Equal(t, bridge.Success{TokenID: "tok_test1"}, res)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestStripeProvider_CardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"incorrect_number","message":"Your card number is incorrect.","param":"number"}}`))
	}))
	defer srv.Close()

	res := NewStripeProvider(WithBaseURL(srv.URL)).CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{Number: "1"})

	f, ok := res.(bridge.Failure)
	require.True(t, ok)
	require.Equal(t, bridge.ProviderRejection, f.Kind)
	require.Equal(t, http.StatusPaymentRequired, f.StatusCode)
	require.Equal(t, "incorrect_number", f.Detail.Code)
	require.Equal(t, "number", f.Detail.Param)
	require.Equal(t, "card_error", f.Detail.Type)
	require.NotEmpty(t, f.Detail.Raw)
}

func TestStripeProvider_ServerErrorIsSingleAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"type":"api_error","message":"upstream unavailable"}}`))
	}))
	defer srv.Close()

	res := NewStripeProvider(WithBaseURL(srv.URL)).CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{})

	f, ok := res.(bridge.Failure)
	require.True(t, ok)
	require.Equal(t, bridge.ProviderUnavailable, f.Kind)
	require.Equal(t, http.StatusBadGateway, f.StatusCode)
	require.Equal(t, "api_error", f.Detail.Type)
	require.Error(t, f.Err)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestStripeProvider_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	res := NewStripeProvider(WithBaseURL(srv.URL)).CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{})

	f, ok := res.(bridge.Failure)
	require.True(t, ok)
	require.Equal(t, bridge.NetworkFailure, f.Kind)
	require.True(t, f.ProviderSide())
}

func TestStripeProvider_SuccessWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"token"}`))
	}))
	defer srv.Close()

	res := NewStripeProvider(WithBaseURL(srv.URL)).CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{})

	f, ok := res.(bridge.Failure)
	require.True(t, ok)
	require.Equal(t, bridge.ProviderRejection, f.Kind)
	require.Equal(t, http.StatusOK, f.StatusCode)
}

func TestStripeProvider_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewStripeProvider(WithBaseURL(url)).CreateToken(context.Background(), "pk_test_abc", bridge.TokenRequest{})

	f, ok := res.(bridge.Failure)
	require.True(t, ok)
	require.Equal(t, bridge.NetworkFailure, f.Kind)
	require.Zero(t, f.StatusCode)
	require.True(t, f.ProviderSide())
}

func TestSplitExpiration(t *testing.T) {
	tests := []struct {
		in          string
		month, year string
	}{
		{"12/25", "12", "25"},
		{" 12 / 2025 ", "12", "2025"},
		{"1225", "12", "25"},
		{"122025", "12", "2025"},
		{"01-30", "01", "30"},
		{"garbage", "garbage", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, y := SplitExpiration(tt.in)
			require.Equal(t, tt.month, m)
			require.Equal(t, tt.year, y)
		})
	}
}
