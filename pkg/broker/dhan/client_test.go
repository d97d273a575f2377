package dhan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAccessToken(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
}

func TestGetPositionsSendsAccessToken(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("access-token")
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/positions", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Position{{SecurityID: "1333", TradingSymbol: "HDFCBANK", NetQty: 5}})
	}))
	defer srv.Close()

	client, err := NewClient("secret-token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-token", gotToken)
	require.Len(t, positions, 1)
	assert.Equal(t, "HDFCBANK", positions[0].TradingSymbol)
}

func TestGetPositionsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]Position{})
	}))
	defer srv.Close()

	client, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPlaceOrderIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.PlaceOrder(context.Background(), OrderRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "mutating calls retry only via the next tick")
}

func TestUnauthorizedIsReportedClearly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient("expired", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.PlaceOrder(context.Background(), OrderRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestActivateKillSwitch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "ACTIVATE", r.URL.Query().Get("killSwitchStatus"))
		_ = json.NewEncoder(w).Encode(KillSwitchResponse{DhanClientID: "c1", KillSwitchStatus: "ACTIVATED"})
	}))
	defer srv.Close()

	client, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := client.ActivateKillSwitch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ACTIVATED", resp.KillSwitchStatus)
}

func TestActivateKillSwitchRejectsOtherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(KillSwitchResponse{KillSwitchStatus: "DEACTIVATED"})
	}))
	defer srv.Close()

	client, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.ActivateKillSwitch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not activated")
}

func TestCancelOrderRequiresID(t *testing.T) {
	client, err := NewClient("token")
	require.NoError(t, err)
	assert.Error(t, client.CancelOrder(context.Background(), ""))
}
