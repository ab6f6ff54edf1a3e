package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/feed"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/registry"
	"solana-wallet-tracker/internal/storage/memory"
	"solana-wallet-tracker/internal/tracker"
)

const (
	walletA  = "4Vgu5AHT1ndczhdgqAipNDqLsCPjBS5jMXkEg8yzhT9c"
	walletB  = "GrkYZgtiQGmZrSbSc7MPJfo6UL9zo2uP5sKPNB7nUyEa"
	offCurve = "6anbDQNCcVh2f6okexjaX1VGj6tEnizJ1kV5UTBS8Zhi"
)

type fixedStatus tracker.Status

func (s fixedStatus) Status() tracker.Status { return tracker.Status(s) }

type fixture struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	events   *memory.EventStore
	feed     *feed.Feed
	router   http.Handler
}

func newFixture(t *testing.T, wallets ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	reg, err := registry.Open(ctx, memory.NewWalletStore(), wallets, nil)
	require.NoError(t, err)

	events := memory.NewEventStore()
	led, err := ledger.Open(ctx, events, memory.NewSeenStore(), nil)
	require.NoError(t, err)

	f := feed.New(feed.Options{Buffer: 8})
	t.Cleanup(f.Close)

	srv := New(Options{
		Wallets: reg,
		Seen:    led,
		Events:  events,
		Feed:    f,
		Status:  fixedStatus{State: tracker.StateRunning, Cycles: 3},
	})

	return &fixture{registry: reg, ledger: led, events: events, feed: f, router: srv.Router()}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func event(sig string, at time.Time) *domain.Event {
	return &domain.Event{
		Wallet:     walletA,
		Signature:  sig,
		Mint:       "mintA",
		Action:     domain.ActionBuy,
		Amount:     decimal.RequireFromString("2.5"),
		Fee:        decimal.RequireFromString("0.000005"),
		OccurredAt: at,
	}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st tracker.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, tracker.StateRunning, st.State)
	assert.Equal(t, 3, st.Cycles)
}

func TestStatus_NoRunner(t *testing.T) {
	reg, err := registry.Open(context.Background(), memory.NewWalletStore(), nil, nil)
	require.NoError(t, err)
	srv := New(Options{Wallets: reg, Events: memory.NewEventStore()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListWallets(t *testing.T) {
	f := newFixture(t, walletA, offCurve)
	f.ledger.MarkSeen(walletA, "sig1")
	f.ledger.MarkSeen(walletA, "sig2")

	rec := f.do(http.MethodGet, "/api/wallets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []WalletView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Equal(t, []WalletView{
		{Address: walletA, OnCurve: true, SeenSignatures: 2},
		{Address: offCurve, OnCurve: false, SeenSignatures: 0},
	}, views)
}

func TestListWallets_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/wallets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAddWallet(t *testing.T) {
	f := newFixture(t, walletA)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"created", `{"address":"` + walletB + `"}`, http.StatusCreated},
		{"duplicate", `{"address":"` + walletA + `"}`, http.StatusConflict},
		{"invalid address", `{"address":"not-a-wallet"}`, http.StatusBadRequest},
		{"malformed body", `{"address":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/wallets", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, []string{walletA, walletB}, f.registry.List())
}

func TestRemoveWallet(t *testing.T) {
	f := newFixture(t, walletA, walletB)

	rec := f.do(http.MethodDelete, "/api/wallets/"+walletA, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{walletB}, f.registry.List())

	rec = f.do(http.MethodDelete, "/api/wallets/"+walletA, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t, walletA)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, sig := range []string{"s1", "s2", "s3"} {
		_, err := f.ledger.Commit(ctx, event(sig, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	other := event("s4", base)
	other.Wallet = walletB
	_, err := f.ledger.Commit(ctx, other)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/api/events?wallet="+walletA+"&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "s3", got[0].Signature)
	assert.Equal(t, "s2", got[1].Signature)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("2.5")))

	rec = f.do(http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 4)
}

func TestListEvents_BadLimit(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"limit=0", "limit=-1", "limit=ten"} {
		rec := f.do(http.MethodGet, "/api/events?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPut, "/api/wallets", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebSocket_StreamsEvents(t *testing.T) {
	f := newFixture(t, walletA)
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return f.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.feed.Publish(event("live1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, "live1", msg.Payload.Signature)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return f.feed.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ClosedFeedEndsStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return f.feed.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.feed.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestWebSocket_NoFeed(t *testing.T) {
	reg, err := registry.Open(context.Background(), memory.NewWalletStore(), nil, nil)
	require.NoError(t, err)
	srv := New(Options{Wallets: reg, Events: memory.NewEventStore()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
