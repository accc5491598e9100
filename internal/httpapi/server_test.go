package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlotto/drawd/internal/bank"
	"github.com/openlotto/drawd/internal/lottery"
	"github.com/openlotto/drawd/internal/middleware"
	"github.com/openlotto/drawd/pkg/logger"
)

var testSecret = []byte("httpapi-test-secret")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	handler http.Handler
	engine  *lottery.Engine
	bank    *bank.Manager
	clock   *testClock
	params  lottery.Params
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewDefault("test")
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	params := lottery.DefaultParams("operator", "oracle")
	bankManager := bank.NewManager(log)

	engine, err := lottery.New(params, lottery.NewMemoryStore(), bankManager, log,
		lottery.WithClock(clock.Now))
	require.NoError(t, err)

	server := NewServer(engine, bankManager, nil, log)
	router := mux.NewRouter()
	server.Routes(router)

	auth := middleware.NewAuthMiddleware(testSecret, log, []string{"/healthz"})
	return &testEnv{
		handler: auth.Handler(router),
		engine:  engine,
		bank:    bankManager,
		clock:   clock,
		params:  params,
	}
}

func (e *testEnv) request(t *testing.T, method, path, caller, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		token, err := middleware.SignToken(testSecret, caller, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) fund(t *testing.T, account string, amount int64) {
	t.Helper()
	rec := e.request(t, http.MethodPost, "/accounts/"+account+"/deposits", "operator", middleware.RoleOperator,
		depositRequest{Amount: amount, Reference: "test funding"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/draws/current", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_FullDrawLifecycle(t *testing.T) {
	env := newTestEnv(t)
	price := env.params.TicketPrice
	env.fund(t, "alice", price)
	env.fund(t, "bob", price)

	// Alice buys the eventual winning combination.
	rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
		buyTicketRequest{Main: []int{5, 4, 3, 2, 1}, Bonus: []int{2, 1}, Payment: price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var aliceTicket lottery.Ticket
	decode(t, rec, &aliceTicket)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, aliceTicket.Main)

	rec = env.request(t, http.MethodPost, "/draws/current/tickets", "bob", middleware.RolePlayer,
		buyTicketRequest{Main: []int{6, 7, 8, 9, 10}, Bonus: []int{3, 4}, Payment: price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/draws/current", "alice", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status lottery.Status
	decode(t, rec, &status)
	assert.Equal(t, int64(1), status.DrawID)
	assert.Equal(t, 2*price, status.PrizePool)
	assert.Equal(t, int64(2), status.TicketCount)

	// Resolution is rejected while the window is open.
	rec = env.request(t, http.MethodPost, "/draws/current/resolution", "operator", middleware.RoleOperator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.clock.Advance(env.params.WindowDuration + time.Second)

	rec = env.request(t, http.MethodPost, "/draws/current/resolution", "operator", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resolution map[string]string
	decode(t, rec, &resolution)
	token := resolution["token"]
	require.NotEmpty(t, token)

	// Words resolving to main 1-5, bonus 1-2: alice wins.
	words := []string{"0", "1", "2", "3", "4", "0", "1"}
	rec = env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
		randomnessRequest{Words: words})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/draws/1/winners", "alice", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var winners []lottery.Winner
	decode(t, rec, &winners)
	require.Len(t, winners, 1)
	assert.Equal(t, "alice", winners[0].Participant)

	pool := 2 * price
	fee := pool * env.params.HouseFeePercent / 100
	assert.Equal(t, pool-fee, winners[0].Prize)

	// Settlement rolled over into draw 2.
	rec = env.request(t, http.MethodGet, "/draws/current", "alice", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &status)
	assert.Equal(t, int64(2), status.DrawID)
	assert.Equal(t, int64(0), status.PrizePool)

	// Alice's account received the prize.
	rec = env.request(t, http.MethodGet, "/accounts/alice", "alice", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account struct {
		Balance int64 `json:"balance"`
	}
	decode(t, rec, &account)
	assert.Equal(t, pool-fee, account.Balance)
}

func TestServer_BuyTicketErrors(t *testing.T) {
	env := newTestEnv(t)
	price := env.params.TicketPrice
	env.fund(t, "alice", 10*price)

	t.Run("invalid pick", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 51}, Bonus: []int{1, 2}, Payment: price})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong payment", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 5}, Bonus: []int{1, 2}, Payment: price - 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unfunded caller", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "carol", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 5}, Bonus: []int{1, 2}, Payment: price})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("window closed", func(t *testing.T) {
		env.clock.Advance(env.params.WindowDuration + time.Second)
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 5}, Bonus: []int{1, 2}, Payment: price})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestServer_ResolutionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Advance(env.params.WindowDuration + time.Second)

	rec := env.request(t, http.MethodPost, "/draws/current/resolution", "alice", middleware.RolePlayer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodPost, "/draws/current/resolution", "operator", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Second request for the same draw is rejected.
	rec = env.request(t, http.MethodPost, "/draws/current/resolution", "operator", middleware.RoleOperator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_RandomnessDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Advance(env.params.WindowDuration + time.Second)

	rec := env.request(t, http.MethodPost, "/draws/current/resolution", "operator", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resolution map[string]string
	decode(t, rec, &resolution)
	token := resolution["token"]

	words := []string{"0", "1", "2", "3", "4", "0", "1"}

	t.Run("wrong caller", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "alice", middleware.RolePlayer,
			randomnessRequest{Words: words})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wrong word count", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: []string{"1", "2"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable word", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: []string{"0", "1", "2", "3", "4", "0", "zzz"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bare hex rejected", func(t *testing.T) {
		// Hex needs the 0x prefix; undecorated digits are always decimal.
		bare := append([]string{"0", "1", "2", "3", "4", "0"}, strings.Repeat("ab", 32))
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: bare})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("long decimal word accepted", func(t *testing.T) {
		// A 64-digit decimal word keeps its decimal meaning rather than being
		// reinterpreted as hex.
		decimal := append([]string{"0", "1", "2", "3", "4", "0"}, "1"+strings.Repeat("0", 63))
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: decimal})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("hex words accepted", func(t *testing.T) {
		hexWords := []string{"0x0", "0x1", "0x2", "0x3", "0x4", "0x0", "0x1"}
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: hexWords})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/randomness/"+token, "oracle", middleware.RoleRandomnessSource,
			randomnessRequest{Words: words})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_AdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("pause requires operator", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/admin/pause", "alice", middleware.RolePlayer, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec := env.request(t, http.MethodPost, "/admin/pause", "operator", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("paused engine rejects tickets", func(t *testing.T) {
		env.fund(t, "alice", env.params.TicketPrice)
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 5}, Bonus: []int{1, 2}, Payment: env.params.TicketPrice})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("withdrawal blocked while draw incomplete", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/admin/emergency-withdrawal", "operator", middleware.RoleOperator, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	rec = env.request(t, http.MethodPost, "/admin/unpause", "operator", middleware.RoleOperator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GetDrawNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/draws/999", "alice", middleware.RolePlayer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AccountAccessControl(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "alice", 100)

	// Bob cannot read alice's account; the operator can.
	rec := env.request(t, http.MethodGet, "/accounts/alice", "bob", middleware.RolePlayer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodGet, "/accounts/alice", "operator", middleware.RoleOperator, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Deposits are operator only.
	rec = env.request(t, http.MethodPost, "/accounts/bob/deposits", "bob", middleware.RolePlayer,
		depositRequest{Amount: 100, Reference: "self-serve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_TicketsByParticipant(t *testing.T) {
	env := newTestEnv(t)
	price := env.params.TicketPrice
	env.fund(t, "alice", 2*price)

	for i := 0; i < 2; i++ {
		rec := env.request(t, http.MethodPost, "/draws/current/tickets", "alice", middleware.RolePlayer,
			buyTicketRequest{Main: []int{1, 2, 3, 4, 5 + i}, Bonus: []int{1, 2}, Payment: price})
		require.Equal(t, http.StatusCreated, rec.Code, fmt.Sprintf("ticket %d: %s", i, rec.Body.String()))
	}

	rec := env.request(t, http.MethodGet, "/draws/1/tickets/alice", "alice", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tickets []lottery.Ticket
	decode(t, rec, &tickets)
	assert.Len(t, tickets, 2)

	rec = env.request(t, http.MethodGet, "/draws/1/tickets/bob", "bob", middleware.RolePlayer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tickets)
	assert.Len(t, tickets, 0)
}
