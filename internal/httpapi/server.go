// Package httpapi exposes the draw engine over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/openlotto/drawd/internal/bank"
	"github.com/openlotto/drawd/internal/cache"
	"github.com/openlotto/drawd/internal/lottery"
	"github.com/openlotto/drawd/internal/middleware"
	"github.com/openlotto/drawd/pkg/logger"
)

// Server handles the draw service HTTP API.
type Server struct {
	engine *lottery.Engine
	bank   *bank.Manager
	status *cache.StatusCache // nil disables the read cache
	log    *logger.Logger
}

// NewServer creates the API server. The status cache is optional.
func NewServer(engine *lottery.Engine, bankManager *bank.Manager, statusCache *cache.StatusCache, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		engine: engine,
		bank:   bankManager,
		status: statusCache,
		log:    log,
	}
}

// Routes registers all API routes on the router.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/draws/current", s.handleCurrentStatus).Methods(http.MethodGet)
	r.HandleFunc("/draws/current/tickets", s.handleBuyTicket).Methods(http.MethodPost)
	r.HandleFunc("/draws/current/resolution", s.handleRequestResolution).Methods(http.MethodPost)
	r.HandleFunc("/draws/{id:[0-9]+}", s.handleGetDraw).Methods(http.MethodGet)
	r.HandleFunc("/draws/{id:[0-9]+}/winners", s.handleGetWinners).Methods(http.MethodGet)
	r.HandleFunc("/draws/{id:[0-9]+}/tickets/{participant}", s.handleGetTickets).Methods(http.MethodGet)

	r.HandleFunc("/randomness/{token}", s.handleDeliverRandomness).Methods(http.MethodPost)

	r.HandleFunc("/admin/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/admin/unpause", s.handleUnpause).Methods(http.MethodPost)
	r.HandleFunc("/admin/emergency-withdrawal", s.handleEmergencyWithdraw).Methods(http.MethodPost)

	r.HandleFunc("/accounts/{account}/deposits", s.handleDeposit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{account}", s.handleGetAccount).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.status != nil {
		if status, ok := s.status.Get(ctx); ok {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}

	status, err := s.engine.GetCurrentStatus(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.status != nil {
		s.status.Set(ctx, status)
	}
	writeJSON(w, http.StatusOK, status)
}

type buyTicketRequest struct {
	Main    []int `json:"main"`
	Bonus   []int `json:"bonus"`
	Payment int64 `json:"payment"`
}

func (s *Server) handleBuyTicket(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerID(r.Context())
	if caller == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody("authentication required"))
		return
	}

	var req buyTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	ticket, err := s.engine.BuyTicket(r.Context(), caller, req.Main, req.Bonus, req.Payment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateStatus(r)
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleRequestResolution(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.RequestResolution(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateStatus(r)
	writeJSON(w, http.StatusAccepted, map[string]string{"token": token})
}

type randomnessRequest struct {
	Words []string `json:"words"`
}

func (s *Server) handleDeliverRandomness(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req randomnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	words, err := parseWords(req.Words)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	caller := middleware.CallerID(r.Context())
	if err := s.engine.DeliverRandomness(r.Context(), caller, token, words); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateStatus(r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetDraw(w http.ResponseWriter, r *http.Request) {
	drawID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid draw id"))
		return
	}
	draw, err := s.engine.GetDraw(r.Context(), drawID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draw)
}

func (s *Server) handleGetWinners(w http.ResponseWriter, r *http.Request) {
	drawID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid draw id"))
		return
	}
	winners, err := s.engine.GetWinners(r.Context(), drawID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if winners == nil {
		winners = []lottery.Winner{}
	}
	writeJSON(w, http.StatusOK, winners)
}

func (s *Server) handleGetTickets(w http.ResponseWriter, r *http.Request) {
	drawID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid draw id"))
		return
	}
	participant := mux.Vars(r)["participant"]

	tickets, err := s.engine.GetTicketsFor(r.Context(), drawID, participant)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []lottery.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context(), middleware.CallerID(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateStatus(r)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unpause(r.Context(), middleware.CallerID(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidateStatus(r)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.engine.EmergencyWithdraw(r.Context(), middleware.CallerID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

type depositRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if middleware.CallerRole(r.Context()) != middleware.RoleOperator {
		s.writeError(w, r, lottery.ErrUnauthorized)
		return
	}
	account := mux.Vars(r)["account"]

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := s.bank.Deposit(r.Context(), account, req.Amount, req.Reference); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "credited"})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	caller := middleware.CallerID(r.Context())
	if caller != account && middleware.CallerRole(r.Context()) != middleware.RoleOperator {
		s.writeError(w, r, lottery.ErrUnauthorized)
		return
	}

	balance, err := s.bank.Balance(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.bank.Transactions(r.Context(), account, 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":      account,
		"balance":      balance,
		"transactions": txs,
	})
}

// --- helpers ----------------------------------------------------------------

func (s *Server) invalidateStatus(r *http.Request) {
	if s.status != nil {
		s.status.Invalidate(r.Context())
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// parseWords decodes the delivered random words: hex with a 0x prefix, or
// decimal. Hex without the prefix is rejected rather than guessed at, so a
// long decimal word is never reinterpreted.
func parseWords(raw []string) ([]*big.Int, error) {
	words := make([]*big.Int, len(raw))
	for i, w := range raw {
		var (
			v  *big.Int
			ok bool
		)
		if strings.HasPrefix(w, "0x") || strings.HasPrefix(w, "0X") {
			v, ok = new(big.Int).SetString(w[2:], 16)
		} else {
			v, ok = new(big.Int).SetString(w, 10)
		}
		if !ok || v.Sign() < 0 {
			return nil, errors.New("invalid random word at index " + strconv.Itoa(i))
		}
		words[i] = v
	}
	return words, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			WithField("method", r.Method).
			Error("request failed")
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lottery.ErrDrawNotFound),
		errors.Is(err, lottery.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, lottery.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lottery.ErrInvalidPick),
		errors.Is(err, lottery.ErrInsufficientPayment),
		errors.Is(err, lottery.ErrMalformedRandomness):
		return http.StatusBadRequest
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, lottery.ErrPaused),
		errors.Is(err, lottery.ErrNotPaused),
		errors.Is(err, lottery.ErrDrawNotActive),
		errors.Is(err, lottery.ErrDrawStillActive),
		errors.Is(err, lottery.ErrAlreadyRequested),
		errors.Is(err, lottery.ErrAlreadyCompleted),
		errors.Is(err, lottery.ErrWithdrawalBlocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
