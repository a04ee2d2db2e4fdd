package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sarof/internal/config"
	"sarof/internal/economy"
	"sarof/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server fronts the economy for chat-platform collaborators. Callers are
// trusted bots, so requests carry the platform user and group ids directly
// and the only gate is the shared api key.
type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	eco    *economy.Service
	market *market.Service
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, eco *economy.Service, mkt *market.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		eco:    eco,
		market: mkt,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)

		r.Post("/accounts/ensure", s.handleEnsureAccount)
		r.Post("/accounts/convert", s.handleConvert)
		r.Post("/accounts/transfer", s.handleTransfer)
		r.Post("/accounts/claim", s.handleClaim)
		r.Delete("/accounts", s.handleCancelAccount)
		r.Post("/items/use", s.handleUseItem)
		r.Get("/users/{id}/inbox", s.handleInbox)
		r.Get("/users/{id}/counters", s.handleCounters)

		r.Get("/groups/{id}/treasury", s.handleTreasury)
		r.Post("/groups/{id}/treasury/deposit", s.handleTreasuryDeposit)
		r.Post("/groups/{id}/treasury/withdraw", s.handleTreasuryWithdraw)
		r.Get("/groups/{id}/ranklist", s.handleRanklist)
		r.Post("/groups/{id}/revolution", s.handleRevolution)
		r.Post("/groups/{id}/securities", s.handleListSecurity)

		r.Get("/securities", s.handleSecurities)
		r.Post("/securities/confirm", s.handleConfirm)
		r.Post("/securities/{name}/buy", s.handleBuy)
		r.Post("/securities/{name}/orders", s.handleRegisterOrder)
		r.Get("/securities/{name}/history", s.handleHistory)
	})
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type callerInput struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

func (c callerInput) validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return errors.New("group_id is required")
	}
	return nil
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		callerInput
		Nickname string `json:"nickname"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := s.eco.Ensure(r.Context(), in.UserID, in.GroupID, in.Nickname)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var in struct {
		callerInput
		ToStd  bool  `json:"to_std"`
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := s.eco.Convert(r.Context(), in.UserID, in.GroupID, in.ToStd, in.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		callerInput
		Target string `json:"target"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := s.eco.Transfer(r.Context(), in.UserID, in.GroupID, strings.TrimSpace(in.Target), in.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var in callerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := s.eco.SignInClaim(r.Context(), in.UserID, in.GroupID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gold": grant})
}

func (s *Server) handleCancelAccount(w http.ResponseWriter, r *http.Request) {
	var in callerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eco.Cancel(r.Context(), in.UserID, in.GroupID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUseItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		callerInput
		Item  string `json:"item"`
		Count int64  `json:"count"`
		Arg   string `json:"arg"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Count == 0 {
		in.Count = 1
	}
	msg, recognized, err := s.eco.UseItem(r.Context(), in.UserID, in.GroupID, in.Item, in.Count, in.Arg)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recognized": recognized, "message": msg})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	messages, err := s.eco.Inbox(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := s.eco.UserCounters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.eco.Treasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

func (s *Server) handleTreasuryDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTreasuryMove(w, r, true)
}

func (s *Server) handleTreasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTreasuryMove(w, r, false)
}

func (s *Server) handleTreasuryMove(w http.ResponseWriter, r *http.Request, deposit bool) {
	var in struct {
		UserID string `json:"user_id"`
		Item   string `json:"item"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	msg, err := s.eco.TreasuryMove(r.Context(), in.UserID, chi.URLParam(r, "id"), in.Item, in.Amount, deposit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (s *Server) handleRanklist(w http.ResponseWriter, r *http.Request) {
	item := r.URL.Query().Get("item")
	if item == "" {
		item = "gold"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.eco.Ranklist(r.Context(), item, chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleRevolution(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "1"
	report, err := s.market.Revolution(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListSecurity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	sec, token, err := s.market.List(r.Context(), in.UserID, chi.URLParam(r, "id"), in.Name)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if token != "" {
		writeJSON(w, http.StatusAccepted, map[string]any{"confirm_token": token})
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sec, err := s.market.Confirm(r.Context(), in.UserID, in.Token)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (s *Server) handleSecurities(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.Securities(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"securities": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		callerInput
		Units int64   `json:"units"`
		Limit float64 `json:"limit"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.market.Buy(r.Context(), in.UserID, in.GroupID, chi.URLParam(r, "name"), in.Units, in.Limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRegisterOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   string  `json:"user_id"`
		Quantity int64   `json:"quantity"`
		Quote    float64 `json:"quote"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ord, err := s.market.RegisterOrder(r.Context(), in.UserID, chi.URLParam(r, "name"), in.Quantity, in.Quote)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if ord == nil {
		writeJSON(w, http.StatusOK, map[string]any{"registered": false})
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	points, err := s.market.History(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, economy.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrNameCollision):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, economy.ErrNotFound), errors.Is(err, market.ErrNotListed):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrBadName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrStaleToken):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, market.ErrWrongCaller):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, economy.ErrInvariant):
		s.log.Error("ledger invariant violated", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
