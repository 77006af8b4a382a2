package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"referral_dashboard/internal/config"
	"referral_dashboard/internal/engine"
	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/notify"
	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/registry"
	"referral_dashboard/internal/store/sqlite"
	"referral_dashboard/internal/utils"
	"referral_dashboard/internal/ws"
)

const maskedAuthCode = "******"

type Options struct {
	Cfg        config.Config
	Bus        *logbus.Bus
	Store      *sqlite.Store
	Registry   *registry.Registry
	Aggregator *engine.Aggregator
	Now        func() time.Time
}

type Server struct {
	cfg   config.Config
	bus   *logbus.Bus
	store *sqlite.Store
	reg   *registry.Registry
	agg   *engine.Aggregator
	ws    *ws.Handler
	now   func() time.Time
}

func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:   opts.Cfg,
		bus:   opts.Bus,
		store: opts.Store,
		reg:   opts.Registry,
		agg:   opts.Aggregator,
		ws:    ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
		now:   now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/accounts", s.handleAccounts)
	api.HandleFunc("/api/v1/accounts/select", s.handleSelect)
	api.HandleFunc("/api/v1/commissions/summary", s.handleSummary)
	api.HandleFunc("/api/v1/commissions/daily", s.handleDaily)
	api.HandleFunc("/api/v1/commissions/presets", s.handlePresets)
	api.HandleFunc("/api/v1/invited-reward/summary", s.handleInvitedReward)
	api.HandleFunc("/api/v1/redemptions", s.handleRedemptions)
	api.HandleFunc("/api/v1/projection", s.handleProjection)
	api.HandleFunc("/api/v1/refresh", s.handleRefresh)
	api.HandleFunc("/api/v1/settings/email", s.handleEmailSettings)
	api.HandleFunc("/api/v1/settings/email/test", s.handleEmailTest)
	api.HandleFunc("/api/v1/settings/payout", s.handlePayoutSettings)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"data":    s.reg.States(),
			"version": s.reg.Snapshot().Version,
		})
	case http.MethodPost:
		var body struct {
			Account  string `json:"account"`
			Password string `json:"password"`
		}
		if err := readJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		c, err := s.reg.AddAccount(r.Context(), body.Account, body.Password)
		if err != nil {
			s.bus.Log("warn", "add account failed", map[string]any{"account": strings.TrimSpace(body.Account), "error": err.Error()})
			writeError(w, statusForError(err), err)
			return
		}
		st := model.AccountState{Account: c.Account()}
		if t := c.Token(); t != nil {
			st.Authenticated = true
			st.Subject = t.Subject
			st.ExpiresAt = t.ExpiresAt
		}
		st.Selected = s.reg.Snapshot().IsSelected(c.Account())
		writeJSON(w, http.StatusOK, map[string]any{"data": st})
	case http.MethodDelete:
		account := strings.TrimSpace(r.URL.Query().Get("account"))
		if account == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "account is required"})
			return
		}
		if err := s.reg.Remove(r.Context(), account); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		All   bool `json:"all"`
		Index *int `json:"index,omitempty"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch {
	case body.All:
		s.reg.SelectAll()
	case body.Index != nil:
		if err := s.reg.SelectOne(*body.Index); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "all or index is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.reg.States()})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	res, err := s.agg.Summary(r.Context())
	writeResult(w, res, res.Partial(), err)
}

func (s *Server) handleInvitedReward(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	res, err := s.agg.InvitedReward(r.Context())
	writeResult(w, res, res.Partial(), err)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	q := r.URL.Query()
	rng := utils.DateRange{From: strings.TrimSpace(q.Get("from")), To: strings.TrimSpace(q.Get("to"))}
	if rng.From == "" && rng.To == "" {
		name := strings.TrimSpace(q.Get("preset"))
		if name == "" {
			name = utils.PresetLast30Days
		}
		preset, ok := utils.Preset(name, s.now())
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown preset: " + name})
			return
		}
		rng = preset
	}
	res, err := s.agg.Daily(r.Context(), rng)
	writeResult(w, res, res.Partial(), err)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": utils.Presets(s.now())})
}

func (s *Server) handleRedemptions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	res, err := s.agg.Redemptions(r.Context())
	writeResult(w, res, res.Partial(), err)
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	res, err := s.agg.Projection(r.Context())
	writeResult(w, res, res.Partial(), err)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.agg.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type emailSettingsPayload struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Email    *string `json:"email,omitempty"`
	AuthCode *string `json:"authCode,omitempty"`
}

func (s *Server) handleEmailSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		val, ok, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"data": model.EmailSettings{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": maskEmailSettings(val)})
	case http.MethodPost:
		var body emailSettingsPayload
		if err := readJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		current, _, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		next := current
		if body.Enabled != nil {
			next.Enabled = *body.Enabled
		}
		if body.Email != nil {
			next.Email = strings.TrimSpace(*body.Email)
		}
		if body.AuthCode != nil {
			ac := strings.TrimSpace(*body.AuthCode)
			if ac != maskedAuthCode {
				next.AuthCode = ac
			}
		}
		if next.Enabled {
			if err := notify.ValidateEmailSettings(next); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}

		saved, err := s.store.UpsertEmailSettings(r.Context(), next)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": maskEmailSettings(saved)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type emailTestPayload struct {
	Email    string `json:"email,omitempty"`
	AuthCode string `json:"authCode,omitempty"`
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body emailTestPayload
	if r.ContentLength != 0 {
		if err := readJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	val, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if strings.TrimSpace(body.Email) != "" {
		val.Email = strings.TrimSpace(body.Email)
	}
	if ac := strings.TrimSpace(body.AuthCode); ac != "" && ac != maskedAuthCode {
		val.AuthCode = ac
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	if err := notify.SendTestEmail(ctx, val); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePayoutSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"data": s.agg.PayoutSettings()})
	case http.MethodPost:
		var body model.PayoutSettings
		if err := readJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.SettlementLagDays == 0 {
			body.SettlementLagDays = s.agg.PayoutSettings().SettlementLagDays
		}
		saved, err := s.store.UpsertPayoutSettings(r.Context(), body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": s.agg.SetPayoutSettings(saved)})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func maskEmailSettings(v model.EmailSettings) model.EmailSettings {
	if v.AuthCode != "" {
		v.AuthCode = maskedAuthCode
	}
	return v
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeResult answers 200 for partial results; partial carries the omitted accounts.
func writeResult(w http.ResponseWriter, data any, partial, err error) {
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	body := map[string]any{"data": data, "partial": partial != nil}
	writeJSON(w, http.StatusOK, body)
}

func statusForError(err error) int {
	var (
		authErr   *provider.AuthError
		remoteErr *provider.RemoteError
	)
	switch {
	case errors.Is(err, registry.ErrEmptyAccount),
		errors.Is(err, registry.ErrIndexRange),
		errors.Is(err, engine.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &remoteErr):
		if remoteErr.Status == http.StatusUnauthorized || remoteErr.Status == http.StatusBadRequest || remoteErr.Status == http.StatusForbidden {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
