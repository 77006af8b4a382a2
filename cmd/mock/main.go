package main

import (
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// the mock serves both upstream hosts:
//   provider.userBaseURL: http://127.0.0.1:8080/mock/user
//   provider.apiBaseURL:  http://127.0.0.1:8080/mock/api

type session struct {
	account   string
	sub       string
	refresh   string
	expiresAt time.Time
}

type mockServer struct {
	ttl time.Duration

	mu       sync.Mutex
	access   map[string]*session
	refresh  map[string]*session
	accounts map[string]string
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	ttl := flag.Duration("token-ttl", 2*time.Minute, "access token lifetime")
	flag.Parse()

	m := &mockServer{
		ttl:      *ttl,
		access:   make(map[string]*session),
		refresh:  make(map[string]*session),
		accounts: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/user/v1/shield/captcha/init", post(func(w http.ResponseWriter, _ map[string]any) {
		writeJSON(w, http.StatusOK, map[string]any{
			"captcha_token": "ck0." + randString(24),
			"expires_in":    300,
		})
	}))

	mux.HandleFunc("/mock/user/v1/auth/signin", post(func(w http.ResponseWriter, body map[string]any) {
		username, _ := body["username"].(string)
		password, _ := body["password"].(string)
		if strings.TrimSpace(username) == "" || password == "" || password == "wrong" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_account_or_password",
				"error_description": "account or password is incorrect",
			})
			return
		}
		if captcha, _ := body["captcha_token"].(string); captcha == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "captcha_invalid", "error_description": "captcha token is required"})
			return
		}
		writeJSON(w, http.StatusOK, m.issue(strings.TrimSpace(username), ""))
	}))

	mux.HandleFunc("/mock/user/v1/auth/token", post(func(w http.ResponseWriter, body map[string]any) {
		rt, _ := body["refresh_token"].(string)
		m.mu.Lock()
		s, ok := m.refresh[rt]
		if ok {
			delete(m.refresh, rt)
		}
		m.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "refresh token is invalid"})
			return
		}
		writeJSON(w, http.StatusOK, m.issue(s.account, s.sub))
	}))

	mux.HandleFunc("/mock/user/v1/user/me", m.authed(func(w http.ResponseWriter, _ *http.Request, s *session) {
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":    s.sub,
			"name":   strings.Split(s.account, "@")[0],
			"email":  s.account,
			"status": "ACTIVE",
		})
	}))

	mux.HandleFunc("/mock/api/promoting/v1/commissions/summary", m.authed(func(w http.ResponseWriter, _ *http.Request, s *session) {
		rng := seeded(s.account)
		available := float64(rng.Intn(12000)) / 100
		pending := float64(rng.Intn(5000)) / 100
		writeJSON(w, http.StatusOK, map[string]any{
			"total":           available + pending + float64(rng.Intn(20000))/100,
			"pending":         pending,
			"available":       available,
			"country":         "US",
			"commission_type": "C0",
			"cps_ratio":       0.3,
		})
	}))

	mux.HandleFunc("/mock/api/promoting/v1/invited-reward/summary", m.authed(func(w http.ResponseWriter, _ *http.Request, s *session) {
		rng := seeded(s.account + "/invited")
		writeJSON(w, http.StatusOK, map[string]any{
			"total":          float64(rng.Intn(30000)) / 100,
			"totalPaidNums":  rng.Intn(40),
			"totalRecommend": 40 + rng.Intn(200),
			"yesterday":      float64(rng.Intn(1500)) / 100,
		})
	}))

	mux.HandleFunc("/mock/api/promoting/v1/commissions/daily", m.authed(func(w http.ResponseWriter, r *http.Request, s *session) {
		q := r.URL.Query()
		if q.Get("user_id") != s.sub {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "permission_denied", "error_description": "user_id does not match token"})
			return
		}
		from, err1 := time.Parse("2006-01-02", q.Get("from"))
		to, err2 := time.Parse("2006-01-02", q.Get("to"))
		if err1 != nil || err2 != nil || to.Before(from) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_argument", "error_description": "from/to must be YYYY-MM-DD"})
			return
		}
		var series []map[string]any
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			day := d.Format("2006-01-02")
			rng := seeded(s.account + "/" + day)
			paid := rng.Intn(4)
			amount := float64(paid) * 4.99
			series = append(series, map[string]any{
				"day":                    day,
				"new_users":              rng.Intn(10),
				"paid_users":             paid,
				"paid_amount":            amount,
				"paid_amount_commission": float64(int(amount*30)) / 100,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"CPS": series, "CPA": []any{}})
	}))

	mux.HandleFunc("/mock/api/promoting/v1/redemptions", m.authed(func(w http.ResponseWriter, _ *http.Request, s *session) {
		rng := seeded(s.account + "/redemptions")
		statuses := []string{"SUCCEED", "SUCCEED", "PENDING", "ERROR"}
		methods := []string{"paypal", "usdt"}
		var items []map[string]any
		start := time.Now().AddDate(0, -6, 0)
		for i := 0; i < 2+rng.Intn(5); i++ {
			items = append(items, map[string]any{
				"time":   start.AddDate(0, 0, i*20).UTC().Format(time.RFC3339),
				"amount": 100 + rng.Intn(50),
				"status": statuses[rng.Intn(len(statuses))],
				"method": methods[rng.Intn(len(methods))],
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"redemptions": items})
	}))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock listening on %s (token ttl %s)", *addr, *ttl)
	log.Fatal(srv.ListenAndServe())
}

func (m *mockServer) issue(account, sub string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub == "" {
		sub = m.accounts[account]
		if sub == "" {
			sub = "mock_sub_" + randString(10)
			m.accounts[account] = sub
		}
	}
	s := &session{
		account:   account,
		sub:       sub,
		refresh:   "rt_" + randString(20),
		expiresAt: time.Now().Add(m.ttl),
	}
	at := "at_" + randString(32)
	m.access[at] = s
	m.refresh[s.refresh] = s
	return map[string]any{
		"token_type":    "Bearer",
		"access_token":  at,
		"refresh_token": s.refresh,
		"expires_in":    int64(m.ttl / time.Second),
		"sub":           sub,
	}
}

func (m *mockServer) authed(next func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		m.mu.Lock()
		s, ok := m.access[token]
		m.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthenticated", "error_description": "invalid access token"})
			return
		}
		if time.Now().After(s.expiresAt) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "token_expired", "error_description": "access token expired"})
			return
		}
		next(w, r, s)
	}
}

func post(next func(http.ResponseWriter, map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		next(w, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// seeded keeps mock figures stable per account and key across restarts.
func seeded(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprint(h, key)
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
