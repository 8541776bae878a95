package odoo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// execCall is one decoded object.execute_kw invocation.
type execCall struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

// fakeRPC emulates the Odoo JSON-RPC endpoint. login and execute decide
// the reply per call; rateLimit counts down 429 responses before the
// handlers are consulted.
type fakeRPC struct {
	t         *testing.T
	login     func(db, user, secret string) any
	execute   func(call execCall) (any, *rpcError)
	rateLimit int

	mu         sync.Mutex
	loginCalls []string
	execCalls  []execCall
}

func (f *fakeRPC) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		// One request at a time keeps the recorded call order stable even
		// when client tests fire concurrent requests.
		f.mu.Lock()
		defer f.mu.Unlock()

		var req struct {
			Params struct {
				Service string `json:"service"`
				Method  string `json:"method"`
				Args    []any  `json:"args"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Fatalf("decode rpc request: %v", err)
		}

		if f.rateLimit > 0 {
			f.rateLimit--
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		switch {
		case req.Params.Service == "common" && req.Params.Method == "login":
			secret, _ := req.Params.Args[2].(string)
			f.loginCalls = append(f.loginCalls, secret)
			db, _ := req.Params.Args[0].(string)
			user, _ := req.Params.Args[1].(string)
			writeResult(w, f.login(db, user, secret))

		case req.Params.Service == "object" && req.Params.Method == "execute_kw":
			call := execCall{}
			call.Model, _ = req.Params.Args[3].(string)
			call.Method, _ = req.Params.Args[4].(string)
			call.Args, _ = req.Params.Args[5].([]any)
			if len(req.Params.Args) > 6 {
				call.Kwargs, _ = req.Params.Args[6].(map[string]any)
			}
			f.execCalls = append(f.execCalls, call)

			result, rpcErr := f.execute(call)
			if rpcErr != nil {
				writeError(w, rpcErr)
				return
			}
			writeResult(w, result)

		default:
			f.t.Fatalf("unexpected rpc %s.%s", req.Params.Service, req.Params.Method)
		}
	}
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "result": result})
}

func writeError(w http.ResponseWriter, rpcErr *rpcError) {
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "error": rpcErr})
}

func remoteError(name, message string) *rpcError {
	e := &rpcError{Code: 200, Message: "Odoo Server Error"}
	e.Data.Name = name
	e.Data.Message = message
	return e
}

// newTestClient wires a client against the fake with near-zero backoff and
// a recorded sleep function.
func newTestClient(t *testing.T, fake *fakeRPC, cfg Config) (*Client, *[]time.Duration) {
	t.Helper()

	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	cfg.URL = server.URL
	if cfg.Database == "" {
		cfg.Database = "test-db"
	}
	if cfg.Username == "" {
		cfg.Username = "agent@example.com"
	}
	if cfg.APIKey == "" && cfg.Password == "" {
		cfg.APIKey = "test-key"
	}

	client, err := NewClient(cfg, WithHTTPClient(server.Client()), WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	var sleeps []time.Duration
	client.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return client, &sleeps
}

// acceptAnyLogin authenticates every secret as uid 7.
func acceptAnyLogin(string, string, string) any { return 7 }

// fakeStore is an in-memory record store backing saga tests. failCreate
// marks models whose create must be rejected.
type fakeStore struct {
	nextID     int64
	records    map[string]map[int64]map[string]any
	failCreate map[string]bool
	failUnlink map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    map[string]map[int64]map[string]any{},
		failCreate: map[string]bool{},
		failUnlink: map[string]bool{},
	}
}

func (s *fakeStore) execute(call execCall) (any, *rpcError) {
	switch call.Method {
	case "create":
		if s.failCreate[call.Model] {
			return nil, remoteError("odoo.exceptions.ValidationError", fmt.Sprintf("%s rejected", call.Model))
		}
		vals, _ := call.Args[0].(map[string]any)
		s.nextID++
		if s.records[call.Model] == nil {
			s.records[call.Model] = map[int64]map[string]any{}
		}
		s.records[call.Model][s.nextID] = vals
		return s.nextID, nil

	case "unlink":
		if s.failUnlink[call.Model] {
			return nil, remoteError("odoo.exceptions.UserError", fmt.Sprintf("%s is locked", call.Model))
		}
		ids, _ := call.Args[0].([]any)
		for _, raw := range ids {
			id, _ := raw.(float64)
			delete(s.records[call.Model], int64(id))
		}
		return true, nil

	default:
		return nil, remoteError("odoo.exceptions.UserError", "unsupported method "+call.Method)
	}
}

func (s *fakeStore) count(model string) int { return len(s.records[model]) }
