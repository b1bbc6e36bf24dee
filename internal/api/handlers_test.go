package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seafoodstudios/equacks/internal/engine"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/models"
	"github.com/seafoodstudios/equacks/internal/notify"
	"github.com/seafoodstudios/equacks/internal/store"
)

type testServer struct {
	router *mux.Router
	store  *store.FileStore
	gate   *lock.MutexGate
}

func newTestServer(t *testing.T, notifier *notify.Client) *testServer {
	t.Helper()
	s := store.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	gate := lock.NewMutexGate()
	eng := engine.New(s, gate, 2*time.Second)
	handler := NewHandler(eng, notifier)

	r := mux.NewRouter()
	r.HandleFunc("/ping", handler.PingHandler).Methods("GET")
	r.HandleFunc("/create_account", handler.CreateAccountHandler).Methods("POST")
	r.HandleFunc("/delete_account", handler.DeleteAccountHandler).Methods("POST")
	r.HandleFunc("/transfer_currency", handler.TransferCurrencyHandler).Methods("POST")
	r.HandleFunc("/get_balance", handler.GetBalanceHandler).Methods("POST")
	r.HandleFunc("/total_supply", handler.TotalSupplyHandler).Methods("GET")

	return &testServer{router: r, store: s, gate: gate}
}

func (ts *testServer) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) credit(t *testing.T, username string, amount int64) {
	t.Helper()
	ctx := context.Background()
	ledger, err := ts.store.Load(ctx)
	require.NoError(t, err)
	acct := ledger[username]
	acct.Balance += amount
	ledger[username] = acct
	require.NoError(t, ts.store.Replace(ctx, ledger))
}

func creds(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.get("/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pinged!", w.Body.String())
}

func TestCreateAccountEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.postForm("/create_account", creds("alice", "pw1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Success, user added!", w.Body.String())

	w = ts.postForm("/create_account", creds("alice", "other"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAccountJSONBody(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.postJSON("/create_account", `{"username":"alice","password":"pw1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Non-string JSON types are rejected, not coerced.
	w = ts.postJSON("/create_account", `{"username":"bob","password":42}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password must be a string")
}

func TestMissingFieldIsValidationError(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.postForm("/create_account", url.Values{"username": {"alice"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password must be a string")
}

func TestTransferFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("bob", "pw2")).Code)

	transfer := url.Values{
		"username": {"alice"}, "password": {"pw1"},
		"receiver": {"bob"}, "amount": {"50"},
	}

	// Fresh accounts hold nothing.
	w := ts.postForm("/transfer_currency", transfer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.credit(t, "alice", 100)

	w = ts.postForm("/transfer_currency", transfer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Success, transaction sent!")

	w = ts.postForm("/get_balance", creds("alice", "pw1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "50", w.Body.String())

	w = ts.postForm("/get_balance", creds("bob", "pw2"))
	assert.Equal(t, "50", w.Body.String())
}

func TestTransferRejectsNumericJSONAmount(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("bob", "pw2")).Code)
	ts.credit(t, "alice", 100)

	w := ts.postJSON("/transfer_currency", `{"username":"alice","password":"pw1","receiver":"bob","amount":50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount must be a string")
}

func TestTotalSupplyEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	ts.credit(t, "alice", 123)

	w := ts.get("/total_supply")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "123", w.Body.String())
}

func TestWrongPasswordDoesNotAlterStore(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	ts.credit(t, "alice", 10)

	w := ts.postForm("/delete_account", creds("alice", "wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ledger, err := ts.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Account{PasswordHash: ledger["alice"].PasswordHash, Balance: 10}, ledger["alice"])
}

func TestGateTimeoutIsRetryable503(t *testing.T) {
	ts := newTestServer(t, nil)

	release, err := ts.gate.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	w := ts.get("/total_supply")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTransferWithReceipt(t *testing.T) {
	records := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sekrit", r.PostForm.Get("password"))
		assert.Contains(t, r.PostForm.Get("record"), "from alice to bob")
		w.Write([]byte("receipt-id-1"))
	}))
	defer records.Close()

	notifier := notify.NewClient(records.URL, "sekrit", time.Second)
	ts := newTestServer(t, notifier)

	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("bob", "pw2")).Code)
	ts.credit(t, "alice", 100)

	w := ts.postForm("/transfer_currency", url.Values{
		"username": {"alice"}, "password": {"pw1"},
		"receiver": {"bob"}, "amount": {"50"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), records.URL+"/get_record/receipt-id-1")
}

func TestNotifierFailureDoesNotFailTransfer(t *testing.T) {
	records := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusInternalServerError)
	}))
	defer records.Close()

	notifier := notify.NewClient(records.URL, "sekrit", time.Second)
	ts := newTestServer(t, notifier)

	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("alice", "pw1")).Code)
	require.Equal(t, http.StatusOK, ts.postForm("/create_account", creds("bob", "pw2")).Code)
	ts.credit(t, "alice", 100)

	w := ts.postForm("/transfer_currency", url.Values{
		"username": {"alice"}, "password": {"pw1"},
		"receiver": {"bob"}, "amount": {"50"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Success, transaction sent!", w.Body.String())

	// The transfer committed despite the dead notifier.
	ledger, err := ts.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50), ledger["bob"].Balance)
}
