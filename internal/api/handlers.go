package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/engine"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/notify"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equacks_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equacks_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Handler exposes the ledger engine over HTTP. The notifier is
// optional; without one transfers simply complete without receipts.
type Handler struct {
	engine   *engine.Engine
	notifier *notify.Client
}

func NewHandler(e *engine.Engine, n *notify.Client) *Handler {
	return &Handler{engine: e, notifier: n}
}

func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	respondText(w, http.StatusOK, "Pinged!", "GET", "/ping")
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/create_account"))
	defer timer.ObserveDuration()

	username, password, err := credentialFields(r)
	if err != nil {
		respondFailure(w, "POST", "/create_account", err)
		return
	}

	if err := h.engine.CreateAccount(r.Context(), username, password); err != nil {
		respondFailure(w, "POST", "/create_account", err)
		return
	}
	respondText(w, http.StatusOK, "Success, user added!", "POST", "/create_account")
}

func (h *Handler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/delete_account"))
	defer timer.ObserveDuration()

	username, password, err := credentialFields(r)
	if err != nil {
		respondFailure(w, "POST", "/delete_account", err)
		return
	}

	if err := h.engine.DeleteAccount(r.Context(), username, password); err != nil {
		respondFailure(w, "POST", "/delete_account", err)
		return
	}
	respondText(w, http.StatusOK, "Success, user deleted!", "POST", "/delete_account")
}

func (h *Handler) TransferCurrencyHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfer_currency"))
	defer timer.ObserveDuration()

	data, err := requestFields(r)
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}
	username, err := stringField(data, "username")
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}
	password, err := stringField(data, "password")
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}
	receiver, err := stringField(data, "receiver")
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}
	amount, err := stringField(data, "amount")
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}

	transfer, err := h.engine.Transfer(r.Context(), username, password, receiver, amount)
	if err != nil {
		respondFailure(w, "POST", "/transfer_currency", err)
		return
	}

	// The transfer is committed and the gate released; the receipt is
	// strictly best-effort from here.
	msg := "Success, transaction sent!"
	if h.notifier != nil {
		id, err := h.notifier.Submit(r.Context(), transfer.Record())
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"sender":   transfer.Sender,
				"receiver": transfer.Receiver,
			}).Warn("receipt submission failed")
		} else {
			msg += " Receipt: " + h.notifier.RecordURL(id)
		}
	}
	respondText(w, http.StatusOK, msg, "POST", "/transfer_currency")
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/get_balance"))
	defer timer.ObserveDuration()

	username, password, err := credentialFields(r)
	if err != nil {
		respondFailure(w, "POST", "/get_balance", err)
		return
	}

	balance, err := h.engine.Balance(r.Context(), username, password)
	if err != nil {
		respondFailure(w, "POST", "/get_balance", err)
		return
	}
	respondText(w, http.StatusOK, strconv.FormatInt(balance, 10), "POST", "/get_balance")
}

func (h *Handler) TotalSupplyHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/total_supply"))
	defer timer.ObserveDuration()

	sum, err := h.engine.TotalSupply(r.Context())
	if err != nil {
		respondFailure(w, "GET", "/total_supply", err)
		return
	}
	respondText(w, http.StatusOK, strconv.FormatInt(sum, 10), "GET", "/total_supply")
}

// credentialFields extracts the username/password pair common to most
// operations.
func credentialFields(r *http.Request) (string, string, error) {
	data, err := requestFields(r)
	if err != nil {
		return "", "", err
	}
	username, err := stringField(data, "username")
	if err != nil {
		return "", "", err
	}
	password, err := stringField(data, "password")
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// requestFields decodes the body as JSON when the Content-Type says
// so, otherwise as an urlencoded form. JSON is decoded generically so
// non-string field types can be rejected rather than coerced.
func requestFields(r *http.Request) (map[string]any, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			return nil, &engine.ValidationError{Reason: "malformed JSON body"}
		}
		return data, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, &engine.ValidationError{Reason: "malformed form body"}
	}
	data := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			data[key] = values[0]
		}
	}
	return data, nil
}

func stringField(data map[string]any, name string) (string, error) {
	value, ok := data[name]
	if !ok {
		return "", &engine.ValidationError{Reason: name + " must be a string"}
	}
	s, ok := value.(string)
	if !ok {
		return "", &engine.ValidationError{Reason: name + " must be a string"}
	}
	return s, nil
}

// respondFailure maps engine errors onto status codes. Anything not in
// the taxonomy is logged with context and reported as a generic 500.
func respondFailure(w http.ResponseWriter, method, endpoint string, err error) {
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, engine.ErrConflict),
		errors.Is(err, engine.ErrNotFound),
		errors.Is(err, engine.ErrReceiverNotFound),
		errors.Is(err, engine.ErrAuth),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrSelfTransfer):
		respondText(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, lock.ErrTimeout):
		respondText(w, http.StatusServiceUnavailable, "ledger busy, please retry", method, endpoint)
	default:
		log.WithError(err).WithField("endpoint", endpoint).Error("transaction failed")
		respondText(w, http.StatusInternalServerError, "generic error", method, endpoint)
	}
}

func respondText(w http.ResponseWriter, code int, body, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body))
}
