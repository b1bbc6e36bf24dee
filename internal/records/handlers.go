package records

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/lock"
)

var recordRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "equacks_records_requests_total",
	Help: "Total record service requests, labeled by status code",
}, []string{"method", "endpoint", "status"})

// MaxRecordLen bounds submitted record text, in characters.
const MaxRecordLen = 200

// Handler serves record submission and retrieval.
type Handler struct {
	store         *Store
	gate          lock.Gate
	adminPassword string
	lockTimeout   time.Duration
}

func NewHandler(s *Store, g lock.Gate, adminPassword string, lockTimeout time.Duration) *Handler {
	return &Handler{store: s, gate: g, adminPassword: adminPassword, lockTimeout: lockTimeout}
}

// SubmitRecordHandler stores a record under a fresh random id and
// returns the id. Only the ledger (which holds the admin password) may
// submit.
func (h *Handler) SubmitRecordHandler(w http.ResponseWriter, r *http.Request) {
	record, password, err := submitFields(r)
	if err != nil {
		respondText(w, http.StatusBadRequest, err.Error(), "POST", "/submit_record")
		return
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(h.adminPassword)) != 1 {
		respondText(w, http.StatusBadRequest, "invalid password, only admins may submit records", "POST", "/submit_record")
		return
	}
	if utf8.RuneCountInString(record) > MaxRecordLen {
		respondText(w, http.StatusBadRequest, "record is too long", "POST", "/submit_record")
		return
	}

	id, err := h.insert(r, record)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			respondText(w, http.StatusServiceUnavailable, "records busy, please retry", "POST", "/submit_record")
			return
		}
		log.WithError(err).Error("record submission failed")
		respondText(w, http.StatusInternalServerError, "internal error", "POST", "/submit_record")
		return
	}

	log.WithField("id", id).Info("record stored")
	respondText(w, http.StatusOK, id, "POST", "/submit_record")
}

func (h *Handler) insert(r *http.Request, record string) (string, error) {
	release, err := h.gate.Acquire(r.Context(), h.lockTimeout)
	if err != nil {
		return "", err
	}
	defer release()

	db, err := h.store.Load(r.Context())
	if err != nil {
		return "", err
	}

	// Ids are write-once: regenerate on the (vanishingly unlikely)
	// collision rather than overwrite.
	var id string
	for {
		id, err = newRecordID()
		if err != nil {
			return "", err
		}
		if _, exists := db[id]; !exists {
			break
		}
	}
	db[id] = record

	if err := h.store.Replace(r.Context(), db); err != nil {
		return "", err
	}
	return id, nil
}

// GetRecordHandler returns the record text for an id. Public, no
// authentication.
func (h *Handler) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	release, err := h.gate.Acquire(r.Context(), h.lockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			respondText(w, http.StatusServiceUnavailable, "records busy, please retry", "GET", "/get_record/{id}")
			return
		}
		log.WithError(err).Error("record lookup failed")
		respondText(w, http.StatusInternalServerError, "internal error", "GET", "/get_record/{id}")
		return
	}
	db, err := h.store.Load(r.Context())
	release()
	if err != nil {
		log.WithError(err).Error("record lookup failed")
		respondText(w, http.StatusInternalServerError, "internal error", "GET", "/get_record/{id}")
		return
	}

	record, ok := db[id]
	if !ok {
		respondText(w, http.StatusNotFound, "record does not exist", "GET", "/get_record/{id}")
		return
	}
	respondText(w, http.StatusOK, record, "GET", "/get_record/{id}")
}

func newRecordID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating record id")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func submitFields(r *http.Request) (string, string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			return "", "", errors.New("malformed JSON body")
		}
		record, ok := data["record"].(string)
		if !ok {
			return "", "", errors.New("record must be a string")
		}
		password, ok := data["password"].(string)
		if !ok {
			return "", "", errors.New("password must be a string")
		}
		return record, password, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", errors.New("malformed form body")
	}
	if _, ok := r.PostForm["record"]; !ok {
		return "", "", errors.New("record must be a string")
	}
	if _, ok := r.PostForm["password"]; !ok {
		return "", "", errors.New("password must be a string")
	}
	return r.PostForm.Get("record"), r.PostForm.Get("password"), nil
}

func respondText(w http.ResponseWriter, code int, body, method, endpoint string) {
	recordRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body))
}
