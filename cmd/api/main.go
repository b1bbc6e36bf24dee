package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/api"
	"github.com/seafoodstudios/equacks/internal/config"
	"github.com/seafoodstudios/equacks/internal/engine"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/notify"
	"github.com/seafoodstudios/equacks/internal/store"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Initialize layers
	ledgerStore := store.NewFileStore(cfg.LedgerPath)
	gate := lock.NewFileGate(cfg.LockPath)
	eng := engine.New(ledgerStore, gate, cfg.LockTimeout)

	var notifier *notify.Client
	if cfg.RecordsURL != "" {
		notifier = notify.NewClient(cfg.RecordsURL, cfg.RecordsPassword, cfg.NotifyTimeout)
	} else {
		log.Warn("RECORDS_URL not set, transfers will complete without receipts")
	}

	handler := api.NewHandler(eng, notifier)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/ping", handler.PingHandler).Methods("GET")
	r.HandleFunc("/create_account", handler.CreateAccountHandler).Methods("POST")
	r.HandleFunc("/delete_account", handler.DeleteAccountHandler).Methods("POST")
	r.HandleFunc("/transfer_currency", handler.TransferCurrencyHandler).Methods("POST")
	r.HandleFunc("/get_balance", handler.GetBalanceHandler).Methods("POST")
	r.HandleFunc("/total_supply", handler.TotalSupplyHandler).Methods("GET")

	log.Infof("Ledger server starting on :%s (db=%s)", cfg.Port, cfg.LedgerPath)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
