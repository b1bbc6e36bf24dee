package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/seafoodstudios/equacks/internal/config"
	"github.com/seafoodstudios/equacks/internal/lock"
	"github.com/seafoodstudios/equacks/internal/records"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.RecordsPassword == "" {
		log.Fatal("RECORDS_PASSWORD is required")
	}

	recordStore := records.NewStore(cfg.RecordsPath)
	gate := lock.NewFileGate(cfg.RecordsPath + ".lock")
	handler := records.NewHandler(recordStore, gate, cfg.RecordsPassword, cfg.LockTimeout)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/submit_record", handler.SubmitRecordHandler).Methods("POST")
	r.HandleFunc("/get_record/{id}", handler.GetRecordHandler).Methods("GET")

	log.Infof("Records server starting on :%s (db=%s)", cfg.RecordsPort, cfg.RecordsPath)
	if err := http.ListenAndServe(":"+cfg.RecordsPort, r); err != nil {
		log.Fatal(err)
	}
}
