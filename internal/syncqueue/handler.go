package syncqueue

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/internal/workoutlog"
	"github.com/pilatesloop/backend/pkg"
)

type QueueResponse struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

type AbandonResponse struct {
	AbandonedID string `json:"abandonedId"`
}

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{
		queue: queue,
	}
}

// HandleEnqueue accepts a workout log recorded offline and queues it
// for commit. Safe to retry, the log ID keeps it idempotent.
func (handler *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.syncqueue.enqueue")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var workoutLog workoutlog.Log
	if err := json.NewDecoder(r.Body).Decode(&workoutLog); err != nil {
		log.Tracef("enqueue workout log, unmarshal json params: %s", err)
		http.Error(w, "enqueue workout log failed", http.StatusBadRequest)
		return
	}

	entry, err := handler.queue.Enqueue(ctx, workoutLog)
	if err != nil {
		log.Errorf("failed to enqueue workout log [%s]: %s", workoutLog.ID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entryJson, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("failed to marshal queue entry: %s", err)
		http.Error(w, "failed to marshal queue entry", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, entryJson, http.StatusAccepted)
}

func (handler *Handler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.syncqueue.get")
	defer span.End()

	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID < 1 {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	entries, err := handler.queue.Entries(ctx, userID)
	if err != nil {
		log.Errorf("failed to get queue for user %d: %s", userID, err)
		http.Error(w, "failed to get queue", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = make([]Entry, 0)
	}

	queueJson, err := json.Marshal(QueueResponse{
		Entries: entries,
		Total:   len(entries),
	})
	if err != nil {
		log.Errorf("failed to marshal queue: %s", err)
		http.Error(w, "failed to marshal queue", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, queueJson, http.StatusOK)
}

func (handler *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.syncqueue.abandon")
	defer span.End()

	vars := mux.Vars(r)
	entryID := vars["id"]
	if entryID == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID < 1 {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	if err := handler.queue.Abandon(ctx, userID, entryID); err != nil {
		log.Errorf("failed to abandon entry %s: %s", entryID, err)
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}

	abandonRespJson, err := json.Marshal(AbandonResponse{
		AbandonedID: entryID,
	})
	if err != nil {
		log.Errorf("failed to marshal abandon response: %s", err)
		http.Error(w, "failed to marshal abandon response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(abandonRespJson))
}

// HandleTriggerSync lets the client request a drain pass explicitly,
// e.g. after it regains connectivity.
func (handler *Handler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.syncqueue.trigger")
	defer span.End()

	trigger := Trigger(r.URL.Query().Get("trigger"))
	switch trigger {
	case TriggerForeground, TriggerConnectivity, TriggerColdStart:
	default:
		trigger = TriggerManual
	}

	handler.queue.Notify(trigger)
	pkg.WriteJSONResponseOK(w, `{"triggered":true}`)
}
