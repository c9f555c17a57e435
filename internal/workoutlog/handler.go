package workoutlog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"
	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/internal/workoutstats"
	"github.com/pilatesloop/backend/pkg"
)

type logsRepo interface {
	Add(ctx context.Context, workoutLog Log) (_ *Log, created bool, err error)
	Get(ctx context.Context, id string) (*Log, error)
	List(ctx context.Context, params ListParams) (_ []Log, total int, err error)
	ListAll(ctx context.Context, params LogParams) ([]Log, error)
	Share(ctx context.Context, id string, postID int) error
	Unshare(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	LogsCount(ctx context.Context, params LogParams) (int, error)
}

// sharePoster publishes a shared workout to the community feed
// and returns the ID of the created post.
type sharePoster interface {
	PublishWorkout(ctx context.Context, userID int, logID string, message string) (postID int, err error)
}

type postRemover interface {
	RemoveWorkoutPost(ctx context.Context, postID int) error
}

type AddLogResponse struct {
	Log
	Created bool `json:"created"`
}

type DeleteLogResponse struct {
	DeletedID string `json:"deletedId"`
}

type ShareLogResponse struct {
	LogID  string `json:"logId"`
	PostID int    `json:"postId"`
}

type ListResponse struct {
	Logs  []Log `json:"logs"`
	Total int   `json:"total"`
}

type ShareRequest struct {
	Message string `json:"message"`
}

type Handler struct {
	repo        logsRepo
	sharePoster sharePoster
	postRemover postRemover
	metrics     *metrics.Manager
}

func NewHandler(
	repo logsRepo,
	sharePoster sharePoster,
	postRemover postRemover,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:        repo,
		sharePoster: sharePoster,
		postRemover: postRemover,
		metrics:     metricsManager,
	}
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var workoutLog Log
	if err := json.NewDecoder(r.Body).Decode(&workoutLog); err != nil {
		log.Tracef("new workout log, unmarshal json params: %s", err)
		http.Error(w, "add workout log failed", http.StatusBadRequest)
		return
	}

	now := time.Now()
	if err := workoutLog.Validate(now); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if workoutLog.CreatedAt.IsZero() {
		workoutLog.CreatedAt = now
	}
	if workoutLog.CalorieEstimate == 0 {
		workoutLog.CalorieEstimate = workoutstats.EstimateCalories(
			workoutLog.Type, workoutLog.DurationMinutes, workoutLog.RPE, 0,
		)
	}

	addedLog, created, err := handler.repo.Add(ctx, workoutLog)
	if err != nil {
		log.Errorf("failed to add new workout log [%s]: %s", workoutLog.ID, err)
		http.Error(w, "error, failed to add new workout log", http.StatusInternalServerError)
		return
	}

	if created {
		handler.metrics.CounterWorkoutLogs.Inc()
	}

	addedLogJson, err := json.Marshal(AddLogResponse{
		Log:     *addedLog,
		Created: created,
	})
	if err != nil {
		log.Errorf("failed to marshal new workout log: %s", err)
		http.Error(w, "error, failed to add new workout log", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !created {
		// retried upload of an already stored log
		status = http.StatusOK
	}

	log.Debugf("new workout log added: %s", addedLog.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedLogJson, status)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.get")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	workoutLog, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			http.Error(w, "workout log not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get workout log %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logJson, err := json.Marshal(workoutLog)
	if err != nil {
		log.Errorf("failed to marshal workout log: %s", err)
		http.Error(w, "failed to marshal workout log", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, logJson, http.StatusOK)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle list workout logs, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle list workout logs, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}

	if page < 1 {
		http.Error(w, "invalid page (has to be non-zero value)", http.StatusBadRequest)
		return
	}
	if size < 1 {
		http.Error(w, "invalid size (has to be non-zero value)", http.StatusBadRequest)
		return
	}

	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	sharedOnly := false
	if r.URL.Query().Get("shared_only") == "true" {
		sharedOnly = true
	}

	logs, total, err := handler.repo.List(ctx, ListParams{
		LogParams: LogParams{
			UserID:      userID,
			WorkoutType: r.URL.Query().Get("type"),
			SharedOnly:  sharedOnly,
		},
		Page: page,
		Size: size,
	})
	if err != nil {
		log.Errorf("list workout logs error: %s", err)
		http.Error(w, "failed to get workout logs", http.StatusInternalServerError)
		return
	}

	listRespJson, err := json.Marshal(ListResponse{
		Logs:  logs,
		Total: total,
	})
	if err != nil {
		log.Errorf("marshal workout logs error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listRespJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.delete")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	workoutLog, err := handler.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrLogNotFound) {
		log.Errorf("failed to get workout log %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	} else if errors.Is(err, ErrLogNotFound) {
		log.Debugf("workout log %s not found", id)
		http.Error(w, "workout log not found", http.StatusNotFound)
		return
	}

	if workoutLog.IsShared && workoutLog.SharedPostID != nil {
		if err := handler.postRemover.RemoveWorkoutPost(ctx, *workoutLog.SharedPostID); err != nil {
			// log only, the shared post is not worth failing the delete for
			log.Errorf("failed to remove shared post %d for log %s: %s", *workoutLog.SharedPostID, id, err)
		}
	}

	if err := handler.repo.Delete(ctx, id); err != nil {
		log.Errorf("failed to delete workout log %s: %s", id, err)
		http.Error(w, "workout log not deleted", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteLogResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.share")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	var shareReq ShareRequest
	if r.Body != nil {
		// message is optional, a bad body is not
		if err := json.NewDecoder(r.Body).Decode(&shareReq); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "share workout failed", http.StatusBadRequest)
			return
		}
	}

	workoutLog, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			http.Error(w, "workout log not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get workout log %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if workoutLog.IsShared {
		http.Error(w, "workout log already shared", http.StatusConflict)
		return
	}

	postID, err := handler.sharePoster.PublishWorkout(ctx, workoutLog.UserID, workoutLog.ID, shareReq.Message)
	if err != nil {
		log.Errorf("failed to publish workout %s: %s", id, err)
		http.Error(w, "failed to share workout", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Share(ctx, id, postID); err != nil {
		if errors.Is(err, ErrAlreadyShared) {
			http.Error(w, "workout log already shared", http.StatusConflict)
			return
		}
		log.Errorf("failed to share workout log %s: %s", id, err)
		http.Error(w, "failed to share workout", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterSharedWorkouts.Inc()

	shareRespJson, err := json.Marshal(ShareLogResponse{
		LogID:  id,
		PostID: postID,
	})
	if err != nil {
		log.Errorf("failed to marshal share response: %s", err)
		http.Error(w, "failed to marshal share response", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, shareRespJson, http.StatusCreated)
}

func (handler *Handler) HandleUnshare(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutlog.unshare")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	workoutLog, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLogNotFound) {
			http.Error(w, "workout log not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get workout log %s: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !workoutLog.IsShared {
		http.Error(w, "workout log not shared", http.StatusConflict)
		return
	}

	if workoutLog.SharedPostID != nil {
		if err := handler.postRemover.RemoveWorkoutPost(ctx, *workoutLog.SharedPostID); err != nil {
			log.Errorf("failed to remove shared post %d for log %s: %s", *workoutLog.SharedPostID, id, err)
		}
	}

	if err := handler.repo.Unshare(ctx, id); err != nil {
		if errors.Is(err, ErrNotShared) {
			http.Error(w, "workout log not shared", http.StatusConflict)
			return
		}
		log.Errorf("failed to unshare workout log %s: %s", id, err)
		http.Error(w, "failed to unshare workout", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"unshared":true}`)
}
