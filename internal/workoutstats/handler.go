package workoutstats

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pilatesloop/backend/internal/telemetry/tracing"
	"github.com/pilatesloop/backend/pkg"
)

type statsAggregator interface {
	GetStats(ctx context.Context, userID int, now time.Time) (*Stats, error)
	GetStreak(ctx context.Context, userID int, now time.Time) (StreakResult, error)
	WeeklyProgress(ctx context.Context, userID int, now time.Time) ([7]bool, error)
}

type WeeklyProgressResponse struct {
	WeeklyProgress [7]bool `json:"weeklyProgress"`
}

type Handler struct {
	aggregator statsAggregator
}

func NewHandler(aggregator statsAggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
	}
}

func userIDFromQuery(r *http.Request) (int, bool) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID < 1 {
		return 0, false
	}
	return userID, true
}

func (handler *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutstats.get")
	defer span.End()

	userID, ok := userIDFromQuery(r)
	if !ok {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	stats, err := handler.aggregator.GetStats(ctx, userID, time.Now())
	if err != nil {
		log.Errorf("failed to get stats for user %d: %s", userID, err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("failed to marshal stats: %s", err)
		http.Error(w, "failed to marshal stats", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, statsJson, http.StatusOK)
}

func (handler *Handler) HandleGetStreak(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutstats.streak")
	defer span.End()

	userID, ok := userIDFromQuery(r)
	if !ok {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	streak, err := handler.aggregator.GetStreak(ctx, userID, time.Now())
	if err != nil {
		log.Errorf("failed to get streak for user %d: %s", userID, err)
		http.Error(w, "failed to get streak", http.StatusInternalServerError)
		return
	}

	streakJson, err := json.Marshal(streak)
	if err != nil {
		log.Errorf("failed to marshal streak: %s", err)
		http.Error(w, "failed to marshal streak", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, streakJson, http.StatusOK)
}

func (handler *Handler) HandleWeeklyProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workoutstats.weekly-progress")
	defer span.End()

	userID, ok := userIDFromQuery(r)
	if !ok {
		http.Error(w, "parse form error, parameter <user_id>", http.StatusBadRequest)
		return
	}

	progress, err := handler.aggregator.WeeklyProgress(ctx, userID, time.Now())
	if err != nil {
		log.Errorf("failed to get weekly progress for user %d: %s", userID, err)
		http.Error(w, "failed to get weekly progress", http.StatusInternalServerError)
		return
	}

	progressJson, err := json.Marshal(WeeklyProgressResponse{
		WeeklyProgress: progress,
	})
	if err != nil {
		log.Errorf("failed to marshal weekly progress: %s", err)
		http.Error(w, "failed to marshal weekly progress", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, progressJson, http.StatusOK)
}
