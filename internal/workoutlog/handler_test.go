package workoutlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pilatesloop/backend/internal/telemetry/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sharePosterMock struct {
	nextPostID int
	published  map[string]int
	returnErr  error
}

func newSharePosterMock() *sharePosterMock {
	return &sharePosterMock{
		nextPostID: 100,
		published:  make(map[string]int),
	}
}

func (m *sharePosterMock) PublishWorkout(_ context.Context, _ int, logID string, _ string) (int, error) {
	if m.returnErr != nil {
		return 0, m.returnErr
	}
	m.nextPostID++
	m.published[logID] = m.nextPostID
	return m.nextPostID, nil
}

type postRemoverMock struct {
	removed []int
}

func (m *postRemoverMock) RemoveWorkoutPost(_ context.Context, postID int) error {
	m.removed = append(m.removed, postID)
	return nil
}

func testRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/workouts", handler.HandleAdd).Methods("POST")
	r.HandleFunc("/workouts/page/{page}/size/{size}", handler.HandleList).Methods("GET")
	r.HandleFunc("/workouts/{id}", handler.HandleGet).Methods("GET")
	r.HandleFunc("/workouts/{id}", handler.HandleDelete).Methods("DELETE")
	r.HandleFunc("/workouts/{id}/share", handler.HandleShare).Methods("POST")
	r.HandleFunc("/workouts/{id}/share", handler.HandleUnshare).Methods("DELETE")
	return r
}

func newTestLog(userID int) Log {
	return Log{
		ID:              uuid.NewString(),
		UserID:          userID,
		WorkoutDate:     time.Now().Add(-2 * time.Hour),
		DurationMinutes: 50,
		Type:            TypeMat,
		RPE:             6,
		FocusAreas:      []string{"core", "flexibility"},
	}
}

func TestHandler_Add(t *testing.T) {
	repo := NewMockLogsRepo()
	handler := NewHandler(repo, newSharePosterMock(), &postRemoverMock{}, metrics.NewTestManager())
	router := testRouter(handler)

	workoutLog := newTestLog(1)
	reqBody, err := json.Marshal(workoutLog)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/workouts", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var addResp AddLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addResp))
	assert.True(t, addResp.Created)
	assert.Equal(t, workoutLog.ID, addResp.ID)
	// calorie estimate filled in server side
	assert.Greater(t, addResp.CalorieEstimate, 0)

	// a retried upload of the same log is accepted, not duplicated
	req = httptest.NewRequest("POST", "/workouts", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addResp))
	assert.False(t, addResp.Created)
	assert.Len(t, repo.logs, 1)
}

func TestHandler_Add_InvalidRequests(t *testing.T) {
	repo := NewMockLogsRepo()
	handler := NewHandler(repo, newSharePosterMock(), &postRemoverMock{}, metrics.NewTestManager())
	router := testRouter(handler)

	// missing content type
	workoutLog := newTestLog(1)
	reqBody, err := json.Marshal(workoutLog)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/workouts", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// invalid rpe
	workoutLog = newTestLog(1)
	workoutLog.RPE = 14
	reqBody, err = json.Marshal(workoutLog)
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/workouts", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// invalid duration
	workoutLog = newTestLog(1)
	workoutLog.DurationMinutes = 200
	reqBody, err = json.Marshal(workoutLog)
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/workouts", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, repo.logs)
}

func TestHandler_GetAndDelete(t *testing.T) {
	repo := NewMockLogsRepo()
	postRemover := &postRemoverMock{}
	handler := NewHandler(repo, newSharePosterMock(), postRemover, metrics.NewTestManager())
	router := testRouter(handler)

	workoutLog := newTestLog(1)
	_, _, err := repo.Add(context.Background(), workoutLog)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/workouts/"+workoutLog.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var gotLog Log
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gotLog))
	assert.Equal(t, workoutLog.ID, gotLog.ID)

	req = httptest.NewRequest("GET", "/workouts/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest("DELETE", "/workouts/"+workoutLog.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.logs)

	// deleting again
	req = httptest.NewRequest("DELETE", "/workouts/"+workoutLog.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_List(t *testing.T) {
	repo := NewMockLogsRepo()
	handler := NewHandler(repo, newSharePosterMock(), &postRemoverMock{}, metrics.NewTestManager())
	router := testRouter(handler)

	for i := 0; i < 5; i++ {
		workoutLog := newTestLog(1)
		workoutLog.WorkoutDate = time.Now().Add(-time.Duration(i+1) * 24 * time.Hour)
		_, _, err := repo.Add(context.Background(), workoutLog)
		require.NoError(t, err)
	}

	req := httptest.NewRequest("GET", "/workouts/page/1/size/3?user_id=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 5, listResp.Total)
	assert.Len(t, listResp.Logs, 3)

	// newest first
	for i := 1; i < len(listResp.Logs); i++ {
		assert.True(t, listResp.Logs[i-1].WorkoutDate.After(listResp.Logs[i].WorkoutDate))
	}

	// another user sees nothing
	req = httptest.NewRequest("GET", "/workouts/page/1/size/3?user_id=2", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 0, listResp.Total)
}

func TestHandler_ShareUnshare(t *testing.T) {
	repo := NewMockLogsRepo()
	sharePoster := newSharePosterMock()
	postRemover := &postRemoverMock{}
	handler := NewHandler(repo, sharePoster, postRemover, metrics.NewTestManager())
	router := testRouter(handler)

	workoutLog := newTestLog(1)
	_, _, err := repo.Add(context.Background(), workoutLog)
	require.NoError(t, err)

	shareBody := bytes.NewReader([]byte(`{"message":"nailed my teaser today"}`))
	req := httptest.NewRequest("POST", fmt.Sprintf("/workouts/%s/share", workoutLog.ID), shareBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var shareResp ShareLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shareResp))
	assert.Equal(t, workoutLog.ID, shareResp.LogID)
	assert.Equal(t, sharePoster.published[workoutLog.ID], shareResp.PostID)

	// sharing again is a conflict
	req = httptest.NewRequest("POST", fmt.Sprintf("/workouts/%s/share", workoutLog.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req = httptest.NewRequest("DELETE", fmt.Sprintf("/workouts/%s/share", workoutLog.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{shareResp.PostID}, postRemover.removed)

	// unsharing again is a conflict
	req = httptest.NewRequest("DELETE", fmt.Sprintf("/workouts/%s/share", workoutLog.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Share_PublishError(t *testing.T) {
	repo := NewMockLogsRepo()
	sharePoster := newSharePosterMock()
	sharePoster.returnErr = errors.New("feed down")
	handler := NewHandler(repo, sharePoster, &postRemoverMock{}, metrics.NewTestManager())
	router := testRouter(handler)

	workoutLog := newTestLog(1)
	_, _, err := repo.Add(context.Background(), workoutLog)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", fmt.Sprintf("/workouts/%s/share", workoutLog.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// log stays unshared
	gotLog, err := repo.Get(context.Background(), workoutLog.ID)
	require.NoError(t, err)
	assert.False(t, gotLog.IsShared)
}
