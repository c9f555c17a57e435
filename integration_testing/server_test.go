package integration_testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pilatesloop/backend/internal/workoutlog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *Suite

func TestMain(m *testing.M) {
	ctx, cancel := context.WithCancel(context.Background())

	suite = newSuite(ctx)

	code := m.Run()

	cancel()
	suite.cleanup()
	os.Exit(code)
}

func newMobileRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, serverEndpoint+path, body)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "PilatesLoop/1.0")
	req.Header.Set("X-PLOOP-TOKEN", "test-mobile-secret")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func newBrowserRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, serverEndpoint+path, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Origin", "test")
	return req
}

func Test_Root(t *testing.T) {
	resp, err := http.DefaultClient.Do(newBrowserRequest(t, "GET", "/"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "I'm OK, thanks ;)", string(body))
}

func Test_Version(t *testing.T) {
	resp, err := http.DefaultClient.Do(newBrowserRequest(t, "GET", "/version"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "test-version-info", string(body))
}

func Test_WorkoutRoundTrip(t *testing.T) {
	workoutLog := workoutlog.Log{
		ID:              uuid.NewString(),
		UserID:          42,
		WorkoutDate:     time.Now().Add(-time.Hour),
		DurationMinutes: 50,
		Type:            workoutlog.TypeReformer,
		RPE:             6,
		FocusAreas:      []string{"core", "legs"},
	}
	logJSON, err := json.Marshal(workoutLog)
	require.NoError(t, err)

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Do(newMobileRequest(t, "POST", "/workouts", strings.NewReader(string(logJSON))))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// a retried upload of the same log is not an error
	resp2, err := client.Do(newMobileRequest(t, "POST", "/workouts", strings.NewReader(string(logJSON))))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := client.Do(newMobileRequest(t, "GET", fmt.Sprintf("/workouts/%s", workoutLog.ID), nil))
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	var storedLog workoutlog.Log
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&storedLog))
	assert.Equal(t, workoutLog.ID, storedLog.ID)
	assert.Equal(t, workoutLog.UserID, storedLog.UserID)
	assert.Greater(t, storedLog.CalorieEstimate, 0)

	resp4, err := client.Do(newMobileRequest(t, "GET", "/stats?user_id=42", nil))
	require.NoError(t, err)
	defer resp4.Body.Close()
	require.Equal(t, http.StatusOK, resp4.StatusCode)
}

func Test_UnauthorizedWithoutToken(t *testing.T) {
	req, err := http.NewRequest("GET", serverEndpoint+"/workouts/some-id", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Origin", "test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
