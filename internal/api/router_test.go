package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trailscore-backend-go/internal/config"
	"github.com/jengzang/trailscore-backend-go/internal/models"
	"github.com/jengzang/trailscore-backend-go/internal/recorder"
	"github.com/jengzang/trailscore-backend-go/internal/repository"
	"github.com/jengzang/trailscore-backend-go/internal/resource"
	"github.com/jengzang/trailscore-backend-go/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, fixLimit int) *gin.Engine {
	t.Helper()
	source := resource.NewPushSource()
	guard := resource.NewGuard(source, resource.NewLeaseLocker(), nil, resource.DefaultWatchOptions)
	svc := service.NewRecordingService(repository.NewMemoryStore(), source, guard, recorder.RealClock(),
		recorder.DefaultOptions(), config.DefaultScoring(), nil)

	cfg := &config.Config{DeviceID: "test-device", FixRateLimit: fixLimit}
	return SetupRouter(cfg, svc)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", "test-device")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, 0)
	w, _ := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRecordingFlow(t *testing.T) {
	r := newTestRouter(t, 0)

	w, env := do(t, r, http.MethodPost, "/api/v1/recorder/start", models.DeviceInfo{Platform: "ios"})
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, env.Message)
	}
	var session models.TrackingSession
	json.Unmarshal(env.Data, &session)
	if session.ID == "" || !session.IsActive {
		t.Fatalf("session = %+v", session)
	}

	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/start", nil); w.Code != http.StatusConflict {
		t.Errorf("second start: %d", w.Code)
	}

	now := session.StartTime
	fixes := []models.GPSFix{
		{Latitude: 46.0, Longitude: 7.0, Accuracy: 5, Timestamp: now + 1000},
		{Latitude: 46.01, Longitude: 7.0, Accuracy: 5, Timestamp: now + 60_000},
		{Latitude: 46.02, Longitude: 7.0, Accuracy: 5, Timestamp: now + 120_000},
	}
	w, env = do(t, r, http.MethodPost, "/api/v1/recorder/fixes", fixes)
	if w.Code != http.StatusOK {
		t.Fatalf("fixes: %d %s", w.Code, env.Message)
	}
	var ingest service.IngestResult
	json.Unmarshal(env.Data, &ingest)
	if ingest.Accepted != 3 {
		t.Errorf("ingest = %+v", ingest)
	}

	single := models.GPSFix{Latitude: 46.03, Longitude: 7.0, Accuracy: 5, Timestamp: now + 180_000}
	w, env = do(t, r, http.MethodPost, "/api/v1/recorder/fixes", single)
	json.Unmarshal(env.Data, &ingest)
	if w.Code != http.StatusOK || ingest.Accepted != 1 {
		t.Errorf("single fix: %d %+v", w.Code, ingest)
	}

	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/fixes", "{not json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad fixes: %d", w.Code)
	}

	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/pause", nil); w.Code != http.StatusOK {
		t.Errorf("pause: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/pause", nil); w.Code != http.StatusConflict {
		t.Errorf("second pause: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/resume", nil); w.Code != http.StatusOK {
		t.Errorf("resume: %d", w.Code)
	}

	sensor := resource.SensorError{Code: resource.PositionUnavailable}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/sensor-errors", sensor); w.Code != http.StatusOK {
		t.Errorf("sensor error: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/sensor-errors", "{}"); w.Code != http.StatusBadRequest {
		t.Errorf("empty sensor error: %d", w.Code)
	}

	place := models.Place{Name: "Harvest Tree", Type: "tree", Description: "Autumn harvest"}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/places", place); w.Code != http.StatusOK {
		t.Errorf("place: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/places", models.Place{}); w.Code != http.StatusBadRequest {
		t.Errorf("unnamed place: %d", w.Code)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/recorder/status", nil)
	var status service.StatusView
	json.Unmarshal(env.Data, &status)
	if w.Code != http.StatusOK || status.FixCount != 4 || status.PlaceCount != 1 || status.SensorError == "" {
		t.Errorf("status: %d %+v", w.Code, status)
	}

	w, env = do(t, r, http.MethodPost, "/api/v1/recorder/stop", service.StopRequest{Exempt: true})
	if w.Code != http.StatusOK {
		t.Fatalf("stop: %d %s", w.Code, env.Message)
	}
	var stopped service.StopResult
	json.Unmarshal(env.Data, &stopped)
	if stopped.Score.DistanceKm < 3 || stopped.Score.ThemeBonus != 5 || stopped.Score.TotalPoints == 0 {
		t.Errorf("score = %+v", stopped.Score)
	}

	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/pause", nil); w.Code != http.StatusConflict {
		t.Errorf("pause after stop: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/fixes", single); w.Code != http.StatusConflict {
		t.Errorf("fix after stop: %d", w.Code)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/archive?status=pending", nil)
	var entries []models.CompletedSession
	json.Unmarshal(env.Data, &entries)
	if w.Code != http.StatusOK || len(entries) != 1 || entries[0].Score == nil {
		t.Errorf("archive: %d %+v", w.Code, entries)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/v1/archive/"+session.ID, nil); w.Code != http.StatusOK {
		t.Errorf("archive get: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/archive/"+session.ID+"/retry", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("retry without sync: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodDelete, "/api/v1/archive/"+session.ID, nil); w.Code != http.StatusOK {
		t.Errorf("delete: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/archive/"+session.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/archive?status=lost", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", w.Code)
	}
}

func TestDiscard(t *testing.T) {
	r := newTestRouter(t, 0)

	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/discard", nil); w.Code != http.StatusConflict {
		t.Errorf("discard while idle: %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/api/v1/recorder/session", nil); w.Code != http.StatusNotFound {
		t.Errorf("session while idle: %d", w.Code)
	}

	do(t, r, http.MethodPost, "/api/v1/recorder/start", nil)
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/discard", nil); w.Code != http.StatusOK {
		t.Errorf("discard: %d", w.Code)
	}

	_, env := do(t, r, http.MethodGet, "/api/v1/archive", nil)
	var entries []models.CompletedSession
	json.Unmarshal(env.Data, &entries)
	if len(entries) != 0 {
		t.Errorf("discarded session archived: %+v", entries)
	}
}

func TestScoringCompute(t *testing.T) {
	r := newTestRouter(t, 0)

	body := `{
		"track": {"totalDistance": 5000},
		"places": [{"name": "Summit", "type": "PEAK"}],
		"config": {"pointsPerKm": 2, "minDistanceKm": 3, "requireAtLeastOnePlace": true, "placeTypePoints": {"PEAK": 1}}
	}`
	w, env := do(t, r, http.MethodPost, "/api/v1/scoring/compute", body)
	if w.Code != http.StatusOK {
		t.Fatalf("compute: %d %s", w.Code, env.Message)
	}
	var result models.ScoringResult
	json.Unmarshal(env.Data, &result)
	if result.DistancePoints != 10 || result.PlacePoints != 1 || result.TotalPoints != 11 || result.DistancePenalty {
		t.Errorf("result = %+v", result)
	}

	bad := `{"track": {"fixes": [{"latitude": 120, "longitude": 7, "accuracy": 5, "timestamp": 1}]}}`
	if w, _ := do(t, r, http.MethodPost, "/api/v1/scoring/compute", bad); w.Code != http.StatusBadRequest {
		t.Errorf("invalid fix: %d", w.Code)
	}

	if w, _ := do(t, r, http.MethodGet, "/api/v1/scoring/config", nil); w.Code != http.StatusOK {
		t.Errorf("config: %d", w.Code)
	}
}

func TestFixRateLimit(t *testing.T) {
	r := newTestRouter(t, 2)
	do(t, r, http.MethodPost, "/api/v1/recorder/start", nil)

	fix := models.GPSFix{Latitude: 46, Longitude: 7, Accuracy: 5, Timestamp: 1_700_000_000_000}
	for i := 0; i < 2; i++ {
		if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/fixes", fix); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	if w, _ := do(t, r, http.MethodPost, "/api/v1/recorder/fixes", fix); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: %d", w.Code)
	}
}
