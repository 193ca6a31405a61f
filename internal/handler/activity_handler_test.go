package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lifeloop/internal/db"
)

func TestCreateActivityLogEndpoint(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]any{
		"log_type": "spending",
		"value":    120.5,
		"category": "groceries",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c := authedContext(t, w, 1)
	c.Request = req

	api.CreateActivityLog(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var entry db.ActivityLog
	if err := db.DB.Where("user_id = ?", 1).First(&entry).Error; err != nil {
		t.Fatalf("log should be persisted: %v", err)
	}
	if entry.LogType != db.LogTypeSpending || entry.Value != 120.5 {
		t.Fatalf("unexpected log: %+v", entry)
	}
}

func TestCreateActivityLogRejectsNegativeValue(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]any{"log_type": "steps", "value": -5})
	req := httptest.NewRequest(http.MethodPost, "/api/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c := authedContext(t, w, 1)
	c.Request = req

	api.CreateActivityLog(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestUpsertLifeScoreEndpointOverwritesSameDay(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	submit := func(overall int) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{
			"date":         "2026-07-10",
			"overall":      overall,
			"productivity": 70,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/scores", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		c := authedContext(t, w, 1)
		c.Request = req
		api.UpsertLifeScore(c)
		return w
	}

	if w := submit(60); w.Code != http.StatusOK {
		t.Fatalf("first submit failed: %d %s", w.Code, w.Body.String())
	}
	if w := submit(85); w.Code != http.StatusOK {
		t.Fatalf("second submit failed: %d %s", w.Code, w.Body.String())
	}

	var count int64
	db.DB.Model(&db.LifeScore{}).Where("user_id = ?", 1).Count(&count)
	if count != 1 {
		t.Fatalf("expected one score row, got %d", count)
	}

	var score db.LifeScore
	if err := db.DB.Where("user_id = ?", 1).First(&score).Error; err != nil {
		t.Fatalf("failed to load score: %v", err)
	}
	if score.Overall != 85 {
		t.Fatalf("expected latest overall 85, got %d", score.Overall)
	}
}

func TestGoalEndpoints(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]any{"title": "Read 12 books", "target_value": 12})
	req := httptest.NewRequest(http.MethodPost, "/api/goals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c := authedContext(t, w, 1)
	c.Request = req
	api.CreateGoal(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var goal db.Goal
	if err := db.DB.Where("user_id = ?", 1).First(&goal).Error; err != nil {
		t.Fatalf("goal should be persisted: %v", err)
	}

	body, _ = json.Marshal(map[string]any{"title": "Read 12 books", "progress": 25, "current_value": 3, "target_value": 12, "status": "active"})
	req = httptest.NewRequest(http.MethodPut, "/api/goals/"+strconv.Itoa(int(goal.ID)), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w = httptest.NewRecorder()
	c = authedContext(t, w, 1)
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: strconv.Itoa(int(goal.ID))}}
	api.UpdateGoal(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected update status %d: %s", w.Code, w.Body.String())
	}

	// 他人目标返回 404。
	w = httptest.NewRecorder()
	c = authedContext(t, w, 2)
	body, _ = json.Marshal(map[string]any{"title": "hijack"})
	req = httptest.NewRequest(http.MethodPut, "/api/goals/"+strconv.Itoa(int(goal.ID)), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: strconv.Itoa(int(goal.ID))}}
	api.UpdateGoal(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign goal, got %d", w.Code)
	}
}

func TestNudgeEndpoints(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	nudge := db.Nudge{UserID: 1, Message: "Check your plan", NudgeType: db.NudgeTypeSuccess}
	if err := db.DB.Create(&nudge).Error; err != nil {
		t.Fatalf("failed to seed nudge: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/nudges", nil)
	w := httptest.NewRecorder()
	c := authedContext(t, w, 1)
	c.Request = req
	api.ListNudges(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected list status %d", w.Code)
	}

	var resp struct {
		Nudges []json.RawMessage `json:"nudges"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Nudges) != 1 {
		t.Fatalf("expected 1 nudge, got %d", len(resp.Nudges))
	}

	req = httptest.NewRequest(http.MethodPost, "/api/nudges/"+strconv.Itoa(int(nudge.ID))+"/read", nil)
	w = httptest.NewRecorder()
	c = authedContext(t, w, 1)
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: strconv.Itoa(int(nudge.ID))}}
	api.MarkNudgeRead(c)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected mark-read status %d: %s", w.Code, w.Body.String())
	}

	var reloaded db.Nudge
	if err := db.DB.First(&reloaded, nudge.ID).Error; err != nil {
		t.Fatalf("failed to reload nudge: %v", err)
	}
	if !reloaded.Read {
		t.Fatal("expected nudge to be marked read")
	}
}
