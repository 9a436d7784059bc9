package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusiq/ml-analytics/internal/adapters"
	"github.com/campusiq/ml-analytics/internal/analysis"
	"github.com/campusiq/ml-analytics/internal/cache"
	"github.com/campusiq/ml-analytics/internal/cohort"
	"github.com/campusiq/ml-analytics/internal/database"
	"github.com/campusiq/ml-analytics/internal/encoding"
	"github.com/campusiq/ml-analytics/internal/errors"
	"github.com/campusiq/ml-analytics/internal/monitoring"
	"github.com/campusiq/ml-analytics/internal/privacy"
	"github.com/campusiq/ml-analytics/internal/security"
	"github.com/campusiq/ml-analytics/internal/types"
)

// setupRouter builds the /api/ml surface the way main does, backed by a
// throwaway database and an unconfigured Gemini adapter. Persistence is
// synchronous here so tests can read history right after a predict.
func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	privacyService := privacy.NewService(repo, privacy.DefaultRetentionDays)
	scorer := analysis.NewScorer(nil)

	predictionCache := cache.NewPredictionCache(24*time.Hour, 1000)
	t.Cleanup(predictionCache.Close)

	cohortService := cohort.NewService(repo)
	t.Cleanup(func() { cohortService.Close() })

	geminiAdapter, err := adapters.NewGeminiAdapter(context.Background(), "", "", 0)
	require.NoError(t, err)

	appMetrics := monitoring.NewMetrics()
	predictionCache.SetMetrics(appMetrics)

	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())

	persist := func(ctx context.Context, resp types.PredictionResponse, coverage float64) error {
		metricsJSON, err := encoding.MarshalJSON(resp.PerformanceMetrics)
		if err != nil {
			return err
		}
		rec := database.NewPredictionRecord(
			privacyService.HashStudentID(resp.StudentID),
			resp.RiskScore, resp.RiskLevel, resp.Confidence, coverage,
			string(metricsJSON), resp.GeminiInsights != nil,
		)
		return repo.SavePrediction(ctx, rec)
	}

	r := gin.New()
	r.Use(errors.ErrorHandler())

	api := r.Group("/api/ml")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":                "ok",
			"timestamp":             time.Now().Format(time.RFC3339),
			"version":               serviceVersion,
			"gemini_api_configured": geminiAdapter.Configured(),
			"model":                 geminiAdapter.ModelName(),
			"cache": gin.H{
				"size":     predictionCache.Size(),
				"max_size": predictionCache.MaxSize(),
				"hit_rate": predictionCache.HitRate(),
			},
		})
	})

	api.POST("/student/:studentID/predict", securityMiddleware.StudentIDParamMiddleware("studentID"), func(c *gin.Context) {
		studentID := c.Param("studentID")

		var features analysis.StudentFeatures
		if err := c.ShouldBindJSON(&features); err != nil {
			appErr := errors.NewValidationError("invalid feature payload", err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if cached, found := predictionCache.Get(studentID); found {
			cached.FromCache = true
			c.JSON(http.StatusOK, cached)
			return
		}

		risks := scorer.Normalize(features)
		pred := scorer.ScoreRisks(risks)

		var insights *string
		enrichment := geminiAdapter.TryEnrich(c.Request.Context(), studentID, pred)
		if enrichment.Enriched {
			insights = &enrichment.Insights
		}

		response := types.PredictionResponse{
			StudentID:      studentID,
			Prediction:     pred,
			GeminiInsights: insights,
			FromCache:      false,
			GeneratedAt:    time.Now().UTC(),
		}

		predictionCache.Set(studentID, response)
		appMetrics.RecordPrediction(pred.RiskLevel, enrichment.Enriched)
		if err := persist(c.Request.Context(), response, risks.Coverage); err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, response)
	})

	api.GET("/student/:studentID/performance", securityMiddleware.StudentIDParamMiddleware("studentID"), func(c *gin.Context) {
		studentID := c.Param("studentID")

		if cached, found := predictionCache.Get(studentID); found {
			c.JSON(http.StatusOK, gin.H{
				"student_id":          studentID,
				"performance_metrics": cached.PerformanceMetrics,
				"risk_level":          cached.RiskLevel,
				"from_cache":          true,
			})
			return
		}

		rec, err := repo.LatestPrediction(c.Request.Context(), privacyService.HashStudentID(studentID))
		if err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				appErr := errors.NewNotFoundError("performance data", studentID)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		var metrics map[string]float64
		if rec.Breakdown != "" {
			if err := encoding.UnmarshalJSON([]byte(rec.Breakdown), &metrics); err != nil {
				appErr := errors.NewInternalError("failed to decode stored metrics", err)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"student_id":          studentID,
			"performance_metrics": metrics,
			"risk_level":          rec.RiskLevel,
			"from_cache":          false,
		})
	})

	api.GET("/student/:studentID/history", securityMiddleware.StudentIDParamMiddleware("studentID"), func(c *gin.Context) {
		studentID := c.Param("studentID")

		limit := 20
		if limitStr := c.Query("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 50 {
				limit = l
			}
		}

		records, err := repo.ListPredictions(c.Request.Context(), privacyService.HashStudentID(studentID), limit)
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) == 0 {
			appErr := errors.NewNotFoundError("prediction history", studentID)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"student_id": studentID,
			"history":    records,
			"count":      len(records),
		})
	})

	api.DELETE("/student/:studentID/data", securityMiddleware.StudentIDParamMiddleware("studentID"), func(c *gin.Context) {
		studentID := c.Param("studentID")

		removed, err := privacyService.DeleteStudentData(c.Request.Context(), studentID)
		if err != nil {
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictionCache.Delete(studentID)
		cohortService.InvalidateCache()

		c.JSON(http.StatusOK, gin.H{
			"message":         "student data deleted",
			"student_hash":    privacy.ShortHash(privacyService.HashStudentID(studentID)),
			"records_removed": removed,
		})
	})

	api.POST("/cache/invalidate", func(c *gin.Context) {
		studentID := c.Query("student_id")

		if studentID != "" {
			if err := securityMiddleware.ValidateStudentID(studentID); err != nil {
				appErr := errors.NewValidationError("invalid student id", err.Error())
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}

			removed := predictionCache.Delete(studentID)
			c.JSON(http.StatusOK, gin.H{
				"message":    "cache entry invalidated",
				"student_id": studentID,
				"removed":    removed,
				"cache_size": predictionCache.Size(),
			})
			return
		}

		predictionCache.Clear()
		c.JSON(http.StatusOK, gin.H{
			"message":    "prediction cache cleared",
			"cache_size": predictionCache.Size(),
		})
	})

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"hits":           predictionCache.Hits(),
			"misses":         predictionCache.Misses(),
			"hit_rate":       predictionCache.HitRate(),
			"total_requests": predictionCache.Hits() + predictionCache.Misses(),
			"cache":          predictionCache.Stats(),
			"config": gin.H{
				"cache_ttl_hours":       predictionCache.TTL().Hours(),
				"cache_max_entries":     predictionCache.MaxSize(),
				"model":                 geminiAdapter.ModelName(),
				"gemini_api_configured": geminiAdapter.Configured(),
				"weights":               scorer.Config().Weights,
			},
			"service": appMetrics.GetStats(),
		})
	})

	api.GET("/recommendations/:level", func(c *gin.Context) {
		level := strings.ToLower(c.Param("level"))

		actions, ok := analysis.LevelActions(level)
		if !ok {
			appErr := errors.NewValidationError("unknown risk level", gin.H{"level": level})
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"risk_level":      level,
			"recommendations": actions,
			"count":           len(actions),
		})
	})

	api.POST("/batch/predict", func(c *gin.Context) {
		var records []types.BatchStudentRecord
		if err := c.ShouldBindJSON(&records); err != nil {
			appErr := errors.NewValidationError("invalid batch payload", err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) == 0 {
			appErr := errors.NewValidationError("batch must contain at least one student")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) > maxBatchStudents {
			appErr := errors.NewValidationError("batch size exceeds limit", gin.H{"max": maxBatchStudents, "received": len(records)})
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictions := make([]types.PredictionResponse, 0, len(records))
		for _, record := range records {
			if err := securityMiddleware.ValidateStudentID(record.StudentID); err != nil {
				appErr := errors.NewValidationError("invalid student id in batch", err.Error())
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}

			if cached, found := predictionCache.Get(record.StudentID); found {
				cached.FromCache = true
				predictions = append(predictions, cached)
				continue
			}

			risks := scorer.Normalize(record.Features)
			pred := scorer.ScoreRisks(risks)

			response := types.PredictionResponse{
				StudentID:   record.StudentID,
				Prediction:  pred,
				FromCache:   false,
				GeneratedAt: time.Now().UTC(),
			}

			predictionCache.Set(record.StudentID, response)
			appMetrics.RecordPrediction(pred.RiskLevel, false)
			if err := persist(c.Request.Context(), response, risks.Coverage); err != nil {
				appErr := errors.ToAppError(err)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}

			predictions = append(predictions, response)
		}

		appMetrics.IncrementBatchPrediction()

		c.JSON(http.StatusOK, types.BatchPredictResponse{
			Predictions: predictions,
			Count:       len(predictions),
			ProcessedAt: time.Now().UTC(),
		})
	})

	api.GET("/cohort/summary", func(c *gin.Context) {
		window := c.DefaultQuery("window", cohort.Window24h)

		summary, err := cohortService.Summary(c.Request.Context(), window)
		if err != nil {
			if stderrors.Is(err, cohort.ErrUnknownWindow) {
				appErr := errors.NewValidationError("unknown cohort window", gin.H{"window": window})
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			appErr := errors.ToAppError(err)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, summary)
	})

	api.GET("/privacy/policy", func(c *gin.Context) {
		c.JSON(http.StatusOK, privacyService.RetentionPolicy())
	})

	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func getJSON(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// goodStandingFeatures is an engaged student in good academic standing;
// every category scores well below the low threshold.
const goodStandingFeatures = `{
	"cgpa": 3.8,
	"events_attended": 12,
	"events_organized": 3,
	"days_since_activity": 1,
	"activity_trend": 0.5,
	"profile_completion": 1.0,
	"connections": 60,
	"followers": 250,
	"interactions": 120
}`

// disengagedFeatures is a withdrawn student: failing grades, no events,
// weeks of inactivity, an empty profile and no network.
const disengagedFeatures = `{
	"cgpa": 1.5,
	"events_attended": 0,
	"events_organized": 0,
	"days_since_activity": 45,
	"activity_trend": -0.8,
	"profile_completion": 0.1,
	"connections": 2,
	"followers": 5,
	"interactions": 1
}`

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET returns OK status", "GET", http.StatusOK},
		{"POST not routed", "POST", http.StatusNotFound},
		{"PUT not routed", "PUT", http.StatusNotFound},
		{"DELETE not routed", "DELETE", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, "/api/ml/health", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	response := decodeBody(t, getJSON(r, "/api/ml/health"))
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, serviceVersion, response["version"])
	assert.Equal(t, false, response["gemini_api_configured"])
	assert.Equal(t, "gemini-1.5-flash", response["model"])

	cacheBlock, ok := response["cache"].(map[string]interface{})
	assert.True(t, ok, "cache should be an object")
	assert.Equal(t, float64(1000), cacheBlock["max_size"])
}

func TestPredictEndpoint_RiskLevels(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name          string
		studentID     string
		features      string
		expectedLevel string
		expectedEmoji string
		expectedScore float64
		expectedConf  float64
	}{
		{
			name:          "engaged student in good standing scores low",
			studentID:     "stu-low",
			features:      goodStandingFeatures,
			expectedLevel: "low",
			expectedEmoji: "🟢",
			expectedScore: 0.1108,
			expectedConf:  0.95,
		},
		{
			name:          "disengaged student scores high",
			studentID:     "stu-high",
			features:      disengagedFeatures,
			expectedLevel: "high",
			expectedEmoji: "🔴",
			expectedScore: 0.88,
			expectedConf:  0.95,
		},
		{
			name:      "partial profile lands in the medium band",
			studentID: "stu-med",
			features: `{
				"cgpa": 2.8,
				"events_attended": 4,
				"days_since_activity": 10,
				"profile_completion": 0.5,
				"connections": 20
			}`,
			expectedLevel: "medium",
			expectedEmoji: "🟡",
			expectedScore: 0.4525,
			expectedConf:  0.75,
		},
		{
			name:          "no features at all defaults to neutral medium",
			studentID:     "stu-empty",
			features:      `{}`,
			expectedLevel: "medium",
			expectedEmoji: "🟡",
			expectedScore: 0.5,
			expectedConf:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/ml/student/"+tt.studentID+"/predict", tt.features)
			assert.Equal(t, http.StatusOK, w.Code)

			response := decodeBody(t, w)
			assert.Equal(t, tt.studentID, response["student_id"])
			assert.Equal(t, tt.expectedLevel, response["risk_level"])
			assert.Equal(t, tt.expectedEmoji, response["risk_emoji"])
			assert.InDelta(t, tt.expectedScore, response["risk_score"].(float64), 0.0001)
			assert.InDelta(t, tt.expectedConf, response["confidence"].(float64), 0.0001)
			assert.Equal(t, false, response["from_cache"])
			assert.Nil(t, response["gemini_insights"])

			score := response["risk_score"].(float64)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)

			recommendations, ok := response["recommendations"].([]interface{})
			assert.True(t, ok, "recommendations should be an array")
			assert.NotEmpty(t, recommendations)
		})
	}
}

func TestPredictEndpoint_ResponseFormat(t *testing.T) {
	r := setupRouter(t)

	w := postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	response := decodeBody(t, w)

	requiredFields := []string{
		"student_id", "risk_score", "risk_level", "risk_emoji",
		"risk_factors", "strengths", "recommendations",
		"performance_metrics", "confidence", "gemini_insights",
		"from_cache", "generated_at",
	}
	for _, field := range requiredFields {
		assert.Contains(t, response, field, "Response should contain field: %s", field)
	}

	metrics, ok := response["performance_metrics"].(map[string]interface{})
	assert.True(t, ok, "performance_metrics should be an object")

	metricFields := []string{"academic_score", "engagement_score", "activity_score", "profile_score", "social_score"}
	for _, field := range metricFields {
		assert.Contains(t, metrics, field, "performance_metrics should contain field: %s", field)

		value := metrics[field].(float64)
		assert.GreaterOrEqual(t, value, 0.0)
		assert.LessOrEqual(t, value, 1.0)
	}
}

func TestPredictEndpoint_CacheIdempotence(t *testing.T) {
	r := setupRouter(t)

	first := decodeBody(t, postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures))
	assert.Equal(t, false, first["from_cache"])

	w := postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures)
	assert.Equal(t, http.StatusOK, w.Code)

	second := decodeBody(t, w)
	assert.Equal(t, true, second["from_cache"])
	assert.Equal(t, first["risk_score"], second["risk_score"])
	assert.Equal(t, first["risk_level"], second["risk_level"])
	assert.Equal(t, first["performance_metrics"], second["performance_metrics"])
	assert.Equal(t, first["generated_at"], second["generated_at"], "cached response should keep the original timestamp")
}

func TestPredictEndpoint_InvalidRequests(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name           string
		path           string
		requestBody    string
		expectedStatus int
	}{
		{
			name:           "malformed JSON",
			path:           "/api/ml/student/stu-001/predict",
			requestBody:    `{"cgpa": }`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty body",
			path:           "/api/ml/student/stu-001/predict",
			requestBody:    ``,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "array instead of object",
			path:           "/api/ml/student/stu-001/predict",
			requestBody:    `[1, 2, 3]`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "wrong type for numeric feature",
			path:           "/api/ml/student/stu-001/predict",
			requestBody:    `{"cgpa": "excellent"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "student id with consecutive separators",
			path:           "/api/ml/student/bad..id/predict",
			requestBody:    `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "student id with double underscore",
			path:           "/api/ml/student/a__b/predict",
			requestBody:    `{}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, tt.path, tt.requestBody)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	r := setupRouter(t)

	postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures)

	// Invalidate the single entry and confirm the next predict recomputes
	w := postJSON(r, "/api/ml/cache/invalidate?student_id=stu-001", "")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, true, response["removed"])
	assert.Equal(t, float64(0), response["cache_size"])

	after := decodeBody(t, postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures))
	assert.Equal(t, false, after["from_cache"])

	// Invalidating an id that is not cached is a no-op success
	w = postJSON(r, "/api/ml/cache/invalidate?student_id=stu-absent", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["removed"])

	// A malformed id in the query is still rejected
	w = postJSON(r, "/api/ml/cache/invalidate?student_id=bad..id", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without an id the whole cache is cleared
	postJSON(r, "/api/ml/student/stu-002/predict", disengagedFeatures)

	w = postJSON(r, "/api/ml/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeBody(t, w)["cache_size"])
}

func TestStatsEndpoint_CountersSurviveClear(t *testing.T) {
	r := setupRouter(t)

	postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures) // miss
	postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures) // hit
	postJSON(r, "/api/ml/cache/invalidate", "")

	response := decodeBody(t, getJSON(r, "/api/ml/stats"))
	assert.Equal(t, float64(1), response["hits"], "clearing the cache should not reset hit counters")
	assert.Equal(t, float64(1), response["misses"])
	assert.Equal(t, float64(2), response["total_requests"])
	assert.InDelta(t, 0.5, response["hit_rate"].(float64), 0.0001)

	cacheBlock, ok := response["cache"].(map[string]interface{})
	assert.True(t, ok, "cache should be an object")
	assert.Equal(t, float64(0), cacheBlock["size"])

	config, ok := response["config"].(map[string]interface{})
	assert.True(t, ok, "config should be an object")
	assert.Equal(t, float64(24), config["cache_ttl_hours"])
	assert.Equal(t, float64(1000), config["cache_max_entries"])
	assert.Equal(t, false, config["gemini_api_configured"])
	assert.Contains(t, response, "service")
}

func TestRecommendationsEndpoint(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name           string
		level          string
		expectedStatus int
	}{
		{"low risk actions", "low", http.StatusOK},
		{"medium risk actions", "medium", http.StatusOK},
		{"high risk actions", "high", http.StatusOK},
		{"level is case-insensitive", "HIGH", http.StatusOK},
		{"unknown level rejected", "extreme", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := getJSON(r, "/api/ml/recommendations/"+tt.level)
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				response := decodeBody(t, w)
				assert.Equal(t, strings.ToLower(tt.level), response["risk_level"])

				recommendations, ok := response["recommendations"].([]interface{})
				assert.True(t, ok, "recommendations should be an array")
				assert.NotEmpty(t, recommendations)
				assert.Equal(t, float64(len(recommendations)), response["count"])
			}
		})
	}
}

func TestBatchPredictEndpoint(t *testing.T) {
	r := setupRouter(t)

	body := fmt.Sprintf(`[
		{"student_id": "batch-1", "features": %s},
		{"student_id": "batch-2", "features": %s},
		{"student_id": "batch-3", "features": {}}
	]`, goodStandingFeatures, disengagedFeatures)

	w := postJSON(r, "/api/ml/batch/predict", body)
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, float64(3), response["count"])
	assert.Contains(t, response, "processed_at")

	predictions, ok := response["predictions"].([]interface{})
	assert.True(t, ok, "predictions should be an array")
	assert.Len(t, predictions, 3)

	expectedLevels := []string{"low", "high", "medium"}
	for i, raw := range predictions {
		pred := raw.(map[string]interface{})
		assert.Equal(t, fmt.Sprintf("batch-%d", i+1), pred["student_id"])
		assert.Equal(t, expectedLevels[i], pred["risk_level"])
		assert.Nil(t, pred["gemini_insights"], "batch scoring stays local")
	}
}

func TestBatchPredictEndpoint_ServesCachedEntries(t *testing.T) {
	r := setupRouter(t)

	postJSON(r, "/api/ml/student/batch-1/predict", goodStandingFeatures)

	body := fmt.Sprintf(`[
		{"student_id": "batch-1", "features": %s},
		{"student_id": "batch-2", "features": %s}
	]`, goodStandingFeatures, disengagedFeatures)

	response := decodeBody(t, postJSON(r, "/api/ml/batch/predict", body))
	predictions := response["predictions"].([]interface{})

	first := predictions[0].(map[string]interface{})
	second := predictions[1].(map[string]interface{})
	assert.Equal(t, true, first["from_cache"])
	assert.Equal(t, false, second["from_cache"])
}

func TestBatchPredictEndpoint_Validation(t *testing.T) {
	r := setupRouter(t)

	t.Run("batch above the cap is rejected", func(t *testing.T) {
		var records []string
		for i := 0; i < maxBatchStudents+1; i++ {
			records = append(records, fmt.Sprintf(`{"student_id": "batch-%d", "features": {}}`, i))
		}
		body := "[" + strings.Join(records, ",") + "]"

		w := postJSON(r, "/api/ml/batch/predict", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		w := postJSON(r, "/api/ml/batch/predict", `[]`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("object instead of array is rejected", func(t *testing.T) {
		w := postJSON(r, "/api/ml/batch/predict", `{"students": []}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("one invalid id fails the batch", func(t *testing.T) {
		body := `[
			{"student_id": "batch-ok", "features": {}},
			{"student_id": "bad..id", "features": {}}
		]`

		w := postJSON(r, "/api/ml/batch/predict", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHistoryEndpoint(t *testing.T) {
	r := setupRouter(t)

	// Two predicts with an invalidation between them to force two rows
	postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures)
	postJSON(r, "/api/ml/cache/invalidate?student_id=stu-001", "")
	postJSON(r, "/api/ml/student/stu-001/predict", disengagedFeatures)

	w := getJSON(r, "/api/ml/student/stu-001/history")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, "stu-001", response["student_id"])
	assert.Equal(t, float64(2), response["count"])

	history, ok := response["history"].([]interface{})
	assert.True(t, ok, "history should be an array")
	assert.Len(t, history, 2)

	// Newest first: the disengaged prediction was recorded last
	newest := history[0].(map[string]interface{})
	assert.Equal(t, "high", newest["risk_level"])
	assert.NotContains(t, newest, "student_hash", "raw hash should never be serialized")

	w = getJSON(r, "/api/ml/student/stu-001/history?limit=1")
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	// An out-of-range limit falls back to the default
	w = getJSON(r, "/api/ml/student/stu-001/history?limit=999")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = getJSON(r, "/api/ml/student/stu-unknown/history")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPerformanceEndpoint(t *testing.T) {
	r := setupRouter(t)

	predicted := decodeBody(t, postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures))

	w := getJSON(r, "/api/ml/student/stu-001/performance")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, true, response["from_cache"])
	assert.Equal(t, "low", response["risk_level"])
	assert.Equal(t, predicted["performance_metrics"], response["performance_metrics"])

	// After invalidation the latest persisted prediction is served instead
	postJSON(r, "/api/ml/cache/invalidate?student_id=stu-001", "")

	w = getJSON(r, "/api/ml/student/stu-001/performance")
	assert.Equal(t, http.StatusOK, w.Code)

	response = decodeBody(t, w)
	assert.Equal(t, false, response["from_cache"])
	assert.Equal(t, "low", response["risk_level"])
	assert.Equal(t, predicted["performance_metrics"], response["performance_metrics"])

	w = getJSON(r, "/api/ml/student/stu-unknown/performance")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteStudentDataEndpoint(t *testing.T) {
	r := setupRouter(t)

	postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/ml/student/stu-001/data", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, float64(1), response["records_removed"])

	shortHash, _ := response["student_hash"].(string)
	assert.True(t, strings.HasSuffix(shortHash, "..."), "only the short hash is returned")
	assert.Len(t, shortHash, 11)

	// History is gone and the cache entry no longer answers
	assert.Equal(t, http.StatusNotFound, getJSON(r, "/api/ml/student/stu-001/history").Code)

	after := decodeBody(t, postJSON(r, "/api/ml/student/stu-001/predict", goodStandingFeatures))
	assert.Equal(t, false, after["from_cache"])
}

func TestCohortSummaryEndpoint(t *testing.T) {
	r := setupRouter(t)

	postJSON(r, "/api/ml/student/stu-low/predict", goodStandingFeatures)
	postJSON(r, "/api/ml/student/stu-high/predict", disengagedFeatures)
	postJSON(r, "/api/ml/student/stu-empty/predict", `{}`)

	w := getJSON(r, "/api/ml/cohort/summary")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, "24h", response["window"])
	assert.Equal(t, float64(3), response["total_predictions"])

	counts, ok := response["level_counts"].(map[string]interface{})
	assert.True(t, ok, "level_counts should be an object")
	assert.Equal(t, float64(1), counts["low"])
	assert.Equal(t, float64(1), counts["medium"])
	assert.Equal(t, float64(1), counts["high"])

	avg := response["average_risk_score"].(float64)
	assert.Greater(t, avg, 0.0)
	assert.Less(t, avg, 1.0)

	w = getJSON(r, "/api/ml/cohort/summary?window=all")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "all", decodeBody(t, w)["window"])

	w = getJSON(r, "/api/ml/cohort/summary?window=90d")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrivacyPolicyEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := getJSON(r, "/api/ml/privacy/policy")
	assert.Equal(t, http.StatusOK, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, float64(privacy.DefaultRetentionDays), response["prediction_retention_days"])
	assert.Equal(t, "SHA-256", response["anonymization_method"])
	assert.Equal(t, false, response["raw_identifiers_stored"])
}

func TestServer_ConcurrentPredictions(t *testing.T) {
	r := setupRouter(t)

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(id int) {
			path := fmt.Sprintf("/api/ml/student/stu-%03d/predict", id)
			w := postJSON(r, path, goodStandingFeatures)

			assert.Equal(t, http.StatusOK, w.Code)
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestServer_ErrorHandling(t *testing.T) {
	r := setupRouter(t)

	// Unknown endpoints 404
	w := getJSON(r, "/api/ml/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Validation errors carry the structured error envelope
	w = postJSON(r, "/api/ml/student/stu-001/predict", `{"cgpa": }`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	response := decodeBody(t, w)
	assert.Equal(t, "validation", response["category"])
	assert.Equal(t, float64(http.StatusBadRequest), response["http_status"])
}

func TestGetEnvIntOrDefault(t *testing.T) {
	t.Setenv("TEST_NUMERIC_VALUE", "42")
	assert.Equal(t, 42, getEnvIntOrDefault("TEST_NUMERIC_VALUE", 7))

	t.Setenv("TEST_NUMERIC_VALUE", "not-a-number")
	assert.Equal(t, 7, getEnvIntOrDefault("TEST_NUMERIC_VALUE", 7))

	assert.Equal(t, 7, getEnvIntOrDefault("TEST_NUMERIC_MISSING", 7))
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_STRING_VALUE", "configured")
	assert.Equal(t, "configured", getEnvOrDefault("TEST_STRING_VALUE", "fallback"))

	assert.Equal(t, "fallback", getEnvOrDefault("TEST_STRING_MISSING", "fallback"))
}
