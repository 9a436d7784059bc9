package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/campusiq/ml-analytics/internal/adapters"
	"github.com/campusiq/ml-analytics/internal/analysis"
	"github.com/campusiq/ml-analytics/internal/cache"
	"github.com/campusiq/ml-analytics/internal/cohort"
	"github.com/campusiq/ml-analytics/internal/database"
	"github.com/campusiq/ml-analytics/internal/encoding"
	"github.com/campusiq/ml-analytics/internal/errors"
	"github.com/campusiq/ml-analytics/internal/middleware"
	"github.com/campusiq/ml-analytics/internal/monitoring"
	"github.com/campusiq/ml-analytics/internal/privacy"
	"github.com/campusiq/ml-analytics/internal/ratelimit"
	"github.com/campusiq/ml-analytics/internal/resilience"
	"github.com/campusiq/ml-analytics/internal/security"
	"github.com/campusiq/ml-analytics/internal/types"
)

const serviceVersion = "1.0.0"

// maxBatchStudents caps one batch prediction request
const maxBatchStudents = 10

// @title CampusIQ ML Analytics API
// @version 1.0
// @description Risk scoring backend for the student talent profiling platform.
// @BasePath /api/ml
func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	port := getEnvOrDefault("PORT", "8080")
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	geminiModel := getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash")
	geminiTimeout := time.Duration(getEnvIntOrDefault("GEMINI_TIMEOUT_SECONDS", 10)) * time.Second
	cacheTTL := time.Duration(getEnvIntOrDefault("CACHE_TTL_HOURS", 24)) * time.Hour
	cacheMaxEntries := getEnvIntOrDefault("CACHE_MAX_ENTRIES", 1000)
	retentionDays := getEnvIntOrDefault("RETENTION_DAYS", privacy.DefaultRetentionDays)
	jwtSecret := os.Getenv("SUPABASE_JWT_SECRET")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Initialize database and repository
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	if n, err := repo.CountPredictions(rootCtx); err == nil {
		slog.Info("Prediction store ready", "stored_predictions", n)
	}

	// Initialize privacy service
	privacyService := privacy.NewService(repo, retentionDays)

	// Scoring configuration: compiled-in defaults, optionally overridden by file
	scoringConfig := analysis.DefaultScoringConfig()
	if path := os.Getenv("SCORING_CONFIG"); path != "" {
		loaded, err := analysis.LoadScoringConfig(path)
		if err != nil {
			slog.Error("Failed to load scoring config, using defaults", "path", path, "error", err)
		} else {
			scoringConfig = loaded
			slog.Info("Loaded scoring config", "path", path)
		}
	}
	scorer := analysis.NewScorer(scoringConfig)

	// Initialize prediction cache
	predictionCache := cache.NewPredictionCache(cacheTTL, cacheMaxEntries)
	defer predictionCache.Close()

	// Initialize cohort analytics service
	cohortService := cohort.NewService(repo)
	defer cohortService.Close()

	// Initialize compression middleware
	compressionMiddleware := middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	// Initialize monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()
	predictionCache.SetMetrics(appMetrics)

	// Initialize memory monitor
	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, appLogger, appMetrics)
	memoryMonitor.Start()

	// Initialize distributed tracing
	monitoring.InitGlobalTracer("ml-analytics", appLogger)

	// Initialize alerting system
	monitoring.InitGlobalAlertManager(appMetrics, appLogger, 30*time.Second)

	// HTTP connection pool shared by outbound webhook delivery
	httpPool := resilience.NewConnectionPool(5, 20, 5*time.Minute, nil)

	slackNotifier := monitoring.NewSlackNotifier(os.Getenv("SLACK_WEBHOOK_URL"), httpPool)
	if slackNotifier.WebhookURL != "" {
		monitoring.GetGlobalAlertManager().AddNotifier(slackNotifier)
	}

	monitoring.StartGlobalAlerting(rootCtx)

	// Rate limiting: Redis-backed when configured, in-process fallback otherwise
	redisClient, err := ratelimit.NewRedisClient(
		os.Getenv("REDIS_ADDR"),
		os.Getenv("REDIS_PASSWORD"),
		getEnvIntOrDefault("REDIS_DB", 0),
	)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting falls back to in-process buckets", "error", err)
	}
	defer redisClient.Close()

	rateLimitConfig := ratelimit.DefaultConfig()
	rateLimiter := ratelimit.NewRateLimiter(redisClient, rateLimitConfig, appMetrics)
	defer rateLimiter.Close()

	if redisClient.IsEnabled() {
		resilience.RegisterService("redis", redisClient.HealthCheck)
	}

	// Gemini insight adapter: missing key degrades to local-only predictions
	geminiAdapter, err := adapters.NewGeminiAdapter(rootCtx, geminiAPIKey, geminiModel, geminiTimeout)
	if err != nil {
		slog.Error("Failed to initialize Gemini client, continuing without enrichment", "error", err)
		geminiAdapter, _ = adapters.NewGeminiAdapter(rootCtx, "", geminiModel, geminiTimeout)
	}
	defer geminiAdapter.Close()

	// Start degradation health checks in background
	resilience.StartHealthChecks(rootCtx)

	// Warm the cohort summary cache and keep it fresh
	go func() {
		cohortService.WarmCache(rootCtx)
		cohortService.StartAutoRefresh(rootCtx, 10*time.Minute)
	}()

	// Scheduled retention cleanup (daily)
	privacyService.StartRetentionLoop(rootCtx, 24*time.Hour)

	// Security middleware setup
	securityConfig := security.DefaultSecurityConfig()
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)

	r := gin.New()
	if len(securityConfig.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(securityConfig.TrustedProxies); err != nil {
			slog.Error("Failed to set trusted proxies", "error", err)
			os.Exit(1)
		}
	}

	// Compression first so every JSON response below it can be compressed
	r.Use(compressionMiddleware.Handler())

	// Monitoring middleware next to capture all requests
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.TracingMiddleware(monitoring.GetGlobalTracer()))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))

	// Error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Browser clients: the web dashboard and Flutter web build
	r.Use(cors.New(cors.Config{
		AllowOrigins:     securityConfig.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Security middleware
	r.Use(security.SecurityHeadersMiddleware())
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(securityMiddleware.MaxBodySize)

	// Optional Supabase JWT verification; sets user_id for rate limiting
	r.Use(security.JWTAuthMiddleware(jwtSecret))

	// Rate limiting: per-IP everywhere, per-user quota on prediction routes
	r.Use(rateLimiter.IPRateLimitMiddleware())
	r.Use(rateLimiter.UserRateLimitMiddleware())

	api := r.Group("/api/ml")

	// Request audit trail with anonymized identifiers
	api.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		studentHash := ""
		if id := c.Param("studentID"); id != "" {
			studentHash = privacyService.HashStudentID(id)
		}

		entry := database.NewRequestLog(
			studentHash,
			privacyService.HashIP(c.ClientIP()),
			c.FullPath(),
			c.Request.Method,
			c.Request.UserAgent(),
			c.Writer.Status(),
			time.Since(start),
		)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := repo.LogRequest(ctx, entry); err != nil {
				slog.Warn("Failed to write request audit entry", "error", err)
			}
		}()
	})

	api.GET("/health", func(c *gin.Context) {
		services := resilience.GetAllServiceHealth()

		healthResponse := gin.H{
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
			"services": services,
			"metrics":  appMetrics.GetStats(),
		}

		for _, service := range services {
			if service.Level == resilience.LevelEmergency {
				healthResponse["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, healthResponse)
				return
			}
		}

		c.JSON(http.StatusOK, healthResponse)
	})

	api.POST("/student/:studentID/predict", securityMiddleware.StudentIDParamMiddleware("studentID"), func(c *gin.Context) {
		start := time.Now()
		studentID := c.Param("studentID")
		studentKey := privacy.ShortHash(privacyService.HashStudentID(studentID))

		var features analysis.StudentFeatures
		if err := c.ShouldBindJSON(&features); err != nil {
			appErr := errors.NewValidationError("invalid feature payload", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if cached, found := predictionCache.Get(studentID); found {
			cached.FromCache = true
			appLogger.PredictionLogger(studentKey, cached.RiskLevel, cached.RiskScore, cached.Confidence, time.Since(start), true, cached.GeminiInsights != nil)
			c.JSON(http.StatusOK, cached)
			return
		}

		risks := scorer.Normalize(features)
		pred := scorer.ScoreRisks(risks)

		if span := monitoring.GetSpanFromGinContext(c); span != nil {
			monitoring.GetGlobalTracer().AddEvent(span, "prediction_scored", map[string]interface{}{
				"risk_level": pred.RiskLevel,
				"coverage":   risks.Coverage,
			})
		}

		var insights *string
		enrichStart := time.Now()
		enrichment := geminiAdapter.TryEnrich(c.Request.Context(), studentKey, pred)
		if enrichment.Attempted {
			appMetrics.RecordGeminiCall(enrichment.Enriched)
			statusCode := http.StatusOK
			if !enrichment.Enriched {
				statusCode = http.StatusInternalServerError
			}
			appLogger.ExternalAPILogger("Gemini", "POST", "generativelanguage.googleapis.com", statusCode, time.Since(enrichStart), enrichment.Enriched)
		}
		if enrichment.Enriched {
			insights = &enrichment.Insights
			if enrichment.Confidence > 0 {
				pred.Confidence = enrichment.Confidence
			}
		} else if enrichment.Attempted {
			slog.Warn("Serving prediction without enrichment", "student", studentKey, "reason", enrichment.Reason)
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
		appLogger.PredictionLogger(studentKey, pred.RiskLevel, pred.RiskScore, pred.Confidence, time.Since(start), false, enrichment.Enriched)

		persistPrediction(repo, privacyService, response, risks.Coverage)

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
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		var metrics map[string]float64
		if rec.Breakdown != "" {
			if err := encoding.UnmarshalJSON([]byte(rec.Breakdown), &metrics); err != nil {
				appErr := errors.NewInternalError("failed to decode stored metrics", err)
				errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) == 0 {
			appErr := errors.NewNotFoundError("prediction history", studentID)
			errors.LogError(c, appErr)
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
			errors.LogError(c, appErr)
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
				errors.LogError(c, appErr)
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
				"cache_ttl_hours":       cacheTTL.Hours(),
				"cache_max_entries":     cacheMaxEntries,
				"model":                 geminiAdapter.ModelName(),
				"gemini_api_configured": geminiAdapter.Configured(),
				"weights":               scoringConfig.Weights,
			},
			"service": appMetrics.GetStats(),
		})
	})

	api.GET("/recommendations/:level", func(c *gin.Context) {
		level := strings.ToLower(c.Param("level"))

		actions, ok := analysis.LevelActions(level)
		if !ok {
			appErr := errors.NewValidationError("unknown risk level", gin.H{"level": level, "valid": []string{analysis.LevelLow, analysis.LevelMedium, analysis.LevelHigh}})
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"risk_level":      level,
			"recommendations": actions,
			"count":           len(actions),
		})
	})

	api.POST("/batch/predict", rateLimiter.EndpointRateLimitMiddleware("batch_predict", rateLimitConfig.BatchLimitPerMin), func(c *gin.Context) {
		var records []types.BatchStudentRecord
		if err := c.ShouldBindJSON(&records); err != nil {
			appErr := errors.NewValidationError("invalid batch payload", err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) == 0 {
			appErr := errors.NewValidationError("batch must contain at least one student")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		if len(records) > maxBatchStudents {
			appErr := errors.NewValidationError("batch size exceeds limit", gin.H{"max": maxBatchStudents, "received": len(records)})
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		predictions := make([]types.PredictionResponse, 0, len(records))
		for _, record := range records {
			if err := securityMiddleware.ValidateStudentID(record.StudentID); err != nil {
				appErr := errors.NewValidationError("invalid student id in batch", err.Error())
				errors.LogError(c, appErr)
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

			// Batch scoring stays local; enrichment is reserved for single
			// predictions to keep batch latency bounded.
			response := types.PredictionResponse{
				StudentID:   record.StudentID,
				Prediction:  pred,
				FromCache:   false,
				GeneratedAt: time.Now().UTC(),
			}

			predictionCache.Set(record.StudentID, response)
			appMetrics.RecordPrediction(pred.RiskLevel, false)
			persistPrediction(repo, privacyService, response, risks.Coverage)

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
				appErr := errors.NewValidationError("unknown cohort window", gin.H{"window": window, "valid": cohort.Windows()})
				errors.LogError(c, appErr)
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		c.JSON(http.StatusOK, summary)
	})

	api.GET("/privacy/policy", func(c *gin.Context) {
		c.JSON(http.StatusOK, privacyService.RetentionPolicy())
	})

	api.GET("/ratelimit/status", rateLimiter.HandleRateLimitStatus())

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Service health and circuit breaker monitoring endpoint
	r.GET("/health/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"services":         resilience.GetAllServiceHealth(),
			"circuit_breakers": resilience.GetCircuitBreakerStats(),
			"active_alerts":    monitoring.GetGlobalAlertManager().GetActiveAlerts(),
			"timestamp":        time.Now().Format(time.RFC3339),
		})
	})

	// Tracing endpoint to get current traces
	r.GET("/debug/traces", func(c *gin.Context) {
		tracer := monitoring.GetGlobalTracer()
		if tracer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracing not initialized"})
			return
		}

		traces := make(map[string]interface{})
		for spanID, span := range tracer.GetSpans() {
			traces[string(spanID)] = span
		}

		c.JSON(http.StatusOK, gin.H{
			"traces":    traces,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Alerting endpoints
	r.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"alerts":    monitoring.GetGlobalAlertManager().GetAlerts(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.POST("/alerts/:id/silence", func(c *gin.Context) {
		alertID := c.Param("id")
		duration := 30 * time.Minute

		if durationParam := c.Query("duration"); durationParam != "" {
			if d, err := time.ParseDuration(durationParam); err == nil {
				duration = d
			}
		}

		monitoring.GetGlobalAlertManager().SilenceAlert(alertID, duration)

		c.JSON(http.StatusOK, gin.H{
			"message":  "Alert silenced",
			"alert_id": alertID,
			"duration": duration.String(),
		})
	})

	// Metrics endpoint
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, appMetrics.GetStats())
	})

	// Cache stats endpoints
	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, predictionCache.Stats())
	})

	r.GET("/cohort/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, cohortService.GetCacheStats())
	})

	// Connection pool stats endpoints
	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "database",
			"stats": db.GetPoolStats(),
		})
	})

	r.GET("/pools/http", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "http",
			"stats": httpPool.GetStats(),
		})
	})

	r.GET("/pools/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "json",
			"stats": encoding.GlobalEncoderStats(),
		})
	})

	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "compression",
			"stats": compressionMiddleware.GetStats(),
		})
	})

	// Memory stats endpoints
	r.GET("/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, memoryMonitor.GetStats())
	})

	r.POST("/memory/optimize", func(c *gin.Context) {
		memoryMonitor.OptimizeMemory()
		c.JSON(http.StatusOK, gin.H{"message": "memory optimization triggered"})
	})

	// Force GC endpoint (development only)
	if os.Getenv("ENABLE_GC_CONTROL") == "true" {
		r.POST("/memory/gc", func(c *gin.Context) {
			memoryMonitor.ForceGC()
			c.JSON(http.StatusOK, gin.H{"message": "garbage collection triggered"})
		})
	}

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		encoding.BenchmarkJSONPerformance()
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	// Rate limit administration endpoints
	r.GET("/admin/ratelimits", rateLimiter.HandleAdminRateLimits())
	r.GET("/admin/ratelimits/metrics", rateLimiter.HandleAdminRateLimitMetrics())
	r.POST("/admin/ratelimits/user/:userID/reset", rateLimiter.HandleAdminResetRateLimit())
	r.POST("/admin/ratelimits/ip/:ip/invalidate", rateLimiter.HandleAdminInvalidateIP())

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "version", serviceVersion,
			"gemini_configured", geminiAdapter.Configured(), "redis_enabled", redisClient.IsEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop background loops and the memory monitor
	cancelRoot()
	memoryMonitor.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// persistPrediction writes a prediction to the history store without
// blocking the response
func persistPrediction(repo *database.Repository, privacyService *privacy.Service, resp types.PredictionResponse, coverage float64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		metricsJSON, err := encoding.MarshalJSON(resp.PerformanceMetrics)
		if err != nil {
			slog.Error("Failed to marshal performance metrics", "error", err)
			metricsJSON = nil
		}

		rec := database.NewPredictionRecord(
			privacyService.HashStudentID(resp.StudentID),
			resp.RiskScore,
			resp.RiskLevel,
			resp.Confidence,
			coverage,
			string(metricsJSON),
			resp.GeminiInsights != nil,
		)

		if err := repo.SavePrediction(ctx, rec); err != nil {
			slog.Error("Failed to persist prediction", "error", err, "student_hash", privacy.ShortHash(rec.StudentHash))
		}
	}()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Ignoring non-numeric environment value", "key", key, "value", value)
	}
	return defaultValue
}
