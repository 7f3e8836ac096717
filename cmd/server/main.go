package main

import (
	"context"
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
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/fairscan/internal/adapters"
	"github.com/ZanzyTHEbar/fairscan/internal/analysis"
	"github.com/ZanzyTHEbar/fairscan/internal/audit"
	"github.com/ZanzyTHEbar/fairscan/internal/cache"
	"github.com/ZanzyTHEbar/fairscan/internal/database"
	"github.com/ZanzyTHEbar/fairscan/internal/encoding"
	"github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/frontend"
	"github.com/ZanzyTHEbar/fairscan/internal/middleware"
	"github.com/ZanzyTHEbar/fairscan/internal/monitoring"
	"github.com/ZanzyTHEbar/fairscan/internal/privacy"
	"github.com/ZanzyTHEbar/fairscan/internal/ratelimit"
	"github.com/ZanzyTHEbar/fairscan/internal/resilience"
	"github.com/ZanzyTHEbar/fairscan/internal/security"
	"github.com/ZanzyTHEbar/fairscan/internal/storage"
	"github.com/ZanzyTHEbar/fairscan/internal/types"
)

func main() {
	// .env is a local-development convenience; absence is not an error
	_ = godotenv.Load()

	appLogger := monitoring.NewLogger()
	slog.SetDefault(appLogger.Logger)

	// Configuration from environment with defaults
	port := getEnvOrDefault("PORT", "8080")
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	auditDir := getEnvOrDefault("AUDIT_DIR", "./data/audit")
	catalogPath := os.Getenv("CATALOG_PATH")
	redisURL := os.Getenv("REDIS_URL")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvInt("REDIS_DB", 0)
	newsAPIKey := os.Getenv("NEWSAPI_KEY")
	dailyLimit := getEnvInt("DAILY_FREE_LIMIT", 100)
	retentionDays := getEnvInt("RETENTION_DAYS", privacy.DefaultRetentionDays)

	// Pattern catalog: a malformed override file is a configuration error
	// and the server refuses to start rather than scan with partial rules.
	var catalog *analysis.Catalog
	var err error
	if catalogPath != "" {
		catalog, err = analysis.LoadCatalog(catalogPath)
	} else {
		catalog, err = analysis.NewCatalog()
	}
	if err != nil {
		slog.Error("Failed to load pattern catalog", "error", errors.NewConfigurationError("invalid pattern catalog", err))
		os.Exit(1)
	}
	pipeline := analysis.NewPipeline(catalog)

	// Audit file store is the record of truth; without it there is nothing
	// to serve.
	store, err := storage.NewStore(auditDir)
	if err != nil {
		slog.Error("Failed to initialize audit store", "error", err)
		os.Exit(1)
	}

	// The SQLite index is a derived view: losing it degrades listings and
	// usage accounting but analyze keeps working.
	var repo *database.Repository
	var usageService *database.UsageService
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Warn("SQLite index unavailable, running on file store alone", "error", err)
	} else {
		defer db.Close()
		repo = database.NewRepository(db)
		usageService = database.NewUsageService(repo, dailyLimit)
	}

	auditService := audit.NewService(store, repo)
	privacyService := privacy.NewService(store, repo, retentionDays)

	optimizedEncoder := encoding.NewOptimizedJSONEncoder()
	compressionMiddleware := middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	// Monitoring
	appMetrics := monitoring.NewMetrics()
	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, appLogger)
	memoryMonitor.Start()

	monitoring.InitGlobalTracer("fairscan", appLogger)
	monitoring.InitGlobalAlertManager(appLogger, 30*time.Second)
	if slackNotifier := monitoring.NewSlackNotifier(os.Getenv("SLACK_WEBHOOK_URL")); slackNotifier.WebhookURL != "" {
		monitoring.GetGlobalAlertManager().AddNotifier(slackNotifier)
	}
	monitoring.StartGlobalAlerting(context.Background())

	// Rate limiting: Redis sliding windows when available, in-memory token
	// buckets otherwise. A missing Redis never blocks startup.
	redisClient, err := ratelimit.NewRedisClient(redisURL, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting falls back to in-memory buckets", "error", err)
	}
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.ClientLimitPerDay = dailyLimit
	limiter := ratelimit.NewRateLimiter(redisClient, limiterConfig, appMetrics)
	defer limiter.Close()

	newsAdapter := adapters.NewNewsAPIAdapter(newsAPIKey)
	defer newsAdapter.Close()

	// Degradation tracking for the parts that can fail independently
	if db != nil {
		resilience.RegisterService("audit-index", func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
	}
	if redisClient != nil && redisClient.IsEnabled() {
		resilience.RegisterService("redis", redisClient.HealthCheck)
	}
	if newsAdapter.Enabled() {
		resilience.RegisterService("newsapi", nil)
	}
	resilience.StartHealthChecks(context.Background())

	privacyService.StartRetentionLoop(context.Background())

	// Frontend demo page with CSP nonce injection
	distFS, err := frontend.GetDistFS()
	if err != nil {
		slog.Error("Failed to load embedded frontend", "error", err)
		os.Exit(1)
	}
	indexTemplate, err := frontend.LoadIndexTemplate(distFS)
	if err != nil {
		slog.Error("Failed to parse frontend template", "error", err)
		os.Exit(1)
	}

	securityConfig := security.DefaultSecurityConfig()
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		securityConfig.AllowedOrigins = strings.Split(origins, ",")
	}
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(compressionMiddleware.Handler())
	r.Use(monitoring.MonitoringMiddleware(appMetrics, appLogger))
	r.Use(monitoring.TracingMiddleware(monitoring.GetGlobalTracer()))
	r.Use(monitoring.SecurityMonitoringMiddleware(appLogger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     securityConfig.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityMiddleware.SecurityHeaders)
	r.Use(security.CSPMiddleware())
	r.Use(securityMiddleware.RequestTimeout)
	r.Use(securityMiddleware.ValidateContentType)
	r.Use(securityMiddleware.MaxBodySize(1 << 20))
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(limiter.ClientRateLimitMiddleware())

	// Deterministic scoring makes byte-identical analyze bodies cacheable
	appCache := cache.NewCache(15 * time.Minute)
	r.Use(appCache.Middleware(appMetrics))

	api := r.Group("/api/v1")

	api.POST("/analyze", func(c *gin.Context) {
		start := time.Now()

		var req types.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := errors.NewInvalidInputError("request body must be JSON with a content field")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// The content is validated but never rewritten: the stored record
		// must carry it byte-identical.
		if strings.TrimSpace(req.Content) == "" {
			appErr := errors.NewInvalidInputError("content cannot be empty")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		if err := securityMiddleware.ValidateContent(req.Content); err != nil {
			appErr := errors.NewInvalidInputError(err.Error())
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// Metadata fields are display values; those get sanitized
		if req.Metadata != nil {
			req.Metadata.Source = securityMiddleware.SanitizeField(req.Metadata.Source)
			req.Metadata.Author = securityMiddleware.SanitizeField(req.Metadata.Author)
		}

		// Daily quota accounting; a broken index fails open
		clientKey := ratelimit.ClientKeyFromRequest(c)
		if usageService != nil {
			result, err := usageService.ProcessRequest(clientKey, c.ClientIP(), "/api/v1/analyze", c.Request.Method, c.GetHeader("User-Agent"))
			if err != nil {
				slog.Warn("Usage accounting unavailable", "error", err)
			} else if !result.CanMakeRequest {
				appErr := errors.NewRateLimitError(result.Usage.DayEnd.Format(time.RFC3339))
				c.Header("X-RateLimit-Limit", strconv.Itoa(result.Usage.DailyLimit))
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Usage.DayEnd.Unix(), 10))
				c.JSON(appErr.HTTPStatus, appErr)
				return
			}
		}

		record, err := pipeline.Analyze(req.Content, req.Language, req.Metadata)
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		// The audit copy is best-effort from the client's point of view: a
		// storage failure loses the storage_location, not the analysis.
		location, err := auditService.StoreRecord(c.Request.Context(), record, c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			slog.Error("Failed to store audit record", "error", err, "analysis_id", record.AnalysisID)
			location = ""
		}

		riskLevel := string(record.FairnessMetrics.RiskLevel)
		appMetrics.RecordAnalysis(riskLevel)
		appLogger.AnalysisLogger(record.AnalysisID, len([]rune(req.Content)), record.Language,
			record.BiasDetection.BiasScores.Overall, riskLevel, len(record.Hits), time.Since(start))

		c.JSON(http.StatusOK, record.Response(location))
	})

	api.GET("/analyze/:id", func(c *gin.Context) {
		stored, err := auditService.GetRecord(c.Param("id"))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, stored)
	})

	api.DELETE("/analyze/:id", func(c *gin.Context) {
		if err := auditService.DeleteRecord(c.Param("id")); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	})

	api.GET("/analyses", func(c *gin.Context) {
		limit := 50
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
			limit = l
		}

		listing, err := auditService.List(limit, c.Query("date"), c.Query("risk"))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, listing)
	})

	api.GET("/analyses/stats", func(c *gin.Context) {
		stats, err := auditService.GetStats()
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	api.GET("/examples", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"examples": analysis.Examples()})
	})

	api.GET("/catalog", func(c *gin.Context) {
		c.JSON(http.StatusOK, pipeline.Catalog().Info())
	})

	api.GET("/dominance", func(c *gin.Context) {
		if !newsAdapter.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "news source analysis is not configured"})
			return
		}

		if !resilience.IsServiceAvailable("newsapi") {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "news source analysis is temporarily unavailable"})
			return
		}

		query := strings.TrimSpace(c.Query("query"))
		if query == "" {
			appErr := errors.NewInvalidInputError("query parameter is required")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		limit := 100
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
			limit = l
		}

		// When the upstream is shaky, ask for fewer articles per report
		if factor := resilience.GetThrottleFactor("newsapi"); factor < 1.0 {
			if scaled := int(float64(limit) * factor); scaled > 0 {
				limit = scaled
			}
		}

		var report *adapters.DominanceReport
		err := resilience.ExecuteWithRetry(c.Request.Context(), "newsapi", func() error {
			var err error
			report, err = newsAdapter.SourceDominance(c.Request.Context(), query, limit)
			return err
		})
		if err != nil {
			resilience.RecordError("newsapi", err)
			appLogger.ExternalAPILogger("NewsAPI", "GET", "newsapi.org", 0, 0, false)
			appErr := errors.NewExternalAPIError("newsapi", err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}

		resilience.RecordRequest("newsapi", true)
		appMetrics.IncrementNewsAPICalls()
		appLogger.ExternalAPILogger("NewsAPI", "GET", "newsapi.org", http.StatusOK, 0, true)
		c.JSON(http.StatusOK, report)
	})

	r.GET("/usage/stats", func(c *gin.Context) {
		if usageService == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "usage accounting is unavailable"})
			return
		}

		usage, err := usageService.GetUsageStats(ratelimit.ClientKeyFromRequest(c))
		if err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, usage)
	})

	// Privacy
	r.GET("/privacy/policy", privacyService.HandlePolicy)
	r.POST("/privacy/delete/:id", func(c *gin.Context) {
		if err := privacyService.EraseRecord(c.Param("id")); err != nil {
			appErr := errors.ToAppError(err)
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"erased": c.Param("id")})
	})
	r.POST("/privacy/cleanup", privacyService.HandleCleanup)

	// Rate limit status and administration
	r.GET("/ratelimit/status", limiter.HandleRateLimitStatus())
	admin := r.Group("/admin/ratelimit")
	admin.GET("", limiter.HandleAdminRateLimits())
	admin.POST("/invalidate/client/:clientKey", limiter.HandleAdminInvalidateClient())
	admin.POST("/invalidate/ip/:ip", limiter.HandleAdminInvalidateIP())

	// Operational endpoints
	r.GET("/health", func(c *gin.Context) {
		services := resilience.GetAllServiceHealth()

		response := gin.H{
			"status":          "ok",
			"timestamp":       time.Now().Format(time.RFC3339),
			"version":         "1.0.0",
			"index_available": auditService.IndexAvailable(),
			"services":        services,
			"metrics":         appMetrics.GetStats(),
		}

		for _, service := range services {
			if service.Level == resilience.LevelEmergency {
				response["status"] = "degraded"
				c.JSON(http.StatusServiceUnavailable, response)
				return
			}
		}

		c.JSON(http.StatusOK, response)
	})

	r.GET("/health/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"services":         resilience.GetAllServiceHealth(),
			"circuit_breakers": resilience.GetCircuitBreakerStats(),
			"active_alerts":    monitoring.GetGlobalAlertManager().GetActiveAlerts(),
			"timestamp":        time.Now().Format(time.RFC3339),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, appMetrics.GetStats())
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"response_cache": appCache.Stats(),
			"stats_cache":    auditService.CacheStats(),
		})
	})

	r.GET("/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, memoryMonitor.GetStats())
	})

	r.POST("/memory/optimize", func(c *gin.Context) {
		memoryMonitor.OptimizeMemory()
		c.JSON(http.StatusOK, gin.H{"message": "memory optimization triggered"})
	})

	if os.Getenv("ENABLE_GC_CONTROL") == "true" {
		r.POST("/memory/gc", func(c *gin.Context) {
			memoryMonitor.ForceGC()
			c.JSON(http.StatusOK, gin.H{"message": "garbage collection triggered"})
		})
	}

	r.GET("/pools/database", func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database is unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pool": "database", "stats": db.GetPoolStats()})
	})

	r.GET("/pools/news", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "news", "stats": newsAdapter.GetPoolStats()})
	})

	r.GET("/pools/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "json", "stats": optimizedEncoder.GetStats()})
	})

	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "compression", "stats": compressionMiddleware.GetStats()})
	})

	r.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"alerts":    monitoring.GetGlobalAlertManager().GetAlerts(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.POST("/alerts/:id/silence", func(c *gin.Context) {
		duration := 30 * time.Minute
		if d, err := time.ParseDuration(c.Query("duration")); err == nil {
			duration = d
		}

		monitoring.GetGlobalAlertManager().SilenceAlert(c.Param("id"), duration)
		c.JSON(http.StatusOK, gin.H{
			"message":  "Alert silenced",
			"alert_id": c.Param("id"),
			"duration": duration.String(),
		})
	})

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
		c.JSON(http.StatusOK, gin.H{"traces": traces, "timestamp": time.Now().Format(time.RFC3339)})
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	// Everything unrouted falls through to the demo page
	r.NoRoute(frontend.NewSPAHandler(distFS, indexTemplate))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "audit_dir", auditDir, "catalog_version", catalog.Version())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	memoryMonitor.Stop()
	resilience.ShutdownDegradation()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
