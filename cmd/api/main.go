package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/pollrun-api/internal/config"
	"github.com/yourusername/pollrun-api/internal/handler"
	"github.com/yourusername/pollrun-api/internal/middleware"
	pgRepo "github.com/yourusername/pollrun-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/pollrun-api/internal/repository/redis"
	"github.com/yourusername/pollrun-api/internal/service"
	"github.com/yourusername/pollrun-api/internal/service/runmanager"
	ws "github.com/yourusername/pollrun-api/internal/websocket"
	"github.com/yourusername/pollrun-api/pkg/auth"
	"github.com/yourusername/pollrun-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	pollRepo := pgRepo.NewPollRepo(db)

	runRepo, err := redisRepo.NewRunRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize RunRepo: %v", err)
		os.Exit(1)
	}

	// --- Инициализация PubSubProvider для WebSocket ---
	var pubSubProvider ws.PubSubProvider = &ws.NoOpPubSub{} // Провайдер по умолчанию

	// Создаем Redis PubSub только если кластеризация включена
	if cfg.Cluster.Enabled {
		log.Println("Инициализация Redis PubSub для кластеризации WebSocket...")
		redisPubSubClient, errPubSub := database.NewUniversalRedisClient(cfg.Redis)
		if errPubSub != nil {
			log.Printf("Ошибка при инициализации Redis клиента для PubSub: %v. Кластеризация WS будет неактивна.", errPubSub)
		} else {
			pubSubProvider = ws.NewRedisPubSub(redisPubSubClient)
			log.Println("Redis PubSub провайдер успешно инициализирован")
		}
	}

	// Инициализация WebSocket Hub
	wsHub := ws.NewHub(pubSubProvider)
	go wsHub.Run()

	wsManager := ws.NewManager(wsHub)

	// --- Инициализация JWTService ---
	// Токены выпускает внешний сервис аутентификации, здесь только проверка
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.LeewaySec)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// --- Инициализация конфигурации для RunManager ---
	runConfig := runmanager.DefaultConfig()
	if cfg.Run.DefaultDurationSec > 0 {
		runConfig.DefaultRunDurationSec = cfg.Run.DefaultDurationSec
	}
	if cfg.Run.CodeGenerationRetries > 0 {
		runConfig.CodeGenerationRetries = cfg.Run.CodeGenerationRetries
	}

	// Инициализируем сервисы
	runManager := service.NewRunManager(pollRepo, runRepo, wsManager, runConfig)
	pollService := service.NewPollService(pollRepo)
	runService := service.NewRunService(pollRepo, runRepo, runManager)
	resultService := service.NewResultService(runRepo)

	// Инициализируем обработчики
	pollHandler := handler.NewPollHandler(pollService)
	runHandler := handler.NewRunHandler(runService, resultService)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, runService, jwtService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Опросы
		polls := api.Group("/polls")
		polls.Use(authMiddleware.RequireAuth())
		{
			polls.POST("", pollHandler.CreatePoll)
			polls.GET("", pollHandler.ListPolls)

			// Группа маршрутов, требующих pollID
			pollWithID := polls.Group("/:id")
			pollWithID.Use(middleware.ExtractUintParam("id", "pollID"))
			{
				pollWithID.GET("", pollHandler.GetPoll)
				pollWithID.PUT("", pollHandler.UpdatePoll)
				pollWithID.DELETE("", pollHandler.DeletePoll)
				pollWithID.POST("/questions", pollHandler.AddQuestions)
				pollWithID.GET("/runs", runHandler.ListRunsByPoll)
			}
		}

		// Запуски опросов
		runs := api.Group("/runs")
		{
			// Создание запуска и списки текущего пользователя
			authedRuns := runs.Group("")
			authedRuns.Use(authMiddleware.RequireAuth())
			{
				authedRuns.POST("", runHandler.CreateRun)
				authedRuns.GET("/my", runHandler.ListMyRuns)
				authedRuns.GET("/participations", runHandler.ListMyParticipations)
			}

			// Группа маршрутов, требующих кода запуска
			runWithCode := runs.Group("/:code")
			runWithCode.Use(middleware.ExtractRunCode("code", "runCode"))
			{
				// Публичные маршруты: наблюдение и ответы доступны анониму
				publicRuns := runWithCode.Group("")
				publicRuns.Use(authMiddleware.OptionalAuth())
				{
					publicRuns.GET("", runHandler.GetRun)
					publicRuns.GET("/questions", runHandler.GetRunQuestions)
					publicRuns.GET("/results", runHandler.GetResults)
					publicRuns.POST("/answers", runHandler.SubmitAnswer)
				}

				// Маршруты, требующие аутентификации
				authedRun := runWithCode.Group("")
				authedRun.Use(authMiddleware.RequireAuth())
				{
					authedRun.POST("/enter", runHandler.EnterRun)
					authedRun.PUT("/start", runHandler.StartRun)
					authedRun.PUT("/end", runHandler.EndRun)
					authedRun.PUT("/duration", runHandler.AdjustDuration)
					authedRun.PUT("/advance", runHandler.AdvanceQuestion)
					authedRun.GET("/export", runHandler.ExportResults)
					authedRun.DELETE("", runHandler.DeleteRun)
				}
			}
		}
	}

	// WebSocket маршрут
	router.GET("/ws", wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// После получения сигнала SIGINT или SIGTERM завершаем горутины и сервер
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем менеджер запусков и хаб WebSocket
	runManager.Shutdown()
	wsHub.Shutdown()

	// Закрываем PubSubProvider, если он был создан
	if err := pubSubProvider.Close(); err != nil {
		log.Printf("Error closing PubSub provider: %v", err)
	}

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
