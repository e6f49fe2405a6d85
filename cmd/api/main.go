package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bobarin/docucast/internal/api"
	"github.com/bobarin/docucast/internal/config"
	"github.com/bobarin/docucast/internal/db"
	"github.com/bobarin/docucast/internal/documents"
	"github.com/bobarin/docucast/internal/logging"
	"github.com/bobarin/docucast/internal/pipeline"
	"github.com/bobarin/docucast/internal/queue"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/bobarin/docucast/internal/voices"
	"github.com/bobarin/docucast/internal/worker"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Log)
	log.Println("Starting Docucast API...")

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Connected to database")

	// Initialize storage
	blobs, err := storage.NewManager(cfg.Storage, database)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	go func() {
		for f := range blobs.Failures() {
			log.Warnf("[Storage] Release of %s/%s failed: %v", f.Ref.Storage, f.Ref.Key, f.Err)
		}
	}()
	log.Printf("Initialized %s storage", cfg.Storage.Primary)

	// Initialize providers
	pc := cfg.Providers
	google, err := services.NewGoogleTTS(context.Background(), pc.GoogleAPIKey, pc.GoogleCredentialsJSON)
	if err != nil {
		log.Fatalf("Failed to initialize Google TTS: %v", err)
	}
	elevenLabs := services.NewElevenLabsService(pc.ElevenLabsKey, pc.ElevenLabsURL, pc.ElevenLabsModelID)
	openaiSvc := services.NewOpenAIService(pc.OpenAIKey, pc.OpenAITTSModel, pc.OpenAIModel)
	cartesia := services.NewCartesiaService(pc.CartesiaKey, pc.CartesiaURL, pc.CartesiaVoiceID)
	gemini := services.NewGeminiService(pc.GeminiKey, pc.GeminiModel)

	var converter services.VoiceConverter
	if pc.RVCServiceURL != "" {
		converter = services.NewRVCService(pc.RVCServiceURL)
	}

	tts := services.NewRegistry(pc.TTSFallbackOrder, pc.MaxProviderCalls, google, elevenLabs, openaiSvc, cartesia)
	if configured := tts.Configured(); len(configured) > 0 {
		log.Printf("TTS providers: %v", configured)
	} else {
		log.Println("WARNING: No TTS provider configured, podcasts fall back to browser speech")
	}

	docs := documents.NewService(database, blobs, services.NewSummaryChain(gemini, openaiSvc))
	probe := services.ProbeChain{services.NewFFmpegService(filepath.Join(os.TempDir(), "docucast")), openaiSvc}
	voiceRegistry := voices.NewRegistry(database, blobs, elevenLabs, converter, probe)

	// Jobs go through Redis when it is configured, otherwise they run in-process
	var (
		dispatcher pipeline.Dispatcher
		inline     *pipeline.InlineDispatcher
		q          *queue.Queue
		stats      api.QueueStats
	)
	if cfg.RedisURL != "" {
		q, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		dispatcher, stats = q, q
		log.Println("Connected to Redis queue")
	} else {
		inline = pipeline.NewInlineDispatcher()
		dispatcher = inline
		log.Println("No REDIS_URL set, jobs run in-process")
	}

	orch := pipeline.NewOrchestrator(database, blobs, tts, voiceRegistry, elevenLabs, converter, dispatcher)
	if inline != nil {
		inline.Bind(orch)
	}

	handler := api.NewHandler(docs, voiceRegistry, orch, tts, stats)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		UploadsDir:         cfg.Storage.UploadsDir,
		PublicPath:         cfg.Storage.PublicPath,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if q != nil && cfg.WorkerEnabled {
		log.Printf("Worker enabled, consuming with concurrency %d", cfg.MaxConcurrentJobs)
		go func() {
			defer close(workerDone)
			if err := worker.New(q, orch).Start(workerCtx, cfg.MaxConcurrentJobs); err != nil {
				log.Errorf("Worker stopped: %v", err)
			}
		}()
	} else {
		close(workerDone)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	<-workerDone
	if inline != nil {
		inline.Wait()
	}
	blobs.Wait()

	log.Println("Server exited")
}
