package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amul-dhungel/Deepwork/api/handlers"
	"github.com/amul-dhungel/Deepwork/config"
	"github.com/amul-dhungel/Deepwork/document"
	"github.com/amul-dhungel/Deepwork/internal/metrics"
	"github.com/amul-dhungel/Deepwork/internal/pool"
	"github.com/amul-dhungel/Deepwork/internal/server"
	"github.com/amul-dhungel/Deepwork/llm"
	"github.com/amul-dhungel/Deepwork/providers"
	"github.com/amul-dhungel/Deepwork/providers/deepseek"
	"github.com/amul-dhungel/Deepwork/providers/gemini"
	"github.com/amul-dhungel/Deepwork/providers/grok"
	"github.com/amul-dhungel/Deepwork/providers/llama"
	"github.com/amul-dhungel/Deepwork/providers/manus"
	"github.com/amul-dhungel/Deepwork/providers/mock"
	"github.com/amul-dhungel/Deepwork/providers/ollama"
	"github.com/amul-dhungel/Deepwork/providers/openai"
	"github.com/amul-dhungel/Deepwork/providers/zhipu"
	"github.com/amul-dhungel/Deepwork/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server assembles the backend: provider registry, session store, document
// store, handlers, and the HTTP listener.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector  *metrics.Collector
	sessions   *session.Store
	docs       *document.Store
	workers    *pool.WorkerPool
	dispatcher *llm.Dispatcher
	prober     *llm.Prober

	chatHandler   *handlers.ChatHandler
	healthHandler *handlers.HealthHandler
	uploadHandler *handlers.UploadHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	gaugeStop chan struct{}
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, gaugeStop: make(chan struct{})}
}

// Start wires everything and begins listening.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("deepwork", s.logger)

	s.sessions = session.NewStore(s.logger,
		session.WithIdleTTL(s.cfg.Session.IdleTTL),
		session.WithSweepInterval(s.cfg.Session.SweepInterval))

	docs, err := document.NewStore(s.cfg.Upload.Dir, s.logger)
	if err != nil {
		return fmt.Errorf("init upload dir: %w", err)
	}
	s.docs = docs

	s.workers = pool.New(16, 64)
	s.dispatcher = llm.NewDispatcher(s.collector, s.logger)
	s.registerProviders()
	s.prober = llm.NewProber(s.dispatcher, s.workers, s.logger)

	s.chatHandler = handlers.NewChatHandler(s.dispatcher, s.sessions, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.prober, s.sessions, s.logger)
	s.uploadHandler = handlers.NewUploadHandler(s.docs, s.sessions, s.collector,
		s.cfg.Server.BaseURL, s.cfg.Upload.MaxFileBytes, s.logger)

	s.httpManager = server.NewManager(s.routes(), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.Port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	if s.cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.HandlerFor(s.collector.Registry(),
			promhttp.HandlerOpts{}))
		s.metricsManager = server.NewManager(metricsMux, server.Config{
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.ReadTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	go s.sessionGaugeLoop()

	s.logger.Info("server started",
		zap.Int("port", s.cfg.Server.Port),
		zap.Strings("providers", s.dispatcher.Names()),
		zap.String("default_provider", s.cfg.Providers.Default))
	return nil
}

// registerProviders builds one adapter per configured vendor. Adapters are
// always registered; ones without credentials report missing_key on probes
// and NOT_CONFIGURED on use, which is what the frontend model picker shows.
func (s *Server) registerProviders() {
	s.dispatcher.Register(gemini.New(toProviderConfig(s.cfg.Providers.Gemini), s.logger))
	s.dispatcher.Register(openai.New(toProviderConfig(s.cfg.Providers.OpenAI), s.logger))
	s.dispatcher.Register(grok.New(toProviderConfig(s.cfg.Providers.Grok), s.logger))
	s.dispatcher.Register(deepseek.New(toProviderConfig(s.cfg.Providers.DeepSeek), s.logger))
	s.dispatcher.Register(llama.New(toProviderConfig(s.cfg.Providers.Llama), s.logger))
	s.dispatcher.Register(zhipu.New(toProviderConfig(s.cfg.Providers.Zhipu), s.logger))
	s.dispatcher.Register(ollama.New(toProviderConfig(s.cfg.Providers.Ollama), s.logger))
	s.dispatcher.Register(manus.New(toProviderConfig(s.cfg.Providers.Manus), s.logger))
	if s.cfg.Providers.Mock {
		s.dispatcher.Register(mock.New())
	}
	s.dispatcher.SetDefault(s.cfg.Providers.Default)

	// Without a Gemini key the out-of-the-box default cannot answer anything;
	// register the mock so the process stays usable offline.
	if s.cfg.Providers.Default == "gemini" && s.cfg.Providers.Gemini.APIKey == "" {
		s.dispatcher.Register(mock.New())
		s.dispatcher.SetDefault("mock")
		s.logger.Warn("no Gemini API key configured, defaulting to the mock provider")
	}
}

func toProviderConfig(c config.ProviderConfig) providers.Config {
	return providers.Config{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: c.Timeout,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /api/models/status", s.healthHandler.HandleModelsStatus)

	mux.HandleFunc("POST /api/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("POST /api/generate", s.chatHandler.HandleGenerate)
	mux.HandleFunc("POST /api/summarize", s.chatHandler.HandleSummarize)
	mux.HandleFunc("POST /api/refine", s.chatHandler.HandleRefine)
	mux.HandleFunc("POST /api/stream_chat", s.chatHandler.HandleStreamChat)

	mux.HandleFunc("POST /api/upload", s.uploadHandler.HandleUpload)
	mux.Handle("GET /uploads/", s.uploadHandler.FileServer())

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		CORS(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	)
}

// sessionGaugeLoop keeps the active-session gauge current.
func (s *Server) sessionGaugeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.gaugeStop:
			return
		case <-ticker.C:
			s.collector.SetActiveSessions(s.sessions.Count())
		}
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then drains.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.stop()
}

func (s *Server) stop() {
	if s.metricsManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	close(s.gaugeStop)
	s.workers.Close()
	s.sessions.Close()
}

// Shutdown stops the server programmatically.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpManager.Shutdown(ctx)
	s.stop()
	return err
}
