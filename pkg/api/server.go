// Package api serves data stream usage reports over HTTP.
//
// Every usage endpoint negotiates a transport version with the caller: the
// caller's version comes from the X-Transport-Version header (or the
// transport_version query parameter), the lower of it and the server's version
// wins, and the chosen version is echoed back in the response header.
//
// @title           dsusage REST API
// @version         1.0.0
// @description     Data stream usage reports, encoded for the transport version each caller negotiates.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/dsusage/pkg/transport"
)

const (
	defaultMaxBodyBytes = 64 << 10
	shutdownTimeout     = 5 * time.Second
)

// Server holds the API server state
type Server struct {
	reporter  IUsageReporter
	snapshots ISnapshotStore
	config    ServerConfig
	version   transport.Version
	metrics   *Metrics
	logger    *zap.Logger
}

// NewServer creates a new API server. A nil config.Version means transport.Current
// and a nil snapshots store disables the history endpoints.
func NewServer(
	reporter IUsageReporter,
	snapshots ISnapshotStore,
	config ServerConfig,
	metrics *Metrics,
	logger *zap.Logger,
) *Server {
	version := transport.Current
	if config.Version != nil {
		version = *config.Version
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		reporter:  reporter,
		snapshots: snapshots,
		config:    config,
		version:   version,
		metrics:   metrics,
		logger:    logger,
	}
}

// Router builds the HTTP handler with all routes configured
func (s *Server) Router() http.Handler {
	m := s.metrics
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{headerTransportVersion, headerUsageHash},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// Usage reports
		r.Get("/usage", m.InstrumentHandler("GET", "/api/v1/usage", s.handleGetUsage))
		r.Get("/usage/wire", m.InstrumentHandler("GET", "/api/v1/usage/wire", s.handleGetUsageWire))
		r.Post("/usage/refresh", m.InstrumentHandler("POST", "/api/v1/usage/refresh", s.handleRefreshUsage))
		r.Post("/usage/decode", m.InstrumentHandler("POST", "/api/v1/usage/decode", s.handleDecodeUsage))
		r.Post("/usage/encode", m.InstrumentHandler("POST", "/api/v1/usage/encode", s.handleEncodeUsage))

		// History
		r.Get("/snapshots", m.InstrumentHandler("GET", "/api/v1/snapshots", s.handleListSnapshots))
		r.Get("/snapshots/{id}", m.InstrumentHandler("GET", "/api/v1/snapshots/{id}", s.handleGetSnapshot))
	})

	// Swagger documentation (unprotected)
	r.Get("/swagger/*", s.handleSwagger)

	return r
}

const swaggerUI = `<!DOCTYPE html>
<html>
<head>
	 <title>dsusage API Documentation</title>
	 <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui.css" />
</head>
<body>
	 <div id="swagger-ui"></div>
	 <script src="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui-bundle.js"></script>
	 <script>
	   window.onload = function() {
	     SwaggerUIBundle({
	       url: '/swagger/swagger.json',
	       dom_id: '#swagger-ui',
	       presets: [
	         SwaggerUIBundle.presets.apis,
	         SwaggerUIBundle.presets.standalone
	       ]
	     });
	   };
	 </script>
</body>
</html>`

// handleSwagger serves the Swagger UI and the registered API document as JSON or YAML
func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/swagger/", "/swagger/index.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerUI))

	case "/swagger/swagger.json":
		doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
		if err != nil {
			s.logger.Error("failed to read swagger doc", zap.Error(err))
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(doc))

	case "/swagger/swagger.yaml":
		doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
		if err == nil {
			doc, err = jsonToYAML(doc)
		}
		if err != nil {
			s.logger.Error("failed to read swagger doc", zap.Error(err))
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeYAML)
		_, _ = w.Write([]byte(doc))

	default:
		http.NotFound(w, r)
	}
}

// jsonToYAML re-emits a JSON document as block style YAML, keeping key order
func jsonToYAML(doc string) (string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &node); err != nil {
		return "", fmt.Errorf("failed to parse swagger doc: %w", err)
	}
	clearStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("failed to render swagger doc: %w", err)
	}
	return string(out), nil
}

func clearStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		clearStyle(c)
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("starting usage API",
		zap.String("addr", srv.Addr),
		zap.String("transport_version", s.version.String()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve api: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down usage API")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down api: %w", err)
		}
		return nil
	}
}
