// Package dashboard serves the buyer dashboard: the query model behind it
// (login by email and access code, list, tabs, search, counters, deletion)
// and a local web rendering of it built on gin.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed assets/*
var assetsFS embed.FS

// Records fetches full negotiation records.
type Records interface {
	GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error)
}

// Exporter opens the PDF export of a negotiation.
type Exporter interface {
	ExportPDF(ctx context.Context, id string) (io.ReadCloser, error)
}

// SessionFactory opens a realtime session for a negotiation.
type SessionFactory func(negotiationID string) (*realtime.Session, error)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Backend  Backend
	Records  Records
	Exporter Exporter
	Sessions SessionFactory // optional; enables live chat on negotiation pages
	Port     int
	Out      io.Writer
	Logger   zerolog.Logger
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := newRouter(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter validates opts and builds the gin engine with all routes.
func newRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("dashboard: backend is required")
	}
	if opts.Records == nil {
		return nil, fmt.Errorf("dashboard: records client is required")
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, &handlers{
		query:    NewQuery(opts.Backend),
		records:  opts.Records,
		exporter: opts.Exporter,
		sessions: opts.Sessions,
	})
	return router, nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

var templateFuncs = template.FuncMap{
	"suppliers": func(n models.Negotiation) string {
		names := n.TargetDetails.SupplierNames()
		switch len(names) {
		case 0:
			return "-"
		case 1:
			return names[0]
		default:
			return fmt.Sprintf("%s +%d", names[0], len(names)-1)
		}
	},
	"when":  func(ts models.Timestamp) string { return ts.Display() },
	"known": func(b *bool) bool { return b != nil && *b },
}
