package app

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/studio"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//go:embed templates
var templatesFS embed.FS

// A function that handles a request and returns data for a template.
type PageDataHander func(ctx *gin.Context, logger *slog.Logger) (any, error)

// A function that returns the main and auxillary templates to be rendered.
type PageTemplateDefiner func(ctx *gin.Context, logger *slog.Logger) []string

// Studio is the thread service the server drives.
type Studio interface {
	Start(ctx context.Context, req studio.StartRequest) (datamodels.Thread, error)
	SubmitFeedback(ctx context.Context, id, feedback string) (datamodels.Thread, error)
	Retry(ctx context.Context, id string) (datamodels.Thread, error)
	Get(ctx context.Context, id string) (datamodels.Thread, error)
	List(ctx context.Context) ([]datamodels.Thread, error)
}

// JobPostFetcher downloads a job posting from a URL.
type JobPostFetcher func(ctx context.Context, url string) (string, error)

// App collects all data for running the webserver.
type App struct {
	logger       *slog.Logger
	studio       Studio
	events       http.HandlerFunc
	fetchJobPost JobPostFetcher
	origins      []string
}

// Options for the studio server. Events, if set, serves the websocket
// event stream. FetchJobPost enables job URLs in new thread requests.
type Options struct {
	Events         http.HandlerFunc
	FetchJobPost   JobPostFetcher
	AllowedOrigins []string
}

// Create a new app.
func New(s Studio, logger *slog.Logger, opts Options) *App {
	return &App{
		logger:       logger,
		studio:       s,
		events:       opts.Events,
		fetchJobPost: opts.FetchJobPost,
		origins:      opts.AllowedOrigins,
	}
}

// Handler builds the gin engine with every route registered.
func (app *App) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(app.corsConfig()))
	r.Use(app.requestLogger())

	app.setupHandlers(r)
	return r
}

// Run the app until ctx is cancelled, returning a fatal error.
func (app *App) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: app.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info("Server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (app *App) corsConfig() cors.Config {
	config := cors.DefaultConfig()
	if len(app.origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = app.origins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	return config
}

const loggerKey = "logger"

// requestLogger attaches a logger with a fresh txid to every request.
func (app *App) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		logger := app.logger.With("txid", uuid.New().String())
		ctx.Set(loggerKey, logger)
		start := time.Now()
		logger.Info("Incoming request", "method", ctx.Request.Method, "path", ctx.Request.URL.Path)
		ctx.Next()
		logger.Info("Finished request", "status", ctx.Writer.Status(), "duration", time.Since(start))
	}
}

func loggerFrom(ctx *gin.Context) *slog.Logger {
	if l, ok := ctx.Get(loggerKey); ok {
		if logger, ok := l.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// Create a handler that calls the data handler then renders the data using the templates
func (app *App) handlePage(dataHandler PageDataHander, templateDefiner PageTemplateDefiner) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		requestLogger := loggerFrom(ctx)
		templatesToParse := []string{}
		templates := templateDefiner(ctx, requestLogger)
		for _, t := range templates {
			templatesToParse = append(templatesToParse, "templates/"+t+".html")
		}

		tmpl, err := template.ParseFS(templatesFS, templatesToParse...)
		if err != nil {
			requestLogger.Error("Template parse failed", "templates", templates, "error", err)
			ctx.Status(http.StatusInternalServerError)
			return
		}

		data, err := dataHandler(ctx, requestLogger)
		if err != nil {
			requestLogger.Error("Page data handler failed", "templates", templates, "error", err)
			ctx.String(errorStatus(err), err.Error())
			return
		}

		ctx.Header("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.ExecuteTemplate(ctx.Writer, templates[0], data); err != nil {
			requestLogger.Error("Template render failed", "templates", templates, "error", err)
			ctx.Status(http.StatusInternalServerError)
			return
		}
	}
}

// handleForm runs a form action and redirects to the page it returns.
func (app *App) handleForm(action func(ctx *gin.Context, logger *slog.Logger) (string, error)) func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		requestLogger := loggerFrom(ctx)
		location, err := action(ctx, requestLogger)
		if err != nil {
			requestLogger.Error("Form action failed", "error", err)
			if location == "" {
				ctx.String(errorStatus(err), err.Error())
				return
			}
		}
		ctx.Redirect(http.StatusSeeOther, location)
	}
}
