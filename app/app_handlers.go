package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/sources"
	"github.com/JoshPattman/resumestudio/studio"
	"github.com/gin-gonic/gin"
)

// Setup all of the handlers to their respective endpoints
func (app *App) setupHandlers(r *gin.Engine) {
	r.GET("/", app.handlePage(app.homePageHandler, app.homePageTemplates))
	r.POST("/threads", app.handleForm(app.newThreadForm))
	r.GET("/threads/:id", app.handlePage(app.threadPageHandler, app.threadPageTemplates))
	r.POST("/threads/:id/feedback", app.handleForm(app.feedbackForm))
	r.POST("/threads/:id/retry", app.handleForm(app.retryForm))

	api := r.Group("/api")
	{
		api.GET("/threads", app.listThreads)
		api.POST("/threads", app.createThread)
		api.GET("/threads/:id", app.getThread)
		api.POST("/threads/:id/feedback", app.submitFeedback)
		api.POST("/threads/:id/retry", app.retryThread)
	}

	if app.events != nil {
		r.GET("/ws", gin.WrapF(app.events))
	}
}

type HomePageData struct {
	Title   string
	Threads []datamodels.Thread
}

func (app *App) homePageHandler(ctx *gin.Context, _ *slog.Logger) (any, error) {
	threads, err := app.studio.List(ctx.Request.Context())
	if err != nil {
		return nil, err
	}
	return HomePageData{Title: "Resume Studio", Threads: threads}, nil
}

func (app *App) homePageTemplates(*gin.Context, *slog.Logger) []string {
	return []string{"page", "home"}
}

type ThreadPageData struct {
	Title  string
	Thread datamodels.Thread
}

func (app *App) threadPageHandler(ctx *gin.Context, _ *slog.Logger) (any, error) {
	t, err := app.studio.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		return nil, err
	}
	return ThreadPageData{Title: "Thread " + t.ID, Thread: t}, nil
}

func (app *App) threadPageTemplates(*gin.Context, *slog.Logger) []string {
	return []string{"page", "thread"}
}

func (app *App) newThreadForm(ctx *gin.Context, logger *slog.Logger) (string, error) {
	req := studio.StartRequest{
		JobPost: ctx.PostForm("job_post"),
		Resume:  ctx.PostForm("resume"),
	}
	if jobURL := strings.TrimSpace(ctx.PostForm("job_url")); jobURL != "" && strings.TrimSpace(req.JobPost) == "" {
		jobPost, err := app.resolveJobURL(ctx.Request.Context(), jobURL)
		if err != nil {
			return "", err
		}
		req.JobPost = jobPost
	}
	if file, err := ctx.FormFile("resume_file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		text, err := sources.ParseResume(file.Filename, data)
		if err != nil {
			return "", err
		}
		logger.Info("Parsed uploaded resume", "file", file.Filename, "chars", len(text))
		req.Resume = text
	}
	t, err := app.studio.Start(ctx.Request.Context(), req)
	return threadLocation(t), err
}

func (app *App) feedbackForm(ctx *gin.Context, _ *slog.Logger) (string, error) {
	t, err := app.studio.SubmitFeedback(ctx.Request.Context(), ctx.Param("id"), ctx.PostForm("feedback"))
	return threadLocation(t), err
}

func (app *App) retryForm(ctx *gin.Context, _ *slog.Logger) (string, error) {
	t, err := app.studio.Retry(ctx.Request.Context(), ctx.Param("id"))
	return threadLocation(t), err
}

func (app *App) resolveJobURL(ctx context.Context, jobURL string) (string, error) {
	if app.fetchJobPost == nil {
		return "", fmt.Errorf("%w: fetching job posts by URL is disabled", studio.ErrInvalidRequest)
	}
	if !strings.HasPrefix(jobURL, "http://") && !strings.HasPrefix(jobURL, "https://") {
		return "", fmt.Errorf("%w: job_url must be an http(s) URL", studio.ErrInvalidRequest)
	}
	return app.fetchJobPost(ctx, jobURL)
}

func threadLocation(t datamodels.Thread) string {
	if t.ID == "" {
		return ""
	}
	return "/threads/" + t.ID
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, studio.ErrInvalidRequest), errors.Is(err, sources.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrThreadFinished),
		errors.Is(err, studio.ErrThreadFailed),
		errors.Is(err, studio.ErrThreadBusy),
		errors.Is(err, studio.ErrNotFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
