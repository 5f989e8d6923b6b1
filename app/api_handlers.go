package app

import (
	"net/http"
	"strings"

	"github.com/JoshPattman/resumestudio/datamodels"
	"github.com/JoshPattman/resumestudio/studio"
	"github.com/gin-gonic/gin"
)

type createThreadRequest struct {
	JobPost string `json:"job_post"`
	JobURL  string `json:"job_url"`
	Resume  string `json:"resume"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type errorResponse struct {
	Error  string             `json:"error"`
	Thread *datamodels.Thread `json:"thread,omitempty"`
}

func (app *App) listThreads(ctx *gin.Context) {
	threads, err := app.studio.List(ctx.Request.Context())
	if err != nil {
		app.respondError(ctx, err, datamodels.Thread{})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (app *App) createThread(ctx *gin.Context) {
	var req createThreadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON format: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.JobPost) == "" && req.JobURL != "" {
		jobPost, err := app.resolveJobURL(ctx.Request.Context(), strings.TrimSpace(req.JobURL))
		if err != nil {
			app.respondError(ctx, err, datamodels.Thread{})
			return
		}
		req.JobPost = jobPost
	}
	t, err := app.studio.Start(ctx.Request.Context(), studio.StartRequest{JobPost: req.JobPost, Resume: req.Resume})
	if err != nil {
		app.respondError(ctx, err, t)
		return
	}
	ctx.JSON(runStatus(t, http.StatusCreated), t)
}

func (app *App) getThread(ctx *gin.Context) {
	t, err := app.studio.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		app.respondError(ctx, err, datamodels.Thread{})
		return
	}
	ctx.JSON(http.StatusOK, t)
}

func (app *App) submitFeedback(ctx *gin.Context) {
	var req feedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid JSON format: " + err.Error()})
		return
	}
	t, err := app.studio.SubmitFeedback(ctx.Request.Context(), ctx.Param("id"), req.Feedback)
	if err != nil {
		app.respondError(ctx, err, t)
		return
	}
	ctx.JSON(runStatus(t, http.StatusOK), t)
}

func (app *App) retryThread(ctx *gin.Context) {
	t, err := app.studio.Retry(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		app.respondError(ctx, err, t)
		return
	}
	ctx.JSON(runStatus(t, http.StatusOK), t)
}

// runStatus is 202 while the thread is still running in the background.
func runStatus(t datamodels.Thread, settled int) int {
	if t.Status == datamodels.ThreadRunning {
		return http.StatusAccepted
	}
	return settled
}

// respondError writes err with its mapped status, including the thread when
// one exists.
func (app *App) respondError(ctx *gin.Context, err error, t datamodels.Thread) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		loggerFrom(ctx).Error("Request failed", "error", err)
	}
	resp := errorResponse{Error: err.Error()}
	if t.ID != "" {
		resp.Thread = &t
	}
	ctx.JSON(status, resp)
}
