package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/appcontext"
)

// LastSuccessfulHandler reports the newest successful run of every backup
// type, for external freshness checks.
type LastSuccessfulHandler struct {
	logger logrus.FieldLogger
	repo   RunRepository
}

func NewLastSuccessfulHandler(logger logrus.FieldLogger, repo RunRepository) *LastSuccessfulHandler {
	return &LastSuccessfulHandler{
		logger: logger,
		repo:   repo,
	}
}

type lastSuccessfulResponse struct {
	BackupType       string `json:"backup_type"`
	BackupSize       int64  `json:"backup_size"`
	Files            int64  `json:"files"`
	LastSuccessfulAt int64  `json:"last_successful_at_mtime"`
	LastCompletion   int64  `json:"last_completion_mtime"`
}

func (h *LastSuccessfulHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	runs, err := h.repo.FindLastSuccessful(ctx)
	if err != nil {
		logger.WithError(err).Error("Unable to query last successful runs")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result := make([]lastSuccessfulResponse, 0, len(runs))

	for _, run := range runs {
		resp := lastSuccessfulResponse{
			BackupType:       run.Type,
			BackupSize:       run.Bytes,
			Files:            run.Files,
			LastSuccessfulAt: millis(run.StartedAt),
		}
		if run.FinishedAt != nil {
			resp.LastCompletion = run.FinishedAt.Sub(run.StartedAt).Nanoseconds() / 1e6
		}

		result = append(result, resp)
	}

	writeJSON(w, logger, result)
}
