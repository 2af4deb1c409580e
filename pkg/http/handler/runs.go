package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/appcontext"
	"github.com/yurykabanov/securevault/pkg/backup"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type RunRepository interface {
	FindLast(ctx context.Context, limit int) ([]backup.Run, error)
	FindLastSuccessful(context.Context) ([]backup.Run, error)
}

type runResponse struct {
	Id          int64  `json:"id"`
	Type        string `json:"type"`
	Full        bool   `json:"full"`
	Status      string `json:"status"`
	ArchivePath string `json:"archive_path,omitempty"`
	DbDumpPath  string `json:"db_dump_path,omitempty"`
	Files       int64  `json:"files"`
	Bytes       int64  `json:"bytes"`
	Error       string `json:"error,omitempty"`
	StartedAt   int64  `json:"started_at_mtime"`
	FinishedAt  int64  `json:"finished_at_mtime,omitempty"`
}

func millis(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

// RunsHandler lists the most recent runs, newest first. The page size comes
// from the "limit" query parameter.
type RunsHandler struct {
	logger logrus.FieldLogger
	repo   RunRepository
}

func NewRunsHandler(logger logrus.FieldLogger, repo RunRepository) *RunsHandler {
	return &RunsHandler{
		logger: logger,
		repo:   repo,
	}
}

func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n > maxRunsLimit {
			n = maxRunsLimit
		}
		limit = n
	}

	runs, err := h.repo.FindLast(ctx, limit)
	if err != nil {
		logger.WithError(err).Error("Unable to query last runs")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result := make([]runResponse, 0, len(runs))

	for _, run := range runs {
		resp := runResponse{
			Id:          run.Id,
			Type:        run.Type,
			Full:        run.Full,
			Status:      string(run.Status),
			ArchivePath: run.ArchivePath,
			DbDumpPath:  run.DbDumpPath,
			Files:       run.Files,
			Bytes:       run.Bytes,
			Error:       run.Error,
			StartedAt:   millis(run.StartedAt),
		}
		if run.FinishedAt != nil {
			resp.FinishedAt = millis(*run.FinishedAt)
		}

		result = append(result, resp)
	}

	writeJSON(w, logger, result)
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	err := enc.Encode(v)
	if err != nil {
		logger.WithError(err).Error("Unable to encode response")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
