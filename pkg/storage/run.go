package storage

import (
	"context"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/securevault/pkg/backup"
)

// Migrations holds the journal schema in golang-migrate naming.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	runInsertQuery = `
		INSERT INTO runs (
			type, "full", archive_path, db_dump_path,
			status, files, bytes, error, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	runUpdateQuery = `
		UPDATE runs SET
			type = ?, "full" = ?, archive_path = ?, db_dump_path = ?,
			status = ?, files = ?, bytes = ?, error = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`

	runSelectLast = `
		SELECT
			id, type, "full", archive_path, db_dump_path,
			status, files, bytes, error, started_at, finished_at
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`

	// newest successful run of every backup type
	runSelectLastSuccessful = `
		SELECT
			id, type, "full", archive_path, db_dump_path,
			status, files, bytes, error, started_at, finished_at
		FROM runs
		WHERE id IN (
			SELECT MAX(id) FROM runs WHERE status = ? GROUP BY type
		)
		ORDER BY type
	`

	runMarkUnfinished = `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`
)

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{
		db: db,
	}
}

func (r *RunRepository) Create(ctx context.Context, run backup.Run) (backup.Run, error) {
	stmt, err := r.db.PrepareContext(ctx, runInsertQuery)
	if err != nil {
		return run, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(
		ctx,
		run.Type, run.Full, run.ArchivePath, run.DbDumpPath,
		run.Status, run.Files, run.Bytes, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return run, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return run, err
	}

	run.Id = id

	return run, nil
}

func (r *RunRepository) Update(ctx context.Context, run backup.Run) error {
	stmt, err := r.db.PrepareContext(ctx, runUpdateQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		run.Type, run.Full, run.ArchivePath, run.DbDumpPath,
		run.Status, run.Files, run.Bytes, run.Error, run.StartedAt, run.FinishedAt,
		run.Id,
	)

	return err
}

func (r *RunRepository) FindLast(ctx context.Context, limit int) ([]backup.Run, error) {
	var runs []backup.Run

	err := r.db.SelectContext(ctx, &runs, runSelectLast, limit)
	if err != nil {
		return nil, err
	}

	return runs, nil
}

func (r *RunRepository) FindLastSuccessful(ctx context.Context) ([]backup.Run, error) {
	var runs []backup.Run

	err := r.db.SelectContext(ctx, &runs, runSelectLastSuccessful, backup.RunStatusSuccess)
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// MarkUnfinished closes runs left in "started" by a process that died
// mid-run and returns how many were closed.
func (r *RunRepository) MarkUnfinished(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(
		ctx, runMarkUnfinished,
		backup.RunStatusInterrupted, "process exited before the run finished", at,
		backup.RunStatusStarted,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
