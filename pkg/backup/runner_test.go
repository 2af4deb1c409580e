package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// region archiverMock
type archiverMock struct {
	mock.Mock
}

func (m *archiverMock) Execute(ctx context.Context, dirs []string, output string, full bool) (Result, error) {
	args := m.Called(ctx, dirs, output, full)
	return args.Get(0).(Result), args.Error(1)
}

// endregion

// region dumperMock
type dumperMock struct {
	mock.Mock
}

func (m *dumperMock) Dump(ctx context.Context, prefix string) (string, error) {
	args := m.Called(ctx, prefix)
	return args.String(0), args.Error(1)
}

// endregion

// region transfererMock
type transfererMock struct {
	mock.Mock
}

func (m *transfererMock) Transfer(ctx context.Context, localFile, remoteDir string) error {
	args := m.Called(ctx, localFile, remoteDir)
	return args.Error(0)
}

// endregion

// region notifierMock
type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) Notify(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// endregion

// region runRepositoryMock
type runRepositoryMock struct {
	mock.Mock
}

func (m *runRepositoryMock) Create(ctx context.Context, run Run) (Run, error) {
	args := m.Called(ctx, run)
	return args.Get(0).(Run), args.Error(1)
}

func (m *runRepositoryMock) Update(ctx context.Context, run Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// endregion

// region markerMock
type markerMock struct {
	mock.Mock
}

func (m *markerMock) Write(t time.Time) error {
	args := m.Called(t)
	return args.Error(0)
}

// endregion

// region cleanerMock
type cleanerMock struct {
	mock.Mock
}

func (m *cleanerMock) Clean(folders []string, retentionDays int) error {
	args := m.Called(folders, retentionDays)
	return args.Error(0)
}

// endregion

// region observerMock
type observerMock struct {
	runs []Run
}

func (o *observerMock) ObserveRun(run Run) {
	o.runs = append(o.runs, run)
}

// endregion

var (
	sourceDirs = []string{"/var/www", "/etc/nginx"}
	closedAt   = now.Add(3 * time.Minute)
)

type runnerFixture struct {
	config Config

	archivePath string
	dumpPrefix  string
	dumpPath    string

	archiver   *archiverMock
	dumper     *dumperMock
	transferer *transfererMock
	notifier   *notifierMock
	repo       *runRepositoryMock
	marker     *markerMock
	cleaner    *cleanerMock
	observer   *observerMock

	verified  []string
	verifyErr error
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	base := t.TempDir()

	f := &runnerFixture{
		config: Config{
			BaseDir:       base,
			Dirs:          sourceDirs,
			RetentionDays: 7,
		},

		archivePath: filepath.Join(base, "sys", "sys-daily-15-20240315-100000.tar.gz"),
		dumpPrefix:  filepath.Join(base, "db", "all_databases_20240315-100000"),
		dumpPath:    filepath.Join(base, "db", "all_databases_20240315-100000.sql.gz"),

		archiver:   &archiverMock{},
		dumper:     &dumperMock{},
		transferer: &transfererMock{},
		notifier:   &notifierMock{},
		repo:       &runRepositoryMock{},
		marker:     &markerMock{},
		cleaner:    &cleanerMock{},
		observer:   &observerMock{},
	}

	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(run Run) bool {
		return run.Status == RunStatusStarted && run.Type == "daily"
	})).Return(Run{Id: 42, Type: "daily", ArchivePath: f.archivePath, Status: RunStatusStarted, StartedAt: now}, nil)

	return f
}

func (f *runnerFixture) verify(path string) (bool, error) {
	f.verified = append(f.verified, path)
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return true, nil
}

func (f *runnerFixture) runner() *Runner {
	r := NewRunner(discardLogger(), f.config, testclock.NewClock(now), f.archiver, f.verify, f.marker, f.cleaner, f.repo)

	return r.WithDumper(f.dumper).WithTransferer(f.transferer).WithNotifier(f.notifier).WithObserver(f.observer)
}

func (f *runnerFixture) expectStatus(status RunStatus) {
	f.repo.On("Update", mock.Anything, mock.MatchedBy(func(run Run) bool {
		return run.Id == 42 && run.Status == status && run.FinishedAt != nil
	})).Return(nil)
}

func (f *runnerFixture) folders() []string {
	return []string{f.config.SysDir(), f.config.DbDir()}
}

func (f *runnerFixture) assertExpectations(t *testing.T) {
	f.archiver.AssertExpectations(t)
	f.dumper.AssertExpectations(t)
	f.transferer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	f.marker.AssertExpectations(t)
	f.cleaner.AssertExpectations(t)
}

// region Test: Execute
func TestRunner_Execute_Success(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, true).
		Return(Result{Files: 12, Bytes: 4096, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(nil)
	f.transferer.On("Transfer", mock.Anything, f.archivePath, f.config.SysDir()).Return(nil)
	f.transferer.On("Transfer", mock.Anything, f.dumpPath, f.config.DbDir()).Return(nil)
	f.cleaner.On("Clean", f.folders(), 7).Return(nil)
	f.notifier.On("Notify", mock.Anything, "Backup completed: "+f.archivePath+" and "+f.dumpPath).Return(nil)
	f.expectStatus(RunStatusSuccess)

	err := f.runner().Execute(context.Background(), "daily", true)

	require.NoError(t, err)
	f.assertExpectations(t)
	assert.Equal(t, []string{f.archivePath}, f.verified)

	require.Len(t, f.observer.runs, 1)
	assert.Equal(t, RunStatusSuccess, f.observer.runs[0].Status)
	assert.Equal(t, int64(12), f.observer.runs[0].Files)
	assert.Equal(t, f.dumpPath, f.observer.runs[0].DbDumpPath)
	assert.DirExists(t, f.config.DbDir(), "dump folder is prepared")
}

func TestRunner_Execute_ArchiveNames(t *testing.T) {
	tests := []struct {
		backupType string
		name       string
	}{
		{"daily", "sys-daily-15-20240315-100000.tar.gz"},
		{"monthly", "sys-monthly-03-20240315-100000.tar.gz"},
		{"yearly", "sys-yearly-2024-20240315-100000.tar.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.backupType, func(t *testing.T) {
			f := newRunnerFixture(t)
			expected := filepath.Join(f.config.SysDir(), tt.name)

			f.repo = &runRepositoryMock{}
			f.repo.On("Create", mock.Anything, mock.Anything).Return(Run{Id: 42, Status: RunStatusStarted}, nil)
			f.expectStatus(RunStatusSuccess)

			f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return("", errors.New("no server"))
			f.archiver.On("Execute", mock.Anything, sourceDirs, expected, false).
				Return(Result{Files: 1, ClosedAt: closedAt}, nil)
			f.marker.On("Write", closedAt).Return(nil)
			f.transferer.On("Transfer", mock.Anything, expected, f.config.SysDir()).Return(nil)
			f.cleaner.On("Clean", f.folders(), 7).Return(nil)
			f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

			require.NoError(t, f.runner().Execute(context.Background(), tt.backupType, false))
			f.archiver.AssertExpectations(t)
		})
	}
}

func TestRunner_Execute_InvalidType(t *testing.T) {
	f := newRunnerFixture(t)
	f.repo = &runRepositoryMock{}

	err := f.runner().Execute(context.Background(), "hourly", false)

	assert.Error(t, err)
	f.assertExpectations(t)
	assert.Empty(t, f.observer.runs)
}

func TestRunner_Execute_DumpFailureContinues(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return("", errors.New("mysqldump exited with status 2"))
	f.notifier.On("Notify", mock.Anything, "Database backup failed: mysqldump exited with status 2").Return(nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 1, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(nil)
	f.transferer.On("Transfer", mock.Anything, f.archivePath, f.config.SysDir()).Return(nil)
	f.cleaner.On("Clean", f.folders(), 7).Return(nil)
	f.notifier.On("Notify", mock.Anything, "Backup completed: "+f.archivePath+" and no database backup").Return(nil)
	f.expectStatus(RunStatusSuccess)

	require.NoError(t, f.runner().Execute(context.Background(), "daily", false))
	f.assertExpectations(t)
}

func TestRunner_Execute_FileBackupFailure(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{}, errors.New("disk full"))
	f.notifier.On("Notify", mock.Anything, "File backup failed: disk full").Return(nil)
	f.expectStatus(RunStatusFailure)

	err := f.runner().Execute(context.Background(), "daily", false)

	require.Error(t, err)
	assert.False(t, IsInterrupted(err))
	f.assertExpectations(t)
	assert.Empty(t, f.verified)
}

func TestRunner_Execute_Interrupted(t *testing.T) {
	f := newRunnerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Run(func(mock.Arguments) { cancel() }).
		Return(Result{}, ErrInterrupted)
	f.notifier.On("Notify", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "File backup failed: backup interrupted").Return(nil)
	f.expectStatus(RunStatusInterrupted)

	err := f.runner().Execute(ctx, "daily", false)

	assert.True(t, IsInterrupted(err))
	f.assertExpectations(t)
	require.Len(t, f.observer.runs, 1)
	assert.Equal(t, RunStatusInterrupted, f.observer.runs[0].Status)
}

func TestRunner_Execute_VerificationFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.verifyErr = errors.New("unexpected EOF")

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 3, ClosedAt: closedAt}, nil)
	f.notifier.On("Notify", mock.Anything, "Backup verification failed: unexpected EOF").Return(nil)
	f.expectStatus(RunStatusFailure)

	err := f.runner().Execute(context.Background(), "daily", false)

	assert.Error(t, err)
	f.assertExpectations(t)
	f.marker.AssertNotCalled(t, "Write", mock.Anything)
	f.transferer.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_Execute_MarkerFailure(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 3, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(errors.New("read-only file system"))
	f.notifier.On("Notify", mock.Anything, "Unable to update backup marker: read-only file system").Return(nil)
	f.expectStatus(RunStatusFailure)

	assert.Error(t, f.runner().Execute(context.Background(), "daily", false))
	f.assertExpectations(t)
}

func TestRunner_Execute_NothingChanged(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Empty: true}, nil)
	f.transferer.On("Transfer", mock.Anything, f.dumpPath, f.config.DbDir()).Return(nil)
	f.cleaner.On("Clean", f.folders(), 7).Return(nil)
	f.notifier.On("Notify", mock.Anything, "Backup completed: no file changes and "+f.dumpPath).Return(nil)
	f.expectStatus(RunStatusSuccess)

	require.NoError(t, f.runner().Execute(context.Background(), "daily", false))

	f.assertExpectations(t)
	assert.Empty(t, f.verified)
	f.marker.AssertNotCalled(t, "Write", mock.Anything)
}

func TestRunner_Execute_TransferAndCleanupFailuresAreReported(t *testing.T) {
	f := newRunnerFixture(t)

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 3, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(nil)
	f.transferer.On("Transfer", mock.Anything, f.archivePath, f.config.SysDir()).Return(errors.New("connection refused"))
	f.transferer.On("Transfer", mock.Anything, f.dumpPath, f.config.DbDir()).Return(errors.New("connection refused"))
	f.cleaner.On("Clean", f.folders(), 7).Return(errors.New("permission denied"))
	f.notifier.On("Notify", mock.Anything, "File transfer failed: connection refused").Return(nil)
	f.notifier.On("Notify", mock.Anything, "Database transfer failed: connection refused").Return(nil)
	f.notifier.On("Notify", mock.Anything, "Cleanup failed: permission denied").Return(nil)
	f.notifier.On("Notify", mock.Anything, "Backup completed: "+f.archivePath+" and "+f.dumpPath).
		Return(errors.New("telegram is down"))
	f.expectStatus(RunStatusSuccess)

	require.NoError(t, f.runner().Execute(context.Background(), "daily", false))
	f.assertExpectations(t)
}

func TestRunner_Execute_JournalFailureIsIgnored(t *testing.T) {
	f := newRunnerFixture(t)

	f.repo = &runRepositoryMock{}
	f.repo.On("Create", mock.Anything, mock.Anything).Return(Run{}, errors.New("database is locked"))

	f.dumper.On("Dump", mock.Anything, f.dumpPrefix).Return(f.dumpPath, nil)
	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 3, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(nil)
	f.transferer.On("Transfer", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cleaner.On("Clean", f.folders(), 7).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.runner().Execute(context.Background(), "daily", false))

	f.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	require.Len(t, f.observer.runs, 1)
	assert.Equal(t, RunStatusSuccess, f.observer.runs[0].Status)
}

func TestRunner_Execute_WithoutCollaborators(t *testing.T) {
	f := newRunnerFixture(t)

	f.archiver.On("Execute", mock.Anything, sourceDirs, f.archivePath, false).
		Return(Result{Files: 3, ClosedAt: closedAt}, nil)
	f.marker.On("Write", closedAt).Return(nil)
	f.cleaner.On("Clean", f.folders(), 7).Return(nil)

	r := NewRunner(discardLogger(), f.config, testclock.NewClock(now), f.archiver, f.verify, f.marker, f.cleaner, nil)

	require.NoError(t, r.Execute(context.Background(), "daily", false))
	f.archiver.AssertExpectations(t)
	f.marker.AssertExpectations(t)
	f.cleaner.AssertExpectations(t)
}

// endregion

func TestIsInterrupted(t *testing.T) {
	assert.True(t, IsInterrupted(ErrInterrupted))
	assert.True(t, IsInterrupted(errors.Wrap(ErrInterrupted, "file backup")))
	assert.False(t, IsInterrupted(errors.New("backup interrupted")))
	assert.False(t, IsInterrupted(nil))
}

func TestChown_NoOwner(t *testing.T) {
	assert.NoError(t, chown("", "/does/not/matter"))
}

func TestChown_UnknownUser(t *testing.T) {
	err := chown("no-such-user-securevault", filepath.Join(t.TempDir(), "file"))
	assert.Error(t, err)
}
