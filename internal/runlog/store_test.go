package runlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarscan/internal/transform"
)

func sampleRun(id string) Run {
	return Run{
		RunID:      id,
		InputsHash: "inputs-abc",
		StartTime:  time.Unix(1, 2).UTC(),
		CacheMode:  CacheModeFile,
		Status:     StatusRunning,
		Artifacts:  3,
	}
}

func TestStore_SaveAndLoadRun_EndTimeNullable(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	require.NoError(t, store.SaveRun(sampleRun("run-123")))

	data, err := os.ReadFile(filepath.Join(base, ".jarscan", "runs", "run-123", "run.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"end_time": null`)

	loaded, err := store.LoadRun("run-123")
	require.NoError(t, err)
	assert.Equal(t, "inputs-abc", loaded.InputsHash)
	assert.Nil(t, loaded.EndTime)
}

func TestStore_SaveRun_RejectsInvalid(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = store.SaveRun(Run{RunID: "r", Status: "exploded", CacheMode: CacheModeFile})
	require.Error(t, err)
	// errors.Join reports every problem, not just the first.
	assert.Contains(t, err.Error(), "inputs_hash is required")
	assert.Contains(t, err.Error(), "start_time is required")
	assert.Contains(t, err.Error(), `invalid status "exploded"`)
}

func TestStore_RejectsPathLikeRunIDs(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := store.LoadRun(id)
		assert.Error(t, err, "run id %q", id)
	}
}

func TestStore_FailuresSortedAndEmptyAsArray(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	require.NoError(t, store.SaveFailures("run-1", nil))
	data, err := os.ReadFile(filepath.Join(base, ".jarscan", "runs", "run-1", "failures.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	failures := []Failure{
		{Artifact: "z.jar", ErrorCode: "SCAN_FAILED", ErrorMessage: "zip: not a valid zip file"},
		{Artifact: "a.jar", Hash: "h1", ErrorCode: "CANCELED", ErrorMessage: "context canceled"},
	}
	require.NoError(t, store.SaveFailures("run-1", failures))

	loaded, err := store.LoadFailures("run-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a.jar", loaded[0].Artifact)
	assert.Equal(t, "z.jar", loaded[1].Artifact)
}

func TestStore_LoadFailures_MissingFileIsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	failures, err := store.LoadFailures("never-ran")
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestStore_LoadRun_RejectsUnknownFields(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(sampleRun("r1")))

	path := filepath.Join(base, ".jarscan", "runs", "r1", "run.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "{", `{"extra": 1,`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = store.LoadRun("r1")
	assert.Error(t, err)
}

func TestStore_ListRunIDs_Sorted(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ids, err := store.ListRunIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.SaveRun(sampleRun(id)))
	}
	ids, err = store.ListRunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestRecorder_StartAndFinish(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	clock := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	rec := &Recorder{Store: store, Now: func() time.Time { return clock }}

	run, err := rec.StartRun(Run{InputsHash: "inputs", CacheMode: CacheModeDisabled, Artifacts: 2})
	require.NoError(t, err)
	_, err = uuid.Parse(run.RunID)
	assert.NoError(t, err, "run id must be a uuid")
	assert.Equal(t, StatusRunning, run.Status)

	clock = clock.Add(time.Second)
	run.Status = StatusFailed
	run.Transformed, run.Failed = 1, 1
	f, err := FailureFromError("b.jar", "h", &transform.Error{Code: transform.CodeScanFailed, Err: errors.New("bad zip")})
	require.NoError(t, err)

	done, err := rec.FinishRun(run, []Failure{f})
	require.NoError(t, err)
	require.NotNil(t, done.EndTime)
	assert.Equal(t, clock, *done.EndTime)

	loaded, err := store.LoadRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)

	failures, err := store.LoadFailures(run.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "SCAN_FAILED", failures[0].ErrorCode)
}

func TestFailureFromError(t *testing.T) {
	f, err := FailureFromError("a.jar", "", fmt.Errorf("wrapped: %w", &transform.Error{Code: transform.CodeCanceled, Err: errors.New("x")}))
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", f.ErrorCode)

	f, err = FailureFromError("a.jar", "", errors.New("disk full"))
	require.NoError(t, err)
	assert.Equal(t, CodeInternal, f.ErrorCode)

	_, err = FailureFromError("a.jar", "", nil)
	assert.Error(t, err)
}

func TestNewRunID_Unique(t *testing.T) {
	assert.NotEqual(t, NewRunID(), NewRunID())
}
