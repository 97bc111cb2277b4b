package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/pkg/schema"
)

func sampleRecord(jobID, name string) *jobs.Record {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return jobs.NewRecord(jobID, jobs.StatusSubmitted, "uploads", "public/"+name+".mp4", "vod-output", name, created)
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store jobs.Store) {
	t.Helper()
	ctx := context.Background()

	first := sampleRecord("1700000000000-abc123", "movie")
	if err := store.CreateJob(ctx, first); err != nil {
		t.Fatalf("create first job: %v", err)
	}
	if err := store.CreateJob(ctx, sampleRecord("1700000000000-abc123", "movie")); !errors.Is(err, jobs.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on duplicate create, got %v", err)
	}
	second := sampleRecord("1700000000001-def456", "trailer")
	if err := store.CreateJob(ctx, second); err != nil {
		t.Fatalf("create second job: %v", err)
	}

	got, err := store.GetJob(ctx, first.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored job")
	}
	if got.PK != "JOBS" || got.SK != "JOB#1700000000000-abc123" {
		t.Fatalf("unexpected keys pk=%q sk=%q", got.PK, got.SK)
	}
	if got.Filename != "FILENAME#movie" || got.Status != jobs.StatusSubmitted {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.CreatedAt != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected createdAt %q", got.CreatedAt)
	}

	missing, err := store.GetJob(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("get missing job: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %+v", missing)
	}

	if err := store.UpdateStatus(ctx, first.JobID, jobs.StatusProgressing, nil); err != nil {
		t.Fatalf("progressing transition: %v", err)
	}
	details := []schema.OutputGroupDetail{{
		Type:              "HLS_GROUP",
		PlaylistFilePaths: []string{"https://cdn.example.net/movie/movie.m3u8"},
		OutputDetails: []schema.OutputDetail{{
			OutputFilePaths: []string{"https://cdn.example.net/movie/movie_720.m3u8"},
			DurationInMs:    5000,
			VideoDetails:    &schema.VideoDetails{WidthInPx: 1280, HeightInPx: 720},
		}},
	}}
	if err := store.UpdateStatus(ctx, first.JobID, jobs.StatusComplete, &jobs.Extra{OutputGroupDetails: details}); err != nil {
		t.Fatalf("complete transition: %v", err)
	}
	if err := store.UpdateStatus(ctx, first.JobID, jobs.StatusComplete, &jobs.Extra{OutputGroupDetails: details}); err != nil {
		t.Fatalf("repeated complete should be idempotent: %v", err)
	}
	if err := store.UpdateStatus(ctx, first.JobID, jobs.StatusProgressing, nil); !errors.Is(err, jobs.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition moving back to PROGRESSING, got %v", err)
	}
	if err := store.UpdateStatus(ctx, "does-not-exist", jobs.StatusProgressing, nil); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown job, got %v", err)
	}

	got, err = store.GetJob(ctx, first.JobID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != jobs.StatusComplete {
		t.Fatalf("expected COMPLETE, got %s", got.Status)
	}
	if got.UpdatedAt == "" {
		t.Fatal("expected updatedAt to be set")
	}
	if len(got.OutputGroupDetails) != 1 || got.OutputGroupDetails[0].PlaylistFilePaths[0] != "https://cdn.example.net/movie/movie.m3u8" {
		t.Fatalf("unexpected output group details %+v", got.OutputGroupDetails)
	}
	if vd := got.OutputGroupDetails[0].OutputDetails[0].VideoDetails; vd == nil || vd.HeightInPx != 720 {
		t.Fatalf("unexpected video details %+v", vd)
	}

	if err := store.UpdateStatus(ctx, second.JobID, jobs.StatusError, &jobs.Extra{ErrorCode: 1010, ErrorMessage: "unsupported codec"}); err != nil {
		t.Fatalf("error transition: %v", err)
	}
	failed, err := store.GetJob(ctx, second.JobID)
	if err != nil {
		t.Fatalf("reload failed job: %v", err)
	}
	if failed.ErrorCode != 1010 || failed.ErrorMessage != "unsupported codec" {
		t.Fatalf("unexpected error attributes %+v", failed)
	}

	found, err := store.FindByFilename(ctx, "mov")
	if err != nil {
		t.Fatalf("find by filename: %v", err)
	}
	if found == nil || found.JobID != first.JobID {
		t.Fatalf("expected prefix match on movie, got %+v", found)
	}
	none, err := store.FindByFilename(ctx, "zzz")
	if err != nil {
		t.Fatalf("find missing filename: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no match, got %+v", none)
	}

	all, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
	if all[0].JobID != first.JobID || all[1].JobID != second.JobID {
		t.Fatalf("unexpected order %s, %s", all[0].JobID, all[1].JobID)
	}
}
