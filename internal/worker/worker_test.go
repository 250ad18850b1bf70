package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"prepmind/internal/queue"
	"prepmind/internal/storage"
)

func TestWorkerPersistsUsageJobs(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store, err := storage.Open(context.Background(), "sqlite", "file:"+t.TempDir()+"/w.db", true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	q := queue.NewStreamQueue(rdb, "test:usage", "grp", "c1", 20*time.Millisecond)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	w := New(Config{Store: store, Queue: q, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Start(ctx, 1)
		close(done)
	}()

	if _, err := q.Enqueue(context.Background(), queue.UsageJob{
		UserLabel: "student-9",
		Provider:  "groq",
		Model:     "llama-3.3-70b-versatile",
		Outcome:   "ok",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		recs, err := store.RecentGuidanceRecords(context.Background(), 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(recs) == 1 {
			if recs[0].Provider != "groq" || recs[0].UserLabel != "student-9" {
				t.Fatalf("unexpected record %+v", recs[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not persist the job in time")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
