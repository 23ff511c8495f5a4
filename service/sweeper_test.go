package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"CreativeStudio-server/models"
)

func TestSweepRequeuesStaleJobs(t *testing.T) {
	jobs := newMemJobs()
	jobs.stale = []models.Job{{ID: "a"}, {ID: "b"}}
	q := &fakeQueue{}

	n, err := NewSweeper(jobs, q, time.Minute, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 || len(q.calls) != 2 || q.calls[0].jobID != "a" || q.calls[0].delay != 0 {
		t.Fatalf("n = %d, calls = %+v", n, q.calls)
	}
	if len(jobs.touch) != 2 {
		t.Fatalf("touched = %v", jobs.touch)
	}
}

func TestSweepSkipsFailedEnqueue(t *testing.T) {
	jobs := newMemJobs()
	jobs.stale = []models.Job{{ID: "a"}}
	q := &fakeQueue{err: errors.New("redis down")}

	n, err := NewSweeper(jobs, q, time.Minute, nil).Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	if len(jobs.touch) != 0 {
		t.Fatal("job touched without being requeued")
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(newMemJobs(), &fakeQueue{}, time.Minute, nil)
	if err := s.Start("not a schedule"); err == nil {
		s.Stop()
		t.Fatal("expected error")
	}
	<-s.Stop().Done()
}
