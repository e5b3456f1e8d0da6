package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
)

// scriptedJobs answers status queries from a fixed sequence and repeats the
// last answer once the sequence is exhausted.
type scriptedJobs struct {
	calls   atomic.Int32
	answers []answer
}

type answer struct {
	st  *model.JobStatusResponse
	err error
}

func (f *scriptedJobs) Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	n := int(f.calls.Add(1)) - 1
	if n >= len(f.answers) {
		n = len(f.answers) - 1
	}
	a := f.answers[n]
	return a.st, a.err
}

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	current func(jobID string) bool
}

func (s *recordingSink) Apply(ev Event) bool {
	if s.current != nil && !s.current(ev.JobID) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func status(st model.JobStatus, progress float64, msg string) answer {
	return answer{st: &model.JobStatusResponse{Status: st, Progress: progress, Message: msg}}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not finish")
	}
}

func TestLoop_RunsToCompletion(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{
		status(model.JobStatusPending, 0, ""),
		status(model.JobStatusProcessing, 0.3, "音声を生成中..."),
		status(model.JobStatusProcessing, 0.7, "動画を生成中..."),
		{st: &model.JobStatusResponse{Status: model.JobStatusCompleted, Progress: 1, Message: "動画生成完了！", Result: &model.JobResult{VideoPath: "/out/a.mp4"}}},
	}}
	sink := &recordingSink{}
	loop := New(jobs, time.Millisecond, logging.Discard())

	h, err := loop.Start(context.Background(), "job-1", sink)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, h)
	time.Sleep(10 * time.Millisecond)

	if got := jobs.calls.Load(); got != 4 {
		t.Errorf("expected 4 status queries, got %d", got)
	}
	events := sink.snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	last := events[3]
	if last.Status != model.JobStatusCompleted || last.VideoPath != "/out/a.mp4" || last.Progress != 1 {
		t.Errorf("unexpected final event %+v", last)
	}
	if events[1].Progress != 0.3 || events[1].Message != "音声を生成中..." {
		t.Errorf("unexpected progress event %+v", events[1])
	}
	if loop.Running("job-1") {
		t.Error("expected loop to be released")
	}
}

func TestLoop_Failed(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{
		status(model.JobStatusProcessing, 0.1, ""),
		{st: &model.JobStatusResponse{Status: model.JobStatusFailed, Error: "render crashed"}},
	}}
	sink := &recordingSink{}
	h, _ := New(jobs, time.Millisecond, logging.Discard()).Start(context.Background(), "job-2", sink)
	waitDone(t, h)

	events := sink.snapshot()
	last := events[len(events)-1]
	if last.Status != model.JobStatusFailed || last.Error != "render crashed" || last.Transport {
		t.Errorf("unexpected final event %+v", last)
	}
	if jobs.calls.Load() != 2 {
		t.Errorf("expected 2 queries, got %d", jobs.calls.Load())
	}
}

func TestLoop_FailedWithoutMessage(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{status(model.JobStatusFailed, 0, "")}}
	sink := &recordingSink{}
	h, _ := New(jobs, time.Millisecond, logging.Discard()).Start(context.Background(), "job-3", sink)
	waitDone(t, h)

	if got := sink.snapshot()[0].Error; got != DefaultFailureMessage {
		t.Errorf("expected default failure message, got %q", got)
	}
}

func TestLoop_TransportErrorIsTerminal(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{{err: errors.New("connection refused")}}}
	sink := &recordingSink{}
	h, _ := New(jobs, time.Millisecond, logging.Discard()).Start(context.Background(), "job-4", sink)
	waitDone(t, h)

	events := sink.snapshot()
	if len(events) != 1 || !events[0].Transport || events[0].Error != "connection refused" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestLoop_StopHaltsQueries(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{status(model.JobStatusProcessing, 0.5, "")}}
	sink := &recordingSink{}
	h, _ := New(jobs, time.Millisecond, logging.Discard()).Start(context.Background(), "job-5", sink)

	deadline := time.Now().Add(2 * time.Second)
	for jobs.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	n := jobs.calls.Load()
	time.Sleep(20 * time.Millisecond)

	if got := jobs.calls.Load(); got != n {
		t.Errorf("expected no queries after Stop, had %d now %d", n, got)
	}
	h.Stop()
}

func TestLoop_StaleSinkStops(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{status(model.JobStatusProcessing, 0.5, "")}}
	sink := &recordingSink{current: func(string) bool { return false }}
	h, _ := New(jobs, time.Millisecond, logging.Discard()).Start(context.Background(), "job-6", sink)
	waitDone(t, h)

	if len(sink.snapshot()) != 0 {
		t.Error("expected stale events to be dropped")
	}
	if jobs.calls.Load() != 1 {
		t.Errorf("expected a single query, got %d", jobs.calls.Load())
	}
}

func TestLoop_AlreadyRunning(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{status(model.JobStatusProcessing, 0.5, "")}}
	loop := New(jobs, time.Millisecond, logging.Discard())

	h, err := loop.Start(context.Background(), "job-7", &recordingSink{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Stop()

	if _, err := loop.Start(context.Background(), "job-7", &recordingSink{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	other, err := loop.Start(context.Background(), "job-8", &recordingSink{})
	if err != nil {
		t.Fatalf("expected a different job to start: %v", err)
	}
	other.Stop()
}

func TestLoop_StopAll(t *testing.T) {
	jobs := &scriptedJobs{answers: []answer{status(model.JobStatusProcessing, 0.5, "")}}
	loop := New(jobs, time.Millisecond, logging.Discard())
	a, _ := loop.Start(context.Background(), "a", &recordingSink{})
	b, _ := loop.Start(context.Background(), "b", &recordingSink{})

	loop.StopAll()

	for _, h := range []*Handle{a, b} {
		select {
		case <-h.Done():
		default:
			t.Errorf("loop %s still running", h.JobID())
		}
	}
}

func TestTranslate_UnknownStatusKeepsPolling(t *testing.T) {
	ev := translate("j", &model.JobStatusResponse{Status: "queued"}, nil)
	if ev.Terminal() {
		t.Error("expected unknown status to be non-terminal")
	}
}
