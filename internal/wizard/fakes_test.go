package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

type fakeIntake struct {
	resp *model.ExtractTextResponse
	err  error
	got  string
}

func (f *fakeIntake) ExtractText(ctx context.Context, filename string, file io.Reader) (*model.ExtractTextResponse, error) {
	b, _ := io.ReadAll(file)
	f.got = string(b)
	return f.resp, f.err
}

type fakeGenerator struct {
	script *script.Script
	err    error
	input  string
	calls  int
}

func (f *fakeGenerator) GenerateScript(ctx context.Context, req *model.GenerateScriptRequest) (*script.Script, error) {
	f.calls++
	f.input = req.InputText
	if f.err != nil {
		return nil, f.err
	}
	return f.script.Clone(), nil
}

// fakeJobs hands out job ids and answers status queries from a sequence,
// repeating the last answer once it is exhausted.
type fakeJobs struct {
	mu        sync.Mutex
	submits   int
	submitErr error
	lastReq   *model.RenderRequest
	sequence  []*model.JobStatusResponse
	statusErr error
	seen      map[string]int

	statusCalls atomic.Int32
}

func (f *fakeJobs) SubmitRender(ctx context.Context, req *model.RenderRequest) (*model.RenderStartResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastReq = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &model.RenderStartResponse{TaskID: fmt.Sprintf("job-%d", f.submits), Message: "動画生成を開始しました"}, nil
}

func (f *fakeJobs) Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	f.statusCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	n := f.seen[jobID]
	f.seen[jobID]++
	if n >= len(f.sequence) {
		n = len(f.sequence) - 1
	}
	st := *f.sequence[n]
	return &st, nil
}

func (f *fakeJobs) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeSaver struct {
	req *model.SaveScriptRequest
	err error
}

func (f *fakeSaver) Save(ctx context.Context, req *model.SaveScriptRequest) (*model.SaveScriptResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.SaveScriptResponse{Success: true, Filename: req.Filename}, nil
}

type fakeArchive struct {
	err  error
	name string
}

func (f *fakeArchive) Archive(ctx context.Context, filename string, body []byte, contentType string) (string, error) {
	f.name = filename
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/documents/" + filename, nil
}

type memoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snaps: make(map[string]Snapshot)}
}

func (m *memoryStore) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

func (m *memoryStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &snap, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.snaps, id)
	return nil
}

// recorder counts entries into the result step across published snapshots.
type recorder struct {
	mu                sync.Mutex
	last              Step
	resultTransitions int
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Step == StepResult && r.last != StepResult {
		r.resultTransitions++
	}
	r.last = s.Step
}

func (r *recorder) transitions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultTransitions
}

type fixture struct {
	intake    *fakeIntake
	generator *fakeGenerator
	jobs      *fakeJobs
	saver     *fakeSaver
	archive   *fakeArchive
	store     *memoryStore
	rec       *recorder
	manager   *Manager
}

func sampleScript() *script.Script {
	return &script.Script{
		Title: "光合作用",
		Sections: []script.Section{
			{Name: "導入", BackgroundRef: "classroom", Segments: []script.Segment{
				{Speaker: script.Zundamon, Text: "光合作用を学ぶのだ"},
				{Speaker: script.Metan, Text: "よろしくね"},
			}},
			{Name: "まとめ", BackgroundRef: "blackboard", Segments: []script.Segment{
				{Speaker: script.Tsumugi, Text: "おさらい"},
			}},
		},
	}
}

func processing(p float64, msg string) *model.JobStatusResponse {
	return &model.JobStatusResponse{Status: model.JobStatusProcessing, Progress: p, Message: msg}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		intake:    &fakeIntake{resp: &model.ExtractTextResponse{Success: true, Text: "植物は光を使って養分をつくる"}},
		generator: &fakeGenerator{script: sampleScript()},
		jobs:      &fakeJobs{sequence: []*model.JobStatusResponse{processing(0.5, "")}},
		saver:     &fakeSaver{},
		archive:   &fakeArchive{},
		store:     newMemoryStore(),
		rec:       &recorder{},
	}
	log := logging.Discard()
	f.manager = NewManager(Deps{
		Intake:    f.intake,
		Generator: f.generator,
		Jobs:      f.jobs,
		Saver:     f.saver,
		Archive:   f.archive,
		Poll:      poll.New(f.jobs, time.Millisecond, log),
		Log:       log,
	}, f.store)
	f.manager.Subscribe(f.rec.observe)
	t.Cleanup(f.manager.Close)
	return f
}

// reviewSession returns a session at the review step holding a script.
func (f *fixture) reviewSession(t *testing.T) *Session {
	t.Helper()
	s := f.manager.Create()
	if err := s.SubmitDocument(context.Background(), Document{Name: "lesson.txt", Data: []byte("本文")}); err != nil {
		t.Fatalf("SubmitDocument failed: %v", err)
	}
	if err := s.Advance(StepReview); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := s.RequestScript(context.Background()); err != nil {
		t.Fatalf("RequestScript failed: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func isFailure(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
