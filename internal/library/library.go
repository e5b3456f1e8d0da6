package library

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

// Status of the render of the selected script
type Status string

const (
	StatusIdle       Status = "idle"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Messages shown in State.Error and State.StatusMessage
const (
	MsgListFailed   = "ファイル一覧の取得に失敗しました"
	MsgLoadFailed   = "ファイルの読み込みに失敗しました"
	MsgDeleteFailed = "ファイルの削除に失敗しました"
	MsgNoSelection  = "ファイルが選択されていません"
	MsgSubmitFailed = "動画生成の開始に失敗しました"
	MsgStarting     = "動画生成を開始しています..."
)

var (
	ErrNoSelection = errors.New("no script selected")
	ErrClosed      = errors.New("library closed")
)

// ScriptStore is the saved-script repository
type ScriptStore interface {
	List(ctx context.Context) ([]model.ScriptFileInfo, error)
	Get(ctx context.Context, filename string) (*script.Script, error)
	Delete(ctx context.Context, filename string) error
	UpdateStatus(ctx context.Context, filename string, update model.ScriptStatusUpdate) (*model.ScriptFileInfo, error)
}

type JobSubmitter interface {
	SubmitRender(ctx context.Context, req *model.RenderRequest) (*model.RenderStartResponse, error)
}

// Marker flags a saved script as rendered
type Marker interface {
	MarkGenerated(ctx context.Context, filename string) error
}

// DirectMarker updates the flag with a direct call to the store.
type DirectMarker struct {
	Store ScriptStore
}

func (m DirectMarker) MarkGenerated(ctx context.Context, filename string) error {
	_, err := m.Store.UpdateStatus(ctx, filename, model.ScriptStatusUpdate{IsGenerated: true})
	return err
}

// State is a copy of the library state
type State struct {
	Files            []model.ScriptFileInfo `json:"files"`
	SelectedFilename string                 `json:"selectedFilename,omitempty"`
	Selected         *script.Script         `json:"selected,omitempty"`
	TaskID           string                 `json:"taskId,omitempty"`
	Status           Status                 `json:"status"`
	Progress         float64                `json:"progress"`
	Percent          int                    `json:"percent"`
	StatusMessage    string                 `json:"statusMessage"`
	Error            string                 `json:"error,omitempty"`
	VideoPath        string                 `json:"videoPath,omitempty"`
}

// Library renders scripts that were saved earlier, one at a time.
type Library struct {
	store  ScriptStore
	jobs   JobSubmitter
	loop   *poll.Loop
	marker Marker
	log    logrus.FieldLogger

	mu            sync.Mutex
	files         []model.ScriptFileInfo
	selectedName  string
	selected      *script.Script
	taskID        string
	status        Status
	progress      float64
	statusMessage string
	errMsg        string
	videoPath     string
	poll          *poll.Handle
	closed        bool
}

// New creates a library. marker may be nil, the generated flag is then
// left untouched.
func New(store ScriptStore, jobs JobSubmitter, loop *poll.Loop, marker Marker, log logrus.FieldLogger) *Library {
	return &Library{
		store:  store,
		jobs:   jobs,
		loop:   loop,
		marker: marker,
		log:    log.WithField("component", "library"),
		status: StatusIdle,
	}
}

// State returns a copy of the current state.
func (l *Library) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	files := make([]model.ScriptFileInfo, len(l.files))
	copy(files, l.files)
	return State{
		Files:            files,
		SelectedFilename: l.selectedName,
		Selected:         l.selected.Clone(),
		TaskID:           l.taskID,
		Status:           l.status,
		Progress:         l.progress,
		Percent:          int(math.Round(l.progress * 100)),
		StatusMessage:    l.statusMessage,
		Error:            l.errMsg,
		VideoPath:        l.videoPath,
	}
}

// Refresh reloads the list of saved scripts.
func (l *Library) Refresh(ctx context.Context) error {
	files, err := l.store.List(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.errMsg = errorMessage(err, MsgListFailed)
		l.log.WithError(err).Warn("failed to list scripts")
		return err
	}
	l.files = files
	l.errMsg = ""
	return nil
}

// clearGenerationLocked drops the render state. The returned handle must be
// stopped after l.mu is released.
func (l *Library) clearGenerationLocked() *poll.Handle {
	h := l.poll
	l.poll = nil
	l.taskID = ""
	l.status = StatusIdle
	l.progress = 0
	l.statusMessage = ""
	l.videoPath = ""
	return h
}

// Select fetches the named script and makes it the current one. An empty
// name clears the selection.
func (l *Library) Select(ctx context.Context, filename string) error {
	if filename == "" {
		l.mu.Lock()
		l.selectedName = ""
		l.selected = nil
		h := l.clearGenerationLocked()
		l.mu.Unlock()
		h.Stop()
		return nil
	}

	l.mu.Lock()
	l.selectedName = filename
	l.errMsg = ""
	l.mu.Unlock()

	s, err := l.store.Get(ctx, filename)

	l.mu.Lock()
	if l.selectedName != filename {
		// Another selection won.
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		l.selected = nil
		l.errMsg = errorMessage(err, MsgLoadFailed)
		l.mu.Unlock()
		l.log.WithError(err).WithField("file", filename).Warn("failed to load script")
		return err
	}
	l.selected = s
	h := l.clearGenerationLocked()
	l.mu.Unlock()

	h.Stop()
	return nil
}

// Delete removes a saved script and reloads the list. Deleting the selected
// script clears the selection.
func (l *Library) Delete(ctx context.Context, filename string) error {
	if err := l.store.Delete(ctx, filename); err != nil {
		l.mu.Lock()
		l.errMsg = errorMessage(err, MsgDeleteFailed)
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	if l.selectedName == filename {
		l.selectedName = ""
		l.selected = nil
	}
	l.mu.Unlock()

	l.log.WithField("file", filename).Info("script deleted")
	return l.Refresh(ctx)
}

// Generate submits the selected script for rendering and starts watching
// the job.
func (l *Library) Generate(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.selected == nil || l.selectedName == "" {
		l.errMsg = MsgNoSelection
		l.mu.Unlock()
		return ErrNoSelection
	}

	old := l.poll
	l.poll = nil
	l.taskID = ""
	l.status = StatusPending
	l.progress = 0
	l.statusMessage = MsgStarting
	l.errMsg = ""
	l.videoPath = ""
	filename := l.selectedName
	req := model.NewRenderRequest(l.selected)
	l.mu.Unlock()

	old.Stop()

	resp, err := l.jobs.SubmitRender(ctx, req)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.selectedName != filename || l.status != StatusPending || l.taskID != "" {
		return nil
	}
	if err != nil {
		l.status = StatusFailed
		l.errMsg = errorMessage(err, MsgSubmitFailed)
		l.log.WithError(err).WithField("file", filename).Warn("render submission failed")
		return err
	}

	l.taskID = resp.TaskID
	l.status = StatusProcessing
	l.statusMessage = resp.Message

	h, err := l.loop.Start(context.Background(), resp.TaskID, sink{l: l, filename: filename})
	if err != nil {
		l.status = StatusFailed
		l.errMsg = err.Error()
		return err
	}
	l.poll = h
	l.log.WithFields(logrus.Fields{"file": filename, "job": resp.TaskID}).Info("render started")
	return nil
}

type sink struct {
	l        *Library
	filename string
}

func (s sink) Apply(ev poll.Event) bool { return s.l.apply(ev, s.filename) }

func (l *Library) apply(ev poll.Event, filename string) bool {
	l.mu.Lock()
	if l.closed || l.taskID != ev.JobID {
		l.mu.Unlock()
		return false
	}

	l.progress = ev.Progress
	l.statusMessage = ev.Message
	completed := false
	switch ev.Status {
	case model.JobStatusPending:
		l.status = StatusPending
	case model.JobStatusCompleted:
		l.status = StatusCompleted
		l.videoPath = ev.VideoPath
		completed = true
	case model.JobStatusFailed:
		l.status = StatusFailed
		l.errMsg = ev.Error
	default:
		l.status = StatusProcessing
	}
	l.mu.Unlock()

	if completed {
		l.markGenerated(filename)
	}
	return true
}

func (l *Library) markGenerated(filename string) {
	if l.marker == nil {
		return
	}
	if err := l.marker.MarkGenerated(context.Background(), filename); err != nil {
		l.log.WithError(err).WithField("file", filename).Warn("failed to update file status")
		return
	}
	l.mu.Lock()
	for i := range l.files {
		if l.files[i].Filename == filename {
			l.files[i].IsGenerated = true
		}
	}
	l.mu.Unlock()
}

// ResetGeneration stops watching the job and returns to idle. The selection
// is kept.
func (l *Library) ResetGeneration() {
	l.mu.Lock()
	h := l.clearGenerationLocked()
	l.errMsg = ""
	l.mu.Unlock()
	h.Stop()
}

// ClearError drops the last error message.
func (l *Library) ClearError() {
	l.mu.Lock()
	l.errMsg = ""
	l.mu.Unlock()
}

// Wait blocks until the loop watching the current job has exited, or ctx
// is done. The handle is kept after a terminal status so Wait also covers
// the generated-flag update.
func (l *Library) Wait(ctx context.Context) error {
	l.mu.Lock()
	h := l.poll
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops watching the current job.
func (l *Library) Close() {
	l.mu.Lock()
	l.closed = true
	h := l.poll
	l.poll = nil
	l.mu.Unlock()
	h.Stop()
}

func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
