package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
)

// DefaultInterval is the time between two status queries.
const DefaultInterval = 2 * time.Second

// DefaultFailureMessage is reported when a job fails without an error text.
const DefaultFailureMessage = "動画生成に失敗しました"

// ErrAlreadyRunning is returned when a loop already watches the job.
var ErrAlreadyRunning = errors.New("poll loop already running for job")

// StatusQuerier reads the status of a render job.
type StatusQuerier interface {
	Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error)
}

// Event is one translated status report.
type Event struct {
	JobID     string
	Status    model.JobStatus
	Progress  float64
	Message   string
	VideoPath string
	Error     string
	// Transport is set when the status query itself failed.
	Transport bool
}

// Terminal reports whether the loop stops after this event.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// Sink applies events to the owner's state. Apply returns false when the
// event's job is no longer the owner's current job; the loop then stops
// without further queries.
type Sink interface {
	Apply(ev Event) bool
}

// Handle controls one running loop.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *Handle) JobID() string { return h.jobID }

// Done is closed when the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once. Stop must not be called from inside Sink.Apply.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// Loop runs status polling, one goroutine per watched job.
type Loop struct {
	client   StatusQuerier
	interval time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	active map[string]*Handle
}

// New creates a loop querying client every interval.
func New(client StatusQuerier, interval time.Duration, log logrus.FieldLogger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		client:   client,
		interval: interval,
		log:      log.WithField("component", "poll"),
		active:   make(map[string]*Handle),
	}
}

// Start begins watching jobID. The first query happens immediately.
func (l *Loop) Start(ctx context.Context, jobID string, sink Sink) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[jobID]; ok {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	l.active[jobID] = h

	go l.run(ctx, h, sink)
	return h, nil
}

// Running reports whether jobID is being watched.
func (l *Loop) Running(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[jobID]
	return ok
}

// StopAll stops every loop and waits for them to exit.
func (l *Loop) StopAll() {
	l.mu.Lock()
	handles := make([]*Handle, 0, len(l.active))
	for _, h := range l.active {
		handles = append(handles, h)
	}
	l.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

func (l *Loop) run(ctx context.Context, h *Handle, sink Sink) {
	log := l.log.WithField("job", h.jobID)
	defer func() {
		l.mu.Lock()
		if l.active[h.jobID] == h {
			delete(l.active, h.jobID)
		}
		l.mu.Unlock()
		h.cancel()
		close(h.done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("poll cancelled")
			return
		case <-timer.C:
		}

		attempt++
		st, err := l.client.Status(ctx, h.jobID)
		if ctx.Err() != nil {
			// Answers that arrive after cancellation are discarded.
			return
		}

		ev := translate(h.jobID, st, err)
		log.WithFields(logrus.Fields{"attempt": attempt, "status": ev.Status}).Debug("poll")

		if !sink.Apply(ev) {
			log.Debug("job no longer current, stopping")
			return
		}
		if ev.Terminal() {
			log.WithField("status", ev.Status).Info("job finished")
			return
		}
		timer.Reset(l.interval)
	}
}

func translate(jobID string, st *model.JobStatusResponse, err error) Event {
	if err != nil {
		return Event{JobID: jobID, Status: model.JobStatusFailed, Error: err.Error(), Transport: true}
	}
	ev := Event{
		JobID:    jobID,
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
	}
	switch st.Status {
	case model.JobStatusCompleted:
		ev.Progress = 1
		ev.VideoPath = st.VideoPath()
	case model.JobStatusFailed:
		ev.Error = st.Error
		if ev.Error == "" {
			ev.Error = DefaultFailureMessage
		}
	case model.JobStatusPending, model.JobStatusProcessing:
	default:
		// Unknown statuses keep the loop alive.
		ev.Status = model.JobStatusProcessing
	}
	return ev
}
