package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

var (
	ErrInvalidTags = errors.New("invalid grade or subject")
	ErrNoScript    = errors.New("session has no script")
)

// DocumentIntake extracts text from an uploaded document.
type DocumentIntake interface {
	ExtractText(ctx context.Context, filename string, file io.Reader) (*model.ExtractTextResponse, error)
}

// ScriptGenerator writes a script from tagged source text.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req *model.GenerateScriptRequest) (*script.Script, error)
}

// JobSubmitter starts render jobs.
type JobSubmitter interface {
	SubmitRender(ctx context.Context, req *model.RenderRequest) (*model.RenderStartResponse, error)
}

// ScriptSaver persists scripts to the script store.
type ScriptSaver interface {
	Save(ctx context.Context, req *model.SaveScriptRequest) (*model.SaveScriptResponse, error)
}

// DocumentArchiver keeps a copy of uploaded documents.
type DocumentArchiver interface {
	Archive(ctx context.Context, filename string, body []byte, contentType string) (string, error)
}

// Deps are the collaborators shared by every session. Archive may be nil.
type Deps struct {
	Intake    DocumentIntake
	Generator ScriptGenerator
	Jobs      JobSubmitter
	Saver     ScriptSaver
	Archive   DocumentArchiver
	Poll      *poll.Loop
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// Document is an uploaded source file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// LogEntry is one line of the render log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// BuildScriptInput prefixes the source text with the grade and subject tags.
func BuildScriptInput(grade model.Grade, subject model.Subject, text string) string {
	return fmt.Sprintf("学年: %s\n教科: %s\n---\n%s", grade, subject, text)
}

// Session is one pass through the wizard. All methods are safe for
// concurrent use.
type Session struct {
	id     string
	deps   Deps
	log    logrus.FieldLogger
	notify func(Snapshot)

	// pubMu orders notifications so observers never see an older snapshot
	// after a newer one.
	pubMu sync.Mutex

	mu         sync.Mutex
	step       Step
	fileName   string
	sourceText string
	archiveURL string
	grade      model.Grade
	subject    model.Subject
	script     *script.Script
	jobID      string
	progress   float64
	entries    []LogEntry
	resultPath string
	busy       bool
	lastError  *Failure
	createdAt  time.Time
	updatedAt  time.Time

	// epoch changes on every reset; results of calls started in an older
	// epoch are discarded.
	epoch  uint64
	poll   *poll.Handle
	closed bool
}

func newSession(id string, deps Deps, notify func(Snapshot)) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	now := deps.Now()
	return &Session{
		id:        id,
		deps:      deps,
		log:       deps.Log.WithField("session", id),
		notify:    notify,
		step:      StepIntake,
		grade:     model.DefaultGrade,
		subject:   model.DefaultSubject,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) publish() {
	if s.notify == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.notify(s.Snapshot())
}

func (s *Session) touch() {
	s.updatedAt = s.deps.Now()
}

func (s *Session) appendLog(message string) {
	s.entries = append(s.entries, LogEntry{Timestamp: s.deps.Now(), Message: message})
}

// begin marks the session busy for a remote call and returns the epoch its
// result must still match.
func (s *Session) begin() uint64 {
	s.mu.Lock()
	s.busy = true
	s.lastError = nil
	s.touch()
	epoch := s.epoch
	s.mu.Unlock()
	s.publish()
	return epoch
}

// finish clears busy and runs apply unless the session was reset since
// begin. It reports whether apply ran.
func (s *Session) finish(epoch uint64, apply func()) bool {
	s.mu.Lock()
	if epoch != s.epoch || s.closed {
		s.mu.Unlock()
		return false
	}
	s.busy = s.poll != nil
	apply()
	s.touch()
	s.mu.Unlock()
	s.publish()
	return true
}

// SetTags sets the grade and subject attached to script generation.
func (s *Session) SetTags(grade model.Grade, subject model.Subject) error {
	if !grade.Valid() || !subject.Valid() {
		return ErrInvalidTags
	}
	s.mu.Lock()
	s.grade = grade
	s.subject = subject
	s.touch()
	s.mu.Unlock()
	s.publish()
	return nil
}

// Advance moves the wizard to target. Content is not checked: a review step
// without a script shows a placeholder. Moving back behaves like ResetTo.
func (s *Session) Advance(target Step) error {
	if !target.Valid() {
		return ErrInvalidStep
	}
	s.mu.Lock()
	if !CanTransition(s.step, target) {
		from := s.step
		s.mu.Unlock()
		return &TransitionError{From: from, To: target}
	}
	var h *poll.Handle
	if target < s.step {
		h = s.resetLocked(target)
	} else {
		s.step = target
		s.touch()
	}
	s.mu.Unlock()

	h.Stop()
	s.log.WithField("step", target).Debug("advance")
	s.publish()
	return nil
}

// SubmitDocument extracts the text of doc. The step is left unchanged.
func (s *Session) SubmitDocument(ctx context.Context, doc Document) error {
	epoch := s.begin()
	log := s.log.WithField("file", doc.Name)

	archived := ""
	if s.deps.Archive != nil {
		url, err := s.deps.Archive.Archive(ctx, doc.Name, doc.Data, doc.ContentType)
		if err != nil {
			log.WithError(err).Warn("failed to archive document")
		} else {
			archived = url
		}
	}

	resp, err := s.deps.Intake.ExtractText(ctx, doc.Name, bytes.NewReader(doc.Data))
	var failure *Failure
	switch {
	case err != nil:
		failure = newFailure(IntakeFailure, "", err, s.deps.Now())
	case !resp.Success:
		msg := resp.Message
		if msg == "" {
			msg = "text extraction failed"
		}
		failure = newFailure(IntakeFailure, msg, nil, s.deps.Now())
	}

	s.finish(epoch, func() {
		if failure != nil {
			s.lastError = failure
			return
		}
		s.fileName = doc.Name
		s.sourceText = resp.Text
		s.archiveURL = archived
	})

	if failure != nil {
		log.WithError(failure).Warn("document intake failed")
		return failure
	}
	log.WithField("chars", len([]rune(resp.Text))).Info("document text extracted")
	return nil
}

// RequestScript generates a script from the source text. A previous script
// is replaced wholesale.
func (s *Session) RequestScript(ctx context.Context) error {
	epoch := s.begin()

	s.mu.Lock()
	text := s.sourceText
	input := BuildScriptInput(s.grade, s.subject, text)
	s.mu.Unlock()

	var (
		generated *script.Script
		failure   *Failure
	)
	if text == "" {
		failure = newFailure(GenerationFailure, "no source text to generate from", nil, s.deps.Now())
	} else {
		sc, err := s.deps.Generator.GenerateScript(ctx, &model.GenerateScriptRequest{InputText: input})
		if err != nil {
			failure = newFailure(GenerationFailure, "", err, s.deps.Now())
		} else {
			generated = script.Normalized(sc)
		}
	}

	s.finish(epoch, func() {
		if failure != nil {
			s.lastError = failure
			return
		}
		s.script = generated
	})

	if failure != nil {
		s.log.WithError(failure).Warn("script generation failed")
		return failure
	}
	s.log.WithField("segments", generated.Count()).Info("script generated")
	return nil
}

// StartRender submits the current script and starts watching the job. The
// wizard moves to the generating step first; starting from intake is a
// TransitionError.
func (s *Session) StartRender(ctx context.Context) error {
	s.mu.Lock()
	if s.script == nil {
		s.lastError = newFailure(SubmissionFailure, "no script to render", ErrNoScript, s.deps.Now())
		failure := s.lastError
		s.touch()
		s.mu.Unlock()
		s.publish()
		return failure
	}
	if s.step != StepGenerating {
		if !CanTransition(s.step, StepGenerating) {
			from := s.step
			s.mu.Unlock()
			return &TransitionError{From: from, To: StepGenerating}
		}
		s.step = StepGenerating
	}

	old := s.poll
	s.poll = nil
	s.jobID = ""
	s.entries = nil
	s.progress = 0
	s.resultPath = ""
	s.busy = true
	s.lastError = nil
	s.epoch++
	epoch := s.epoch
	req := model.NewRenderRequest(s.script)
	s.touch()
	s.mu.Unlock()

	old.Stop()
	s.publish()

	resp, err := s.deps.Jobs.SubmitRender(ctx, req)

	s.mu.Lock()
	if epoch != s.epoch || s.closed {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.busy = false
		s.lastError = newFailure(SubmissionFailure, "", err, s.deps.Now())
		failure := s.lastError
		s.touch()
		s.mu.Unlock()
		s.log.WithError(err).Warn("render submission failed")
		s.publish()
		return failure
	}

	s.jobID = resp.TaskID
	msg := resp.Message
	if msg == "" {
		msg = "Video generation started"
	}
	s.appendLog(msg)

	// The loop goroutine blocks on s.mu until this method releases it, so
	// s.poll is set before the first event is applied.
	h, err := s.deps.Poll.Start(context.Background(), resp.TaskID, pollSink{s})
	if err != nil {
		s.busy = false
		s.lastError = newFailure(PollTransportFailure, "", err, s.deps.Now())
		failure := s.lastError
		s.touch()
		s.mu.Unlock()
		s.publish()
		return failure
	}
	s.poll = h
	s.touch()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"job": resp.TaskID, "segments": len(req.Conversations)}).Info("render started")
	s.publish()
	return nil
}

type pollSink struct{ s *Session }

func (p pollSink) Apply(ev poll.Event) bool { return p.s.applyPoll(ev) }

func (s *Session) applyPoll(ev poll.Event) bool {
	s.mu.Lock()
	if s.closed || s.jobID != ev.JobID {
		s.mu.Unlock()
		return false
	}

	switch ev.Status {
	case model.JobStatusCompleted:
		s.progress = 1
		s.resultPath = ev.VideoPath
		msg := ev.Message
		if msg == "" {
			msg = "Video generation completed"
		}
		s.appendLog(msg)
		s.busy = false
		s.poll = nil
		if s.step != StepResult && CanTransition(s.step, StepResult) {
			s.step = StepResult
		}
	case model.JobStatusFailed:
		kind := JobFailure
		if ev.Transport {
			kind = PollTransportFailure
		}
		s.lastError = newFailure(kind, ev.Error, nil, s.deps.Now())
		s.appendLog("Video generation failed: " + ev.Error)
		s.busy = false
		s.poll = nil
	default:
		s.progress = ev.Progress
		if ev.Message != "" {
			s.appendLog(ev.Message)
		}
	}
	s.touch()
	s.mu.Unlock()

	s.publish()
	return true
}

// resetLocked moves to target and clears everything downstream of it. The
// returned handle, if any, must be stopped after s.mu is released.
func (s *Session) resetLocked(target Step) *poll.Handle {
	var h *poll.Handle
	s.step = target
	s.lastError = nil
	s.epoch++
	if target <= StepGenerating {
		s.resultPath = ""
	}
	if target <= StepReview {
		h = s.poll
		s.poll = nil
		s.jobID = ""
		s.entries = nil
		s.progress = 0
	}
	if target <= StepIntake {
		s.script = nil
	}
	s.busy = s.poll != nil
	s.touch()
	return h
}

// ResetTo goes back to target, discarding state that belongs to later steps.
func (s *Session) ResetTo(target Step) error {
	if !target.Valid() {
		return ErrInvalidStep
	}
	s.mu.Lock()
	if target > s.step || !CanTransition(s.step, target) {
		from := s.step
		s.mu.Unlock()
		return &TransitionError{From: from, To: target}
	}
	h := s.resetLocked(target)
	s.mu.Unlock()

	h.Stop()
	s.log.WithField("step", target).Debug("reset to step")
	s.publish()
	return nil
}

// Cancel stops watching the current job and returns to review. The remote
// job is not cancelled.
func (s *Session) Cancel() error {
	s.mu.Lock()
	jobID := s.jobID
	s.mu.Unlock()

	if err := s.ResetTo(StepReview); err != nil {
		return err
	}
	if jobID != "" {
		s.log.WithField("job", jobID).Info("stopped watching job")
	}
	return nil
}

// Reset returns the whole session to its initial state.
func (s *Session) Reset() {
	s.mu.Lock()
	h := s.resetLocked(StepIntake)
	s.fileName = ""
	s.sourceText = ""
	s.archiveURL = ""
	s.grade = model.DefaultGrade
	s.subject = model.DefaultSubject
	s.mu.Unlock()

	h.Stop()
	s.publish()
}

func (s *Session) edit(fn func(*script.Script) *script.Script) {
	s.mu.Lock()
	next := fn(s.script)
	changed := next != s.script
	if changed {
		s.script = next
		s.touch()
	}
	s.mu.Unlock()
	if changed {
		s.publish()
	}
}

func (s *Session) UpdateSegment(sectionIdx, segmentIdx int, p script.Patch) {
	s.edit(func(cur *script.Script) *script.Script {
		return script.UpdateSegment(cur, sectionIdx, segmentIdx, p)
	})
}

func (s *Session) InsertSegmentAfter(sectionIdx, afterIdx int) {
	s.edit(func(cur *script.Script) *script.Script {
		return script.InsertSegmentAfter(cur, sectionIdx, afterIdx)
	})
}

func (s *Session) DeleteSegment(sectionIdx, segmentIdx int) {
	s.edit(func(cur *script.Script) *script.Script {
		return script.DeleteSegment(cur, sectionIdx, segmentIdx)
	})
}

// SaveScript stores the current script under filename.
func (s *Session) SaveScript(ctx context.Context, filename string) (*model.SaveScriptResponse, error) {
	s.mu.Lock()
	sc := s.script.Clone()
	s.mu.Unlock()
	if sc == nil {
		return nil, ErrNoScript
	}

	resp, err := s.deps.Saver.Save(ctx, &model.SaveScriptRequest{Script: sc, Filename: filename})
	if err != nil {
		return nil, fmt.Errorf("failed to save script: %w", err)
	}
	s.log.WithField("file", resp.Filename).Info("script saved")
	return resp, nil
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.epoch++
	h := s.poll
	s.poll = nil
	s.busy = false
	s.mu.Unlock()
	h.Stop()
}
