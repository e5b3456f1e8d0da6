package wizard

import (
	"math"
	"time"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

// Snapshot is an immutable view of a session.
type Snapshot struct {
	ID           string         `json:"id"`
	Step         Step           `json:"step"`
	StepName     string         `json:"stepName"`
	FileName     string         `json:"fileName,omitempty"`
	SourceText   string         `json:"sourceText"`
	ArchiveURL   string         `json:"archiveUrl,omitempty"`
	Grade        model.Grade    `json:"grade"`
	Subject      model.Subject  `json:"subject"`
	Script       *script.Script `json:"script"`
	SegmentCount int            `json:"segmentCount"`
	JobID        string         `json:"jobId,omitempty"`
	Progress     float64        `json:"progress"`
	Percent      int            `json:"percent"`
	Log          []LogEntry     `json:"log"`
	ResultPath   string         `json:"resultPath,omitempty"`
	Busy         bool           `json:"isBusy"`
	Watching     bool           `json:"watching"`
	LastError    *Failure       `json:"lastError"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	// Restored marks a snapshot read back from the session store; it is
	// not backed by a live session.
	Restored bool `json:"restored,omitempty"`
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]LogEntry, len(s.entries))
	copy(entries, s.entries)

	var lastErr *Failure
	if s.lastError != nil {
		f := *s.lastError
		lastErr = &f
	}

	return Snapshot{
		ID:           s.id,
		Step:         s.step,
		StepName:     s.step.String(),
		FileName:     s.fileName,
		SourceText:   s.sourceText,
		ArchiveURL:   s.archiveURL,
		Grade:        s.grade,
		Subject:      s.subject,
		Script:       s.script.Clone(),
		SegmentCount: s.script.Count(),
		JobID:        s.jobID,
		Progress:     s.progress,
		Percent:      int(math.Round(s.progress * 100)),
		Log:          entries,
		ResultPath:   s.resultPath,
		Busy:         s.busy,
		Watching:     s.poll != nil,
		LastError:    lastErr,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}
