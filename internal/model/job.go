package model

import "github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"

// RenderRequest is the body of a render job submission.
type RenderRequest struct {
	Conversations    []script.Conversation `json:"conversations"`
	EnableSubtitles  bool                  `json:"enable_subtitles"`
	ConversationMode string                `json:"conversation_mode"`
	Sections         []script.Section      `json:"sections"`
}

// NewRenderRequest builds the duo render payload for s.
func NewRenderRequest(s *script.Script) *RenderRequest {
	return &RenderRequest{
		Conversations:    s.Flatten(),
		EnableSubtitles:  true,
		ConversationMode: script.ModeDuo,
		Sections:         s.Clone().Sections,
	}
}

type RenderStartResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

type JobResult struct {
	VideoPath string `json:"video_path"`
}

// JobStatusResponse is one status report for a render job. Progress is a
// fraction in [0,1].
type JobStatusResponse struct {
	Status   JobStatus  `json:"status"`
	Progress float64    `json:"progress"`
	Message  string     `json:"message,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// VideoPath returns the result locator, if any.
func (r *JobStatusResponse) VideoPath() string {
	if r == nil || r.Result == nil {
		return ""
	}
	return r.Result.VideoPath
}
