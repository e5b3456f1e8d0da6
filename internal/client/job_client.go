package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
)

// JobClient submits render jobs and reads their status
type JobClient struct {
	remote *Remote
}

func NewJobClient(remote *Remote) *JobClient {
	return &JobClient{remote: remote}
}

// SubmitRender starts a render job and returns its task id
func (c *JobClient) SubmitRender(ctx context.Context, req *model.RenderRequest) (*model.RenderStartResponse, error) {
	var result model.RenderStartResponse
	if err := c.remote.post(ctx, "/videos/generate", req, &result); err != nil {
		return nil, err
	}
	if result.TaskID == "" {
		return nil, errors.New("backend returned no task id")
	}
	return &result, nil
}

// Status reads the status of a render job. Progress is normalized to [0,1].
func (c *JobClient) Status(ctx context.Context, taskID string) (*model.JobStatusResponse, error) {
	var result model.JobStatusResponse
	if err := c.remote.get(ctx, fmt.Sprintf("/videos/status/%s", escape(taskID)), &result); err != nil {
		return nil, err
	}
	result.Progress = NormalizeProgress(result.Progress)
	return &result, nil
}

// NormalizeProgress maps a reported value onto [0,1]. Values above 1 are
// read as percentages.
func NormalizeProgress(p float64) float64 {
	if p > 1 {
		p = p / 100
	}
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
