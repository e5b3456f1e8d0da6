package client

import (
	"context"
	"errors"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

// GeneratorClient asks the backend to write a full script from source text
type GeneratorClient struct {
	remote *Remote
}

func NewGeneratorClient(remote *Remote) *GeneratorClient {
	return &GeneratorClient{remote: remote}
}

// GenerateScript returns the generated script. An answer without a script is
// an error.
func (c *GeneratorClient) GenerateScript(ctx context.Context, req *model.GenerateScriptRequest) (*script.Script, error) {
	var result model.GenerateScriptResponse
	if err := c.remote.post(ctx, "/scripts/generate-full", req, &result); err != nil {
		return nil, err
	}
	if result.Script == nil {
		return nil, errors.New("backend returned no script")
	}
	return result.Script, nil
}
