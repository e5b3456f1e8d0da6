package client

import (
	"context"
	"fmt"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
)

// ScriptStoreClient is CRUD over named script documents held by the backend
type ScriptStoreClient struct {
	remote *Remote
}

func NewScriptStoreClient(remote *Remote) *ScriptStoreClient {
	return &ScriptStoreClient{remote: remote}
}

func (c *ScriptStoreClient) List(ctx context.Context) ([]model.ScriptFileInfo, error) {
	var result []model.ScriptFileInfo
	if err := c.remote.get(ctx, "/videos/json-files", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *ScriptStoreClient) Get(ctx context.Context, filename string) (*script.Script, error) {
	var result script.Script
	if err := c.remote.get(ctx, fmt.Sprintf("/videos/json-files/%s", escape(filename)), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ScriptStoreClient) UpdateStatus(ctx context.Context, filename string, update model.ScriptStatusUpdate) (*model.ScriptFileInfo, error) {
	var result model.ScriptFileInfo
	if err := c.remote.patch(ctx, fmt.Sprintf("/videos/json-files/%s/status", escape(filename)), update, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *ScriptStoreClient) Delete(ctx context.Context, filename string) error {
	return c.remote.delete(ctx, fmt.Sprintf("/videos/json-files/%s", escape(filename)), nil)
}

// Save persists a script under filename; an empty filename lets the backend
// pick one.
func (c *ScriptStoreClient) Save(ctx context.Context, req *model.SaveScriptRequest) (*model.SaveScriptResponse, error) {
	var result model.SaveScriptResponse
	if err := c.remote.post(ctx, "/scripts/save", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
