package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
)

// IntakeClient sends documents to the text extraction endpoint
type IntakeClient struct {
	remote *Remote
}

func NewIntakeClient(remote *Remote) *IntakeClient {
	return &IntakeClient{remote: remote}
}

// ExtractText uploads a document as multipart field "file" and returns the
// extracted text. A 2xx answer with success=false is returned as is.
func (c *IntakeClient) ExtractText(ctx context.Context, filename string, file io.Reader) (*model.ExtractTextResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy document: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remote.baseURL+"/upload/extract-text", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result model.ExtractTextResponse
	if err := c.remote.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
