package model

import "github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"

// ExtractTextResponse is returned by the document extraction service.
type ExtractTextResponse struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	FileType string `json:"file_type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

type GenerateScriptRequest struct {
	InputText string `json:"input_text"`
}

type GenerateScriptResponse struct {
	Script *script.Script `json:"script"`
}

// ScriptFileInfo describes a script document held by the script store.
type ScriptFileInfo struct {
	Filename    string `json:"filename"`
	Title       string `json:"title,omitempty"`
	IsGenerated bool   `json:"is_generated"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type ScriptStatusUpdate struct {
	IsGenerated bool `json:"is_generated"`
}

type SaveScriptRequest struct {
	Script   *script.Script `json:"script"`
	Filename string         `json:"filename,omitempty"`
}

type SaveScriptResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}
