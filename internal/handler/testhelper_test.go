package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/client"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/library"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/middleware"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/poll"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
)

const testJWTSecret = "test-secret-for-handlers"

type stubIntake struct{}

func (stubIntake) ExtractText(ctx context.Context, filename string, file io.Reader) (*model.ExtractTextResponse, error) {
	b, _ := io.ReadAll(file)
	if len(b) == 0 {
		return &model.ExtractTextResponse{Filename: filename, Success: false, Message: "ファイルからテキストを抽出できませんでした。"}, nil
	}
	return &model.ExtractTextResponse{Filename: filename, Text: string(b), FileType: "pdf", Success: true}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateScript(ctx context.Context, req *model.GenerateScriptRequest) (*script.Script, error) {
	return testScript(), nil
}

type stubJobs struct {
	mu      sync.Mutex
	submits int
}

func (j *stubJobs) SubmitRender(ctx context.Context, req *model.RenderRequest) (*model.RenderStartResponse, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.submits++
	return &model.RenderStartResponse{TaskID: fmt.Sprintf("task-%d", j.submits), Message: "動画生成を開始しました"}, nil
}

func (j *stubJobs) Status(ctx context.Context, taskID string) (*model.JobStatusResponse, error) {
	return &model.JobStatusResponse{
		Status:   model.JobStatusCompleted,
		Progress: 1,
		Result:   &model.JobResult{VideoPath: "outputs/" + taskID + ".mp4"},
	}, nil
}

// stubStore is the remote script store.
type stubStore struct {
	mu    sync.Mutex
	files map[string]*script.Script
	saved []string
}

func newStubStore() *stubStore {
	return &stubStore{files: map[string]*script.Script{"lesson.json": testScript()}}
}

func (s *stubStore) List(ctx context.Context) ([]model.ScriptFileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.ScriptFileInfo{}
	for name, sc := range s.files {
		out = append(out, model.ScriptFileInfo{Filename: name, Title: sc.Title})
	}
	return out, nil
}

func (s *stubStore) Get(ctx context.Context, filename string) (*script.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.files[filename]
	if !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Detail: "file not found"}
	}
	return sc.Clone(), nil
}

func (s *stubStore) Delete(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[filename]; !ok {
		return &client.APIError{StatusCode: http.StatusNotFound, Detail: "file not found"}
	}
	delete(s.files, filename)
	return nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, filename string, update model.ScriptStatusUpdate) (*model.ScriptFileInfo, error) {
	return &model.ScriptFileInfo{Filename: filename, IsGenerated: update.IsGenerated}, nil
}

func (s *stubStore) Save(ctx context.Context, req *model.SaveScriptRequest) (*model.SaveScriptResponse, error) {
	if req.Script == nil {
		return nil, errors.New("台本データが必要です")
	}
	name := req.Filename
	if name == "" {
		name = "script.json"
	}
	s.mu.Lock()
	s.files[name] = req.Script.Clone()
	s.saved = append(s.saved, name)
	s.mu.Unlock()
	return &model.SaveScriptResponse{Success: true, Filename: name}, nil
}

func testScript() *script.Script {
	return script.Normalized(&script.Script{
		Title: "光合作用",
		Sections: []script.Section{{
			Name:          "導入",
			BackgroundRef: "classroom",
			Segments: []script.Segment{
				{Speaker: script.Zundamon, Text: "光合作用を学ぶのだ"},
				{Speaker: script.Metan, Text: "よろしくね"},
			},
		}},
	})
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	manager *wizard.Manager
	store   *stubStore
	auth    *middleware.AuthMiddleware
}

// setupApp builds the studio routes over stub remotes. Redis is not used,
// so rate limits are off and sessions stay in memory.
func setupApp(t *testing.T, jwtSecret string) *testApp {
	t.Helper()

	log := logging.Discard()
	jobs := &stubJobs{}
	store := newStubStore()
	loop := poll.New(jobs, time.Millisecond, log)

	manager := wizard.NewManager(wizard.Deps{
		Intake:    stubIntake{},
		Generator: stubGenerator{},
		Jobs:      jobs,
		Saver:     store,
		Poll:      loop,
		Log:       log,
	}, nil)
	lib := library.New(store, jobs, loop, library.DirectMarker{Store: store}, log)
	t.Cleanup(func() {
		manager.Close()
		lib.Close()
		loop.StopAll()
	})

	validate := validator.New()
	auth := middleware.NewAuthMiddleware(jwtSecret)

	app := fiber.New()
	Register(app, Routes{
		Wizard:         NewWizardHandler(manager, validate),
		Library:        NewLibraryHandler(lib),
		Health:         NewHealthHandler(nil, fiber.Map{"redis": false}),
		Auth:           NewAuthHandler(auth),
		AuthMiddleware: auth,
		RateLimiter:    middleware.NewRateLimiter(nil),
		Limits:         config.RateLimitConfig{DocumentPerHour: 1, ScriptPerHour: 1, RenderPerHour: 1},
	})

	return &testApp{app: app, manager: manager, store: store, auth: auth}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doUpload posts a multipart form with one file field.
func doUpload(app *fiber.App, path, filename string, content []byte) (*http.Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return app.Test(req, -1)
}

// mustRequest performs a request and fails the test on transport errors.
func mustRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code of an error envelope.
func errorCode(result map[string]interface{}) string {
	e, ok := result["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

// createSession creates a session and returns its id.
func createSession(t *testing.T, ta *testApp) string {
	t.Helper()
	resp := mustRequest(t, ta.app, http.MethodPost, "/api/wizard/sessions", "")
	assertStatus(t, resp, http.StatusCreated)
	id, _ := parseJSON(t, resp)["id"].(string)
	if id == "" {
		t.Fatal("expected session id")
	}
	return id
}
