package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CreativeStudio-server/framegen"
	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"
	"CreativeStudio-server/routers/api"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu     sync.Mutex
	boards map[string]models.Storyboard
	scenes []models.StoryboardScene
	jobs   map[string]models.Job
	reads  int
}

func newMemStore() *memStore {
	return &memStore{
		boards: map[string]models.Storyboard{"sb-1": {ID: "sb-1", ProjectID: "p-1"}},
		scenes: []models.StoryboardScene{
			{ID: "s1", StoryboardID: "sb-1", SceneNumber: 1, FirstFramePrompt: "dawn", LastFramePrompt: "noon", FirstFrameImageURL: "minio://frames/s1-first.png"},
			{ID: "s2", StoryboardID: "sb-1", SceneNumber: 2, FirstFramePrompt: "dusk"},
		},
		jobs: make(map[string]models.Job),
	}
}

func (m *memStore) GetStoryboard(ctx context.Context, id string) (*models.Storyboard, error) {
	sb, ok := m.boards[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &sb, nil
}

func (m *memStore) ListScenes(ctx context.Context, storyboardID string) ([]models.StoryboardScene, error) {
	return m.scenes, nil
}

func (m *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	j, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &j, nil
}

func (m *memStore) setStatus(id, status, progress string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = status
	j.ResultSummary.Progress = progress
	m.jobs[id] = j
}

type fakeStarter struct {
	req framegen.StartRequest
	err error
}

func (f *fakeStarter) Start(ctx context.Context, req framegen.StartRequest) (*framegen.TaskGroup, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	g := &framegen.TaskGroup{GroupKey: "gk", GroupID: "gid", StoryboardID: req.StoryboardID, ProviderID: "kie"}
	for i, p := range req.Prompts {
		g.Tasks = append(g.Tasks, models.FrameTask{FrameIndex: i, SceneID: p.SceneID, SceneNumber: p.SceneNumber, FrameType: p.FrameType, TaskID: "t", Status: models.FrameStatusQueued})
	}
	return g, nil
}

type fakeQueue struct {
	jobs []string
}

func (q *fakeQueue) EnqueueReconcile(ctx context.Context, jobID string, delay time.Duration) error {
	q.jobs = append(q.jobs, jobID)
	return nil
}

func newTestRouter(store *memStore, starter *fakeStarter, q *fakeQueue) *gin.Engine {
	h := api.NewHandler(store, starter, q, api.Options{MaxRuntime: 2 * time.Minute, PushInterval: 10 * time.Millisecond}, nil)
	return InitRouter(h)
}

func TestStartFrames(t *testing.T) {
	store, starter, q := newMemStore(), &fakeStarter{}, &fakeQueue{}
	r := newTestRouter(store, starter, q)

	body := `{"providerId":"kie","aspectRatio":"16:9","referenceImages":["https://ref/style.png"]}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/api/storyboards/sb-1/frames", strings.NewReader(body)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// s2 没有尾帧 prompt，只生成三个任务
	if len(starter.req.Prompts) != 3 || starter.req.ProviderID != "kie" {
		t.Fatalf("start request = %+v", starter.req)
	}
	last := starter.req.Prompts[1]
	if last.FrameType != models.FrameTypeLast || last.Text != "noon" || len(last.ReferenceImages) != 2 {
		t.Fatalf("last frame prompt = %+v", last)
	}

	var resp struct {
		JobID   string `json:"job_id"`
		GroupID string `json:"group_id"`
		Tasks   int    `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	job, ok := store.jobs[resp.JobID]
	if !ok || job.Status != models.JobStatusPending || job.Payload.ProjectID != "p-1" || job.Payload.MaxRuntimeSeconds != 120 {
		t.Fatalf("job = %+v", job)
	}
	if job.ResultSummary.Progress != "0/3" || resp.Tasks != 3 || resp.GroupID != "gid" {
		t.Fatalf("resp = %+v, summary = %+v", resp, job.ResultSummary)
	}
	if len(q.jobs) != 1 || q.jobs[0] != resp.JobID {
		t.Fatalf("enqueued = %v", q.jobs)
	}
}

func TestStartFramesErrors(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		err  error
		code int
	}{
		{"unknown storyboard", "/v1/api/storyboards/nope/frames", `{}`, nil, http.StatusNotFound},
		{"bad frame type", "/v1/api/storyboards/sb-1/frames", `{"frameTypes":["middle"]}`, nil, http.StatusBadRequest},
		{"no matching scenes", "/v1/api/storyboards/sb-1/frames", `{"sceneNumbers":[9]}`, nil, http.StatusBadRequest},
		{"live mode off", "/v1/api/storyboards/sb-1/frames", `{}`, &framegen.ProviderCreateError{Err: provider.ErrLiveModeDisabled}, http.StatusForbidden},
		{"unknown provider", "/v1/api/storyboards/sb-1/frames", `{"providerId":"x"}`, provider.ErrUnknownProvider, http.StatusBadRequest},
		{"provider down", "/v1/api/storyboards/sb-1/frames", `{}`, &framegen.ProviderCreateError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, q := newMemStore(), &fakeQueue{}
			r := newTestRouter(store, &fakeStarter{err: tc.err}, q)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
			if w.Code != tc.code {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tc.code, w.Body.String())
			}
			if len(store.jobs) != 0 || len(q.jobs) != 0 {
				t.Fatal("job created on failed start")
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	store := newMemStore()
	store.jobs["job-1"] = models.Job{ID: "job-1", Status: models.JobStatusRunning}
	r := newTestRouter(store, &fakeStarter{}, &fakeQueue{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/api/jobs/job-1", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"RUNNING"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/api/jobs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestJobProgressWebSocket(t *testing.T) {
	store := newMemStore()
	store.jobs["job-1"] = models.Job{ID: "job-1", Status: models.JobStatusPending, ResultSummary: models.ResultSummary{Progress: "0/2"}}
	ts := httptest.NewServer(newTestRouter(store, &fakeStarter{}, &fakeQueue{}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/jobs/job-1/wss", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first models.Job
	if err := conn.ReadJSON(&first); err != nil || first.ResultSummary.Progress != "0/2" {
		t.Fatalf("first = %+v, %v", first, err)
	}

	store.setStatus("job-1", models.JobStatusCompleted, "2/2")
	var final models.Job
	if err := conn.ReadJSON(&final); err != nil {
		t.Fatalf("read final: %v", err)
	}
	if final.Status != models.JobStatusCompleted || final.ResultSummary.Progress != "2/2" {
		t.Fatalf("final = %+v", final)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after terminal status")
	}
}
