package framegen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CreativeStudio-server/models"
	"CreativeStudio-server/provider"
)

type fakeProvider struct {
	mu      sync.Mutex
	results map[string]*provider.TaskResult
	errs    map[string]error
	calls   map[string]int
	created []provider.CreateInput
	failAt  int
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: make(map[string]*provider.TaskResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeProvider) CreateTask(ctx context.Context, in provider.CreateInput) (*provider.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if f.failAt > 0 && len(f.created) == f.failAt {
		return nil, errors.New("quota exceeded")
	}
	return &provider.CreateResult{TaskID: fmt.Sprintf("task-%d", len(f.created)), HTTPStatus: 200}, nil
}

func (f *fakeProvider) GetTask(ctx context.Context, taskID string) (*provider.TaskResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[taskID]++
	res, err := f.results[taskID], f.errs[taskID]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &provider.TaskResult{Status: models.FrameStatusQueued}, nil
	}
	cp := *res
	return &cp, nil
}

func (f *fakeProvider) callCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[taskID]
}

func newFakeRegistry(p provider.Provider) *provider.Registry {
	r := provider.NewRegistry("fake")
	r.Register("fake", p)
	return r
}

type memStore struct {
	mu          sync.Mutex
	jobs        map[string]models.Job
	storyboards map[string]models.Storyboard
	scenes      []models.StoryboardScene
	commitErr   error
	commits     int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:        make(map[string]models.Job),
		storyboards: make(map[string]models.Storyboard),
	}
}

func cloneJob(j models.Job) models.Job {
	j.Payload.Tasks = append([]models.FrameTask(nil), j.Payload.Tasks...)
	j.ResultSummary.Images = append([]models.FrameImage(nil), j.ResultSummary.Images...)
	return j
}

func (s *memStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := cloneJob(j)
	return &cp, nil
}

func (s *memStore) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (s *memStore) GetStoryboard(ctx context.Context, id string) (*models.Storyboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sb, ok := s.storyboards[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &sb, nil
}

func (s *memStore) ListScenes(ctx context.Context, storyboardID string) ([]models.StoryboardScene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StoryboardScene
	for _, sc := range s.scenes {
		if sc.StoryboardID == storyboardID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *memStore) CommitFrames(ctx context.Context, job *models.Job, storyboardID string, updates []models.SceneUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	for _, u := range updates {
		for i := range s.scenes {
			sc := &s.scenes[i]
			if sc.ID != u.SceneID || sc.StoryboardID != storyboardID {
				continue
			}
			if u.FirstFrameImageURL != nil {
				sc.FirstFrameImageURL = *u.FirstFrameImageURL
			}
			if u.LastFrameImageURL != nil {
				sc.LastFrameImageURL = *u.LastFrameImageURL
			}
			sc.Status = u.Status
			sc.Metadata = u.Metadata
		}
	}
	if job != nil {
		s.jobs[job.ID] = cloneJob(*job)
	}
	return nil
}

func (s *memStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneJob(s.jobs[id])
}

func (s *memStore) scene(id string) models.StoryboardScene {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.scenes {
		if sc.ID == id {
			return sc
		}
	}
	return models.StoryboardScene{}
}

type memObjects struct {
	mu   sync.Mutex
	puts map[string]string
	err  error
}

func (m *memObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = make(map[string]string)
	}
	m.puts[key] = contentType
	return "https://storage.example.com/frames/" + key, nil
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	b, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: 404", url)
	}
	return b, nil
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
