package playback

import (
	"context"
	"errors"
	"sync"
)

type fakeMedia struct {
	mu       sync.Mutex
	time     float64
	duration float64
	paused   bool
	onceMeta []func()
	plays    int
}

func newFakeMedia(duration float64) *fakeMedia {
	return &fakeMedia{duration: duration, paused: true}
}

func (m *fakeMedia) CurrentTime() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.time }
func (m *fakeMedia) Duration() float64    { m.mu.Lock(); defer m.mu.Unlock(); return m.duration }
func (m *fakeMedia) Paused() bool         { m.mu.Lock(); defer m.mu.Unlock(); return m.paused }
func (m *fakeMedia) Seek(s float64)       { m.mu.Lock(); m.time = s; m.mu.Unlock() }
func (m *fakeMedia) Pause()               { m.mu.Lock(); m.paused = true; m.mu.Unlock() }

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	m.paused = false
	m.plays++
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) OnceLoadedMetadata(fn func()) {
	m.mu.Lock()
	m.onceMeta = append(m.onceMeta, fn)
	m.mu.Unlock()
}

// reload simulates the element dropping its buffer and finishing a new
// metadata load.
func (m *fakeMedia) reload() {
	m.mu.Lock()
	m.time = 0
	m.paused = true
	fns := m.onceMeta
	m.onceMeta = nil
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeEngine struct {
	mu         sync.Mutex
	observer   EngineObserver
	media      *fakeMedia
	source     string
	levels     []int
	startLoads int
	recoveries int
	destroyed  bool
	loader     Loader
	// reloadOnLevel makes SetCurrentLevel behave like a source switch.
	reloadOnLevel bool
}

func (e *fakeEngine) Observe(o EngineObserver) { e.mu.Lock(); e.observer = o; e.mu.Unlock() }

func (e *fakeEngine) AttachMedia(m Media) error {
	fm, ok := m.(*fakeMedia)
	if !ok {
		return errors.New("unsupported media")
	}
	e.mu.Lock()
	e.media = fm
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) LoadSource(url string) error {
	e.mu.Lock()
	e.source = url
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) SetCurrentLevel(i int) {
	e.mu.Lock()
	e.levels = append(e.levels, i)
	media, reload := e.media, e.reloadOnLevel
	e.mu.Unlock()
	if reload && media != nil {
		media.reload()
	}
}

func (e *fakeEngine) StartLoad()         { e.mu.Lock(); e.startLoads++; e.mu.Unlock() }
func (e *fakeEngine) RecoverMediaError() { e.mu.Lock(); e.recoveries++; e.mu.Unlock() }
func (e *fakeEngine) Destroy()           { e.mu.Lock(); e.destroyed = true; e.mu.Unlock() }

func (e *fakeEngine) emitManifest(levels []EngineLevel) { e.observer.OnManifestParsed(levels) }
func (e *fakeEngine) emitError(ev EngineError)         { e.observer.OnError(ev) }

type engineRecorder struct {
	mu      sync.Mutex
	engines []*fakeEngine
	reload  bool
}

func (r *engineRecorder) factory(loader Loader) Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &fakeEngine{loader: loader, reloadOnLevel: r.reload}
	r.engines = append(r.engines, e)
	return e
}

func (r *engineRecorder) last() *fakeEngine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[len(r.engines)-1]
}

type recordingLoader struct {
	mu   sync.Mutex
	urls []string
	resp *LoadResponse
	err  error
}

func (l *recordingLoader) Load(_ context.Context, req LoadRequest) (*LoadResponse, error) {
	l.mu.Lock()
	l.urls = append(l.urls, req.URL)
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.resp != nil {
		return l.resp, nil
	}
	return &LoadResponse{URL: req.URL, StatusCode: 200}, nil
}
