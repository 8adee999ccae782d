package playback

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// SessionConfig wires a Session to its collaborators. Callbacks run outside
// the session lock and may call back into the Session.
type SessionConfig struct {
	NewEngine EngineFactory
	Loader    Loader
	Media     Media
	Log       *zap.Logger

	// OnQualities receives the menu after every manifest parse.
	OnQualities func([]QualityLevel)
	// OnError receives every fatal error after the recovery policy ran.
	OnError func(*Error)
	// OnQualityChange fires after a manual switch was issued.
	OnQualityChange func(index int)
}

// Session owns the engine bound to one media element. Loading a new source
// destroys the previous engine first.
type Session struct {
	mu  sync.Mutex
	cfg SessionConfig
	log *zap.Logger

	engine    Engine
	source    string
	levels    []QualityLevel
	current   int
	recovered map[ErrorKind]bool
	failure   *Error
	closed    bool
}

func NewSession(cfg SessionConfig) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{cfg: cfg, log: log, current: AutoIndex}
}

// Load attaches a fresh engine for url.
func (s *Session) Load(url string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.engine
	engine := s.cfg.NewEngine(s.cfg.Loader)
	s.engine = engine
	s.source = url
	s.levels = []QualityLevel{}
	s.current = AutoIndex
	s.recovered = map[ErrorKind]bool{}
	s.failure = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Destroy()
	}

	engine.Observe(&sessionObserver{s: s, engine: engine})
	if err := engine.AttachMedia(s.cfg.Media); err != nil {
		s.detach(engine)
		return fmt.Errorf("attach media: %w", err)
	}
	if err := engine.LoadSource(url); err != nil {
		s.detach(engine)
		return fmt.Errorf("load source: %w", err)
	}
	s.log.Info("playback: source loaded", zap.String("source", url))
	return nil
}

// detach destroys engine if it is still the active one.
func (s *Session) detach(engine Engine) {
	s.mu.Lock()
	if s.engine == engine {
		s.engine = nil
	}
	s.mu.Unlock()
	engine.Destroy()
}

// Qualities returns the current menu. Empty means the selector is hidden.
func (s *Session) Qualities() []QualityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QualityLevel(nil), s.levels...)
}

// CurrentLevel is the selected engine level, AutoIndex for adaptive.
func (s *Session) CurrentLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Err returns the last fatal error, or nil.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// SelectQuality switches to the level with the given engine index, or to
// adaptive selection for AutoIndex. Position and play state are restored
// once the media reports loaded metadata.
func (s *Session) SelectQuality(index int) error {
	s.mu.Lock()
	engine := s.engine
	if engine == nil {
		s.mu.Unlock()
		return ErrNoSource
	}
	if !hasLevel(s.levels, index) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownLevel, index)
	}
	s.current = index
	media := s.cfg.Media
	s.mu.Unlock()

	position := media.CurrentTime()
	wasPlaying := !media.Paused()
	media.OnceLoadedMetadata(func() {
		if !s.isActive(engine) {
			s.log.Debug("playback: dropping stale quality restore", zap.Int("level", index))
			return
		}
		media.Seek(position)
		if wasPlaying {
			if err := media.Play(); err != nil {
				s.log.Warn("playback: resume after quality switch failed", zap.Error(err))
			}
		}
	})
	engine.SetCurrentLevel(index)

	s.log.Info("playback: quality selected",
		zap.Int("level", index),
		zap.Float64("position", position),
		zap.Bool("playing", wasPlaying),
	)
	if s.cfg.OnQualityChange != nil {
		s.cfg.OnQualityChange(index)
	}
	return nil
}

// isActive reports whether engine is still the one bound to the media.
func (s *Session) isActive(engine Engine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine == engine
}

func hasLevel(levels []QualityLevel, index int) bool {
	for _, l := range levels {
		if l.Index == index {
			return true
		}
	}
	return false
}

// Close destroys the engine. The session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	engine := s.engine
	s.engine = nil
	s.closed = true
	s.mu.Unlock()

	if engine != nil {
		engine.Destroy()
	}
}

func (s *Session) manifestParsed(engine Engine, levels []EngineLevel) {
	s.mu.Lock()
	if s.engine != engine {
		s.mu.Unlock()
		return
	}
	s.levels = BuildQualityLevels(levels)
	menu := append([]QualityLevel(nil), s.levels...)
	s.mu.Unlock()

	s.log.Debug("playback: manifest parsed", zap.Int("levels", len(levels)))
	if s.cfg.OnQualities != nil {
		s.cfg.OnQualities(menu)
	}
}

// handleError applies the recovery policy: one StartLoad for a fatal network
// error, one RecoverMediaError for a fatal media error, teardown for
// anything else or for a repeat of an already recovered kind.
func (s *Session) handleError(engine Engine, ev EngineError) {
	if !ev.Fatal {
		s.log.Debug("playback: non-fatal engine error", zap.Stringer("kind", ev.Kind), zap.String("details", ev.Details))
		return
	}

	s.mu.Lock()
	if s.engine != engine {
		s.mu.Unlock()
		return
	}
	perr := &Error{Kind: ev.Kind, Details: ev.Details}
	if ev.Kind == KindOther || s.recovered[ev.Kind] {
		perr.Terminal = true
		s.engine = nil
	} else {
		s.recovered[ev.Kind] = true
	}
	s.failure = perr
	s.mu.Unlock()

	switch {
	case perr.Terminal:
		s.log.Error("playback: fatal error, giving up", zap.Stringer("kind", ev.Kind), zap.String("details", ev.Details))
		engine.Destroy()
	case ev.Kind == KindNetwork:
		s.log.Warn("playback: fatal network error, reloading", zap.String("details", ev.Details))
		engine.StartLoad()
	case ev.Kind == KindMedia:
		s.log.Warn("playback: fatal media error, recovering", zap.String("details", ev.Details))
		engine.RecoverMediaError()
	}

	if s.cfg.OnError != nil {
		s.cfg.OnError(perr)
	}
}

// sessionObserver pins callbacks to the engine they were registered on so
// late events from a destroyed engine are dropped.
type sessionObserver struct {
	s      *Session
	engine Engine
}

func (o *sessionObserver) OnManifestParsed(levels []EngineLevel) {
	o.s.manifestParsed(o.engine, levels)
}

func (o *sessionObserver) OnError(err EngineError) {
	o.s.handleError(o.engine, err)
}
