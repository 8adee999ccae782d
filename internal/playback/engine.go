package playback

// EngineLevel is one rendition as reported by the engine after parsing a
// master playlist. Zero Width/Height/Bitrate means unknown.
type EngineLevel struct {
	Width   int
	Height  int
	Bitrate int
	URL     string
}

// EngineError is a raw error event from the engine.
type EngineError struct {
	Kind    ErrorKind
	Fatal   bool
	Details string
}

// EngineObserver receives engine lifecycle events. Engines may call it from
// their own goroutines.
type EngineObserver interface {
	OnManifestParsed(levels []EngineLevel)
	OnError(err EngineError)
}

// Engine is an adaptive streaming engine bound to one source.
type Engine interface {
	Observe(o EngineObserver)
	AttachMedia(m Media) error
	LoadSource(url string) error
	// SetCurrentLevel pins a level; -1 returns to adaptive selection.
	SetCurrentLevel(index int)
	StartLoad()
	RecoverMediaError()
	// Destroy releases the loader and aborts in-flight requests.
	Destroy()
}

// EngineFactory builds an engine whose fetches all go through loader.
type EngineFactory func(loader Loader) Engine

// Media is the element the engine renders into.
type Media interface {
	CurrentTime() float64
	Duration() float64
	Paused() bool
	Seek(seconds float64)
	Play() error
	Pause()
	// OnceLoadedMetadata runs fn the next time metadata finishes loading.
	OnceLoadedMetadata(fn func())
}
