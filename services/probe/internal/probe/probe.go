// Package probe loads a stream the way the player does (through the loader
// hook and, optionally, the proxy) and reports the quality menu it would
// show.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/proxyurl"
	"github.com/example/quickwatch/internal/playback"
)

type Options struct {
	URL string
	// ProxyBase routes fetches through an hls-proxy. Empty fetches directly.
	ProxyBase string
	Headers   map[string]string

	SubtitlesURL string
	// CueAt is the playback position sampled for the active subtitle cue.
	CueAt time.Duration
}

type Report struct {
	FetchedURL string                  `json:"fetched_url"`
	Master     bool                    `json:"master"`
	Levels     int                     `json:"levels"`
	Qualities  []playback.QualityLevel `json:"qualities"`

	SubtitleError string `json:"subtitle_error,omitempty"`
	ActiveCue     string `json:"active_cue,omitempty"`
}

// Run fetches opts.URL through next and builds the report.
func Run(ctx context.Context, opts Options, next playback.Loader, log *zap.Logger) (Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var proxy *proxyurl.Builder
	if opts.ProxyBase != "" {
		proxy = proxyurl.New(opts.ProxyBase)
	}
	hook := playback.NewLoaderHook(proxy, opts.Headers, next, log)

	rep := Report{FetchedURL: hook.Rewrite(opts.URL), Qualities: []playback.QualityLevel{}}
	resp, err := hook.Load(ctx, playback.LoadRequest{URL: opts.URL, Kind: playback.ResourceManifest})
	if err != nil {
		return rep, fmt.Errorf("load manifest: %w", err)
	}

	levels, err := playback.ParseMasterPlaylist(bytes.NewReader(resp.Body), opts.URL, hook.Rewrite)
	switch {
	case errors.Is(err, playback.ErrNotMasterPlaylist):
		log.Info("media playlist, no quality menu", zap.String("url", opts.URL))
	case err != nil:
		return rep, err
	default:
		rep.Master = true
		rep.Levels = len(levels)
		rep.Qualities = playback.BuildQualityLevels(levels)
	}

	if opts.SubtitlesURL != "" {
		track := playback.NewSubtitleTrack("probe", "")
		if err := track.Load(ctx, hook, opts.SubtitlesURL); err != nil {
			rep.SubtitleError = err.Error()
		} else if cue, ok := track.ActiveCue(opts.CueAt); ok {
			rep.ActiveCue = cue.Text
		}
	}
	return rep, nil
}
