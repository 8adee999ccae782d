package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astisub"
)

// SubtitleNoticeTTL is how long a subtitle error notice stays visible.
const SubtitleNoticeTTL = 3 * time.Second

// Cue is one timed subtitle line.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// ParseSubtitles reads WebVTT or SRT. An empty format sniffs the WEBVTT
// header.
func ParseSubtitles(r io.Reader, format string) ([]Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if format == "" {
		format = "srt"
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("WEBVTT")) {
			format = "vtt"
		}
	}

	var subs *astisub.Subtitles
	switch format {
	case "vtt", "webvtt":
		subs, err = astisub.ReadFromWebVTT(bytes.NewReader(data))
	case "srt":
		subs, err = astisub.ReadFromSRT(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported subtitle format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s subtitles: %w", format, err)
	}

	cues := make([]Cue, 0, len(subs.Items))
	for _, item := range subs.Items {
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			if s := strings.TrimSpace(l.String()); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) == 0 {
			continue
		}
		cues = append(cues, Cue{Start: item.StartAt, End: item.EndAt, Text: strings.Join(lines, "\n")})
	}
	return cues, nil
}

// SubtitleTrack holds the cues of the selected subtitle and the viewer's sync
// offset. A failed load leaves a notice that expires after SubtitleNoticeTTL
// and never touches playback.
type SubtitleTrack struct {
	Label    string
	Language string

	mu          sync.RWMutex
	cues        []Cue
	offset      time.Duration
	notice      string
	noticeUntil time.Time
	now         func() time.Time
}

func NewSubtitleTrack(label, language string) *SubtitleTrack {
	return &SubtitleTrack{Label: label, Language: language, now: time.Now}
}

// Load fetches and parses url through loader. On failure the previous cues
// are kept and ErrSubtitleFetch is returned.
func (t *SubtitleTrack) Load(ctx context.Context, loader Loader, url string) error {
	resp, err := loader.Load(ctx, LoadRequest{URL: url, Kind: ResourcePlaylist})
	if err != nil {
		return t.fail(fmt.Errorf("%w: %v", ErrSubtitleFetch, err))
	}
	format := ""
	switch {
	case strings.Contains(resp.ContentType, "vtt"), strings.HasSuffix(strings.ToLower(url), ".vtt"):
		format = "vtt"
	case strings.HasSuffix(strings.ToLower(url), ".srt"):
		format = "srt"
	}
	cues, err := ParseSubtitles(bytes.NewReader(resp.Body), format)
	if err != nil {
		return t.fail(fmt.Errorf("%w: %v", ErrSubtitleFetch, err))
	}
	t.SetCues(cues)
	return nil
}

func (t *SubtitleTrack) fail(err error) error {
	t.mu.Lock()
	t.notice = "Failed to load subtitles"
	t.noticeUntil = t.now().Add(SubtitleNoticeTTL)
	t.mu.Unlock()
	return err
}

func (t *SubtitleTrack) SetCues(cues []Cue) {
	t.mu.Lock()
	t.cues = append([]Cue(nil), cues...)
	t.mu.Unlock()
}

// SetOffset shifts all cues; positive values show them later.
func (t *SubtitleTrack) SetOffset(d time.Duration) {
	t.mu.Lock()
	t.offset = d
	t.mu.Unlock()
}

// ActiveCue returns the cue on screen at position, if any.
func (t *SubtitleTrack) ActiveCue(position time.Duration) (Cue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	at := position - t.offset
	for _, c := range t.cues {
		if at >= c.Start && at <= c.End {
			return c, true
		}
	}
	return Cue{}, false
}

// Notice returns the error notice while it is still visible.
func (t *SubtitleTrack) Notice() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.notice == "" || !t.now().Before(t.noticeUntil) {
		return "", false
	}
	return t.notice, true
}
