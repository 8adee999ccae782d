package playback

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

// AutoIndex selects adaptive bitrate.
const AutoIndex = -1

var ErrNotMasterPlaylist = errors.New("not a master playlist")

// QualityLevel is one entry of the quality menu.
type QualityLevel struct {
	Index       int    `json:"index"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	BitrateBps  int    `json:"bitrate_bps,omitempty"`
	DisplayName string `json:"display_name"`
	SourceURL   string `json:"source_url,omitempty"`
}

func (q QualityLevel) IsAuto() bool { return q.Index == AutoIndex }

// BuildQualityLevels turns engine levels into the menu: highest first, Auto
// on top. With fewer than two levels there is nothing to choose and the
// result is empty.
func BuildQualityLevels(levels []EngineLevel) []QualityLevel {
	if len(levels) <= 1 {
		return []QualityLevel{}
	}

	out := make([]QualityLevel, 0, len(levels)+1)
	for i, l := range levels {
		out = append(out, QualityLevel{
			Index:       i,
			Width:       l.Width,
			Height:      l.Height,
			BitrateBps:  l.Bitrate,
			DisplayName: displayName(i, l),
			SourceURL:   l.URL,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].BitrateBps > out[j].BitrateBps
	})
	return append([]QualityLevel{{Index: AutoIndex, DisplayName: "Auto"}}, out...)
}

func displayName(i int, l EngineLevel) string {
	switch {
	case l.Height > 0:
		return strconv.Itoa(l.Height) + "p"
	case l.Bitrate > 0:
		return strconv.Itoa(l.Bitrate/1000) + " kbps"
	default:
		return "Level " + strconv.Itoa(i+1)
	}
}

// ParseMasterPlaylist reads the variants of a master playlist. Relative
// variant URIs are resolved against playlistURL; rewrite, when set, maps
// each resolved URI (the loader hook passes its Rewrite here).
func ParseMasterPlaylist(r io.Reader, playlistURL string, rewrite func(string) string) ([]EngineLevel, error) {
	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(r), false)
	if err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, ErrNotMasterPlaylist
	}
	master := p.(*m3u8.MasterPlaylist)

	levels := make([]EngineLevel, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || strings.TrimSpace(v.URI) == "" || v.Iframe {
			continue
		}
		uri, err := proxyurl.Resolve(playlistURL, v.URI)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.URI, err)
		}
		if rewrite != nil {
			uri = rewrite(uri)
		}
		w, h := parseResolution(v.Resolution)
		levels = append(levels, EngineLevel{Width: w, Height: h, Bitrate: int(v.Bandwidth), URL: uri})
	}
	return levels, nil
}

func parseResolution(s string) (int, int) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}
