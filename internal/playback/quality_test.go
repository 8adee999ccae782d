package playback

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
https://other.example/1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
../720/index.m3u8
`

func TestParseMasterPlaylist(t *testing.T) {
	levels, err := ParseMasterPlaylist(strings.NewReader(masterPlaylist), "https://cdn.example.com/show/ep1/master.m3u8", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if levels[0].Height != 360 || levels[0].Width != 640 || levels[0].Bitrate != 800000 {
		t.Fatalf("unexpected first level %+v", levels[0])
	}
	if levels[0].URL != "https://cdn.example.com/show/ep1/360/index.m3u8" {
		t.Fatalf("relative URI not resolved: %s", levels[0].URL)
	}
	if levels[1].URL != "https://other.example/1080/index.m3u8" {
		t.Fatalf("absolute URI changed: %s", levels[1].URL)
	}
	if levels[2].URL != "https://cdn.example.com/show/720/index.m3u8" {
		t.Fatalf("parent-relative URI not resolved: %s", levels[2].URL)
	}
}

func TestParseMasterPlaylist_RewritesThroughProxy(t *testing.T) {
	hook := NewLoaderHook(proxyurl.New(testProxyBase), nil, &recordingLoader{}, nil)
	levels, err := ParseMasterPlaylist(strings.NewReader(masterPlaylist), "https://cdn.example.com/master.m3u8", hook.Rewrite)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, l := range levels {
		if !strings.HasPrefix(l.URL, testProxyBase+"/m3u8-proxy?") {
			t.Fatalf("variant not proxied: %s", l.URL)
		}
	}

	menu := BuildQualityLevels(levels)
	if menu[0].DisplayName != "Auto" || menu[1].DisplayName != "1080p" || menu[3].DisplayName != "360p" {
		t.Fatalf("unexpected menu %+v", menu)
	}
}

func TestParseMasterPlaylist_MediaPlaylist(t *testing.T) {
	media := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXT-X-ENDLIST\n"
	_, err := ParseMasterPlaylist(strings.NewReader(media), "https://cdn.example.com/index.m3u8", nil)
	if !errors.Is(err, ErrNotMasterPlaylist) {
		t.Fatalf("expected ErrNotMasterPlaylist, got %v", err)
	}
}

func TestBuildQualityLevels_Names(t *testing.T) {
	menu := BuildQualityLevels([]EngineLevel{
		{Bitrate: 900_000},
		{},
		{Height: 720},
	})
	names := []string{menu[0].DisplayName, menu[1].DisplayName, menu[2].DisplayName, menu[3].DisplayName}
	want := []string{"Auto", "720p", "900 kbps", "Level 2"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if !menu[0].IsAuto() || menu[1].IsAuto() {
		t.Fatal("only the first entry is Auto")
	}
}

func TestBuildQualityLevels_Empty(t *testing.T) {
	if got := BuildQualityLevels(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil menu, got %v", got)
	}
}
