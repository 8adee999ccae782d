package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

func Routes(r chi.Router, d Deps) {
	r.Options(proxyurl.PlaylistPath, Preflight())
	r.Options(proxyurl.SegmentPath, Preflight())
	r.Get(proxyurl.PlaylistPath, Playlist(d))
	r.Get(proxyurl.SegmentPath, Segment(d))
	r.Head(proxyurl.SegmentPath, Segment(d))
	r.Get("/debug/upstreams", Upstreams(d.Upstream))
}
