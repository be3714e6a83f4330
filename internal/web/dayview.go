package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"dayline/internal/capture"
	appLog "dayline/internal/log"
	"dayline/internal/model"
)

// dayTemplate draws the day as absolutely positioned blocks over an hour
// grid. Capture waits for data-ready on the root element.
var dayTemplate = template.Must(template.New("day").Funcs(template.FuncMap{
	"num": func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Event.Name}} · {{.Layout.Day}}</title>
<style>
body { margin: 0; font-family: system-ui, sans-serif; background: #fff; color: #222; }
header { padding: 12px 16px; border-bottom: 1px solid #ddd; }
header h1 { margin: 0; font-size: 18px; }
header p { margin: 2px 0 0; color: #777; font-size: 13px; }
.day { position: relative; margin-left: 56px; margin-right: 8px; }
.hour { position: absolute; left: -56px; right: 0; border-top: 1px solid #eee; font-size: 11px; color: #999; }
.hour span { display: inline-block; width: 48px; text-align: right; }
.block { position: absolute; box-sizing: border-box; padding: 4px 6px; border-radius: 4px; overflow: hidden;
  font-size: 12px; border-left: 4px solid; background: #f4f6ff; }
.block b { display: block; }
.block small { color: #555; }
</style>
</head>
<body>
<header>
<h1>{{.Event.Name}}</h1>
<p>{{.Layout.Day}}{{if .Event.Timezone}} · {{.Event.Timezone}}{{end}} · {{len .Layout.Items}} items</p>
</header>
<div class="day" data-ready="true" style="height: {{num .Layout.Height}}px">
{{- range .Hours}}
<div class="hour" style="top: {{num .Top}}px"><span>{{.Label}}</span></div>
{{- end}}
{{- range .Blocks}}
<div class="block" id="entry-{{.Item.Entry.ID}}" data-column="{{.Item.Block.Column}}" data-columns="{{.Item.Block.Columns}}"
  style="top: {{num .Item.Block.Top}}px; height: {{num .Item.Block.Height}}px; left: {{num .Item.Block.LeftPercent}}%; width: {{num .Item.Block.WidthPercent}}%; border-color: {{.Color}}">
<b>{{.Item.Entry.Title}}</b>
<small>{{.Item.Start}}–{{.Item.End}}{{if .Item.Entry.Location}} · {{.Item.Entry.Location}}{{end}}</small>
</div>
{{- end}}
</div>
</body>
</html>
`))

const defaultBlockColor = "#5b6ee1"

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

type hourMark struct {
	Label string
	Top   float64
}

type viewBlock struct {
	Item  layoutItem
	Color string
}

type dayViewData struct {
	Event  model.Event
	Layout layoutResponse
	Hours  []hourMark
	Blocks []viewBlock
}

func blockColor(c string) string {
	if colorRe.MatchString(c) {
		return c
	}
	return defaultBlockColor
}

func (s *Server) renderDay(ev model.Event, layout layoutResponse) ([]byte, error) {
	data := dayViewData{Event: ev, Layout: layout}
	for h := 0; h < 24; h++ {
		data.Hours = append(data.Hours, hourMark{
			Label: fmt.Sprintf("%02d:00", h),
			Top:   float64(h) * layout.PixelsPerHour,
		})
	}
	for _, it := range layout.Items {
		data.Blocks = append(data.Blocks, viewBlock{Item: it, Color: blockColor(it.Entry.Color)})
	}

	var buf bytes.Buffer
	if err := dayTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleDayView serves the printable HTML day view.
//
// GET /events/{id}/days/{day}?pph=80
func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	ev, day, ok := s.eventDay(w, r)
	if !ok {
		return
	}
	layout, err := s.dayLayout(ev.ID, day, s.pixelsPerHour(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	page, err := s.renderDay(ev, layout)
	if err != nil {
		appLog.Error("day view render failed", err, "event", ev.ID, "day", day)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handlePreview serves a PNG of the day view, rendering it with headless
// Chromium on first request. Files are keyed by store revision, so any
// change produces a fresh capture.
//
// GET /events/{id}/days/{day}/preview.png?pph=80
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ev, day, ok := s.eventDay(w, r)
	if !ok {
		return
	}
	pph := s.pixelsPerHour(r)
	rev := s.store.Revision()
	prefix := fmt.Sprintf("%s_%s_%s", ev.ID, day, strconv.FormatFloat(pph, 'f', -1, 64))
	path := filepath.Join(s.previewDir(), fmt.Sprintf("%s_r%d.png", prefix, rev))

	s.previewMu.Lock()
	defer s.previewMu.Unlock()

	if _, err := os.Stat(path); err == nil {
		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, path)
		return
	}

	opts := capture.CaptureOptions{
		URL:        s.dayViewURL(ev.ID, day, pph),
		OutputPath: path,
	}
	png, err := s.capture(r.Context(), opts)
	if err != nil {
		appLog.Error("preview capture failed", err, "event", ev.ID, "day", day)
		writeError(w, http.StatusBadGateway, "preview capture failed")
		return
	}
	appLog.Info("preview captured", "event", ev.ID, "day", day, "bytes", len(png))
	s.prunePreviews(prefix, path)
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// prunePreviews removes captures of older revisions for the same view.
func (s *Server) prunePreviews(prefix, keep string) {
	old, err := filepath.Glob(filepath.Join(s.previewDir(), prefix+"_r*.png"))
	if err != nil {
		return
	}
	for _, p := range old {
		if p == keep {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			appLog.Warn("preview prune failed", "path", p, "err", err)
		}
	}
}

func (s *Server) previewDir() string {
	dir := "./cache"
	if s.cfg != nil && s.cfg.CacheDir != "" {
		dir = s.cfg.CacheDir
	}
	return filepath.Join(dir, "previews")
}

// dayViewURL is the loopback URL Chromium loads. Wildcard listen hosts
// are replaced with 127.0.0.1; basic auth credentials ride in the URL.
func (s *Server) dayViewURL(eventID, day string, pph float64) string {
	host, port, err := net.SplitHostPort(s.cfg.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, port),
		Path:     "/events/" + url.PathEscape(eventID) + "/days/" + day,
		RawQuery: url.Values{"pph": {strconv.FormatFloat(pph, 'f', -1, 64)}}.Encode(),
	}
	if s.basicAuthEnabled() {
		u.User = url.UserPassword(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password)
	}
	return u.String()
}
