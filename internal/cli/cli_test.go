package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dayline/internal/store"
)

// run executes the command tree against a config and store in dir.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DAYLINE_STORE", filepath.Join(dir, "store.yaml"))
	t.Setenv("DAYLINE_CACHE_DIR", filepath.Join(dir, "cache"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", filepath.Join(dir, "config.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func createEvent(t *testing.T, dir string) string {
	t.Helper()
	if _, err := run(t, dir, "", "event", "create", "--name", "Smith / Jones", "--start", "2025-06-13", "--end", "2025-06-15"); err != nil {
		t.Fatalf("event create: %v", err)
	}
	st, err := store.Open(filepath.Join(dir, "store.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	events := st.ListEvents()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	return events[0].ID
}

func TestEventCreateAndList(t *testing.T) {
	dir := t.TempDir()
	id := createEvent(t, dir)

	out, err := run(t, dir, "", "event", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "2025-06-13..2025-06-15") {
		t.Fatalf("list output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	if _, err := run(t, dir, "", "event", "create", "--name", "x", "--start", "tomorrow"); err == nil {
		t.Fatal("expected invalid start date to fail")
	}
}

func TestImportTextThenLayoutJSON(t *testing.T) {
	dir := t.TempDir()
	id := createEvent(t, dir)

	doc := "9:00 AM - 10:00 AM Hair\n9:30 AM - 10:30 AM Photos\nLunch: 12:00 PM\n"
	out, err := run(t, dir, doc, "import", "text", id, "2025-06-14", "-")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "3 of 3") {
		t.Fatalf("import output = %q", out)
	}

	out, err = run(t, dir, "", "layout", id, "2025-06-14", "--json", "--pph", "120")
	if err != nil {
		t.Fatal(err)
	}
	var rows []layoutRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	byTitle := map[string]layoutRow{}
	for _, r := range rows {
		byTitle[r.Entry.Title] = r
	}
	if byTitle["Hair"].Block.WidthPercent != 50 || byTitle["Photos"].Block.LeftPercent != 50 || byTitle["Lunch"].Block.WidthPercent != 100 {
		t.Errorf("blocks = %+v", byTitle)
	}
	if h := byTitle["Lunch"].Block.Height; math.Abs(h-116) > 1e-9 {
		t.Errorf("lunch height = %v, want 116 (58 min at 120 px/h)", h)
	}

	out, err = run(t, dir, "", "layout", id, "2025-06-14", "--width", "60")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Photos") || !strings.Contains(out, "09:30-10:30") {
		t.Errorf("text layout = %q", out)
	}
}

func TestLayoutWholeEvent(t *testing.T) {
	dir := t.TempDir()
	id := createEvent(t, dir)

	if _, err := run(t, dir, "9:00 AM - 10:00 AM Hair\n9:30 AM - 10:30 AM Photos\n", "import", "text", id, "2025-06-14", "-"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, dir, "6:00 PM - 8:00 PM Rehearsal dinner\n", "import", "text", id, "2025-06-13", "-"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dir, "", "layout", id, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var rows []layoutRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	for _, r := range rows {
		want := 50.0
		if r.Entry.DayKey == "2025-06-13" {
			want = 100
		}
		if r.Block.WidthPercent != want {
			t.Errorf("%s on %s width = %v, want %v", r.Entry.Title, r.Entry.DayKey, r.Block.WidthPercent, want)
		}
	}

	out, err = run(t, dir, "", "layout", id)
	if err != nil {
		t.Fatal(err)
	}
	first, second := strings.Index(out, "2025-06-13"), strings.Index(out, "2025-06-14")
	if first < 0 || second < first || !strings.Contains(out, "Rehearsal dinner") {
		t.Errorf("text layout = %q", out)
	}
}

func TestImportICSAndExport(t *testing.T) {
	dir := t.TempDir()
	id := createEvent(t, dir)

	cal := strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//caterer//EN
BEGIN:VEVENT
UID:dinner-1
DTSTAMP:20250601T000000Z
DTSTART:20250614T180000Z
DTEND:20250614T200000Z
SUMMARY:Dinner service
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")
	path := filepath.Join(dir, "caterer.ics")
	if err := os.WriteFile(path, []byte(cal), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dir, "", "import", "ics", id, path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "source import:caterer") {
		t.Fatalf("import output = %q", out)
	}
	// Re-importing the same file replaces the source's entries.
	if _, err := run(t, dir, "", "import", "ics", id, path); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, dir, "", "export", id)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "BEGIN:VEVENT") != 1 || !strings.Contains(out, "SUMMARY:Dinner service") {
		t.Fatalf("export = %q", out)
	}
}

func TestLayoutUnknownEvent(t *testing.T) {
	if _, err := run(t, t.TempDir(), "", "layout", "nope", "2025-06-14"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, Version) {
		t.Fatalf("version output = %q", out)
	}
}
