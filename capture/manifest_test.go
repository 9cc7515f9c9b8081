package capture

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"memfetch/process"
	"memfetch/process/memory_map"
)

func testManifest(t *testing.T) (*Manifest, []Entry) {
	anon, err := memory_map.ParseLine("00001000-00002000 rw-p 00000000 00:00 0")
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := memory_map.ParseLine("00003000-00004000 r--p 00000000 08:01 42 /lib/x")
	if err != nil {
		t.Fatal(err)
	}
	mapped.Index = 1

	m := &Manifest{
		PID:        7,
		Executable: "/bin/cat",
		Date:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	entries := []Entry{
		{Region: anon, File: "mem-000.bin", Outcome: capturedOutcome(StreamedCopy, 0x1000)},
		{Region: mapped, Outcome: skippedOutcome("mapped from /lib/x")},
	}
	return m, entries
}

func TestManifestText(t *testing.T) {
	m, entries := testManifest(t)
	var buf bytes.Buffer
	mw := NewManifestWriter(m, &buf, "test", FormatText, true)

	if err := mw.Begin(); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := mw.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Finish(nil); err != nil {
		t.Fatal(err)
	}

	want := "# Memory image captured by memfetch\n" +
		"# PID 7, declared executable: /bin/cat\n" +
		"# Date: Fri Mar  1 12:00:00 2024\n" +
		"\n" +
		"[000] mem-000.bin:\n" +
		"     Memory range 0x00001000 to 0x00002000 (4096 bytes)\n" +
		"     captured (streamed-copy, 4096 bytes)\n" +
		"     00001000-00002000 rw-p 00000000 00:00 0\n" +
		"\n" +
		"[001] skipped map at 0x00003000 (4096 bytes):\n" +
		"     Reason: mapped from /lib/x\n" +
		"\n" +
		"# End of file.\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
	if m.Captured() != 1 || m.Skipped() != 1 {
		t.Errorf("captured %d skipped %d", m.Captured(), m.Skipped())
	}
}

func TestManifestTextUnframed(t *testing.T) {
	m, entries := testManifest(t)
	var buf bytes.Buffer
	mw := NewManifestWriter(m, &buf, "standard output", FormatText, false)

	mw.Begin()
	mw.Append(entries[0])
	mw.Finish(errors.New("boom"))

	if strings.Contains(buf.String(), "#") || strings.Contains(buf.String(), "**") {
		t.Errorf("unframed manifest has a header or trailer:\n%s", buf.String())
	}
	if !strings.HasPrefix(buf.String(), "[000] mem-000.bin:\n") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestManifestErrorTrailer(t *testing.T) {
	m, _ := testManifest(t)
	var buf bytes.Buffer
	mw := NewManifestWriter(m, &buf, "test", FormatText, true)

	mw.Begin()
	if err := mw.Finish(errors.New("disk full")); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "** An error occurred while generating this file.\n** Error message: disk full\n") {
		t.Errorf("missing error trailer:\n%s", buf.String())
	}
}

func TestManifestJSONTrailer(t *testing.T) {
	m, entries := testManifest(t)
	var buf bytes.Buffer
	mw := NewManifestWriter(m, &buf, "test", FormatJSON, false)

	mw.Begin()
	mw.Append(entries[0])
	mw.Append(entries[1])
	mw.Finish(errors.New("disk full"))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != `{"pid":7,"executable":"/bin/cat","date":"2024-03-01T12:00:00Z"}` {
		t.Errorf("header %s", lines[0])
	}
	if lines[2] != `{"index":1,"kind":"map","start":"0x00003000","end":"0x00004000","length":4096,"perms":"r--p","path":"/lib/x","outcome":"skipped","reason":"mapped from /lib/x"}` {
		t.Errorf("entry %s", lines[2])
	}
	if lines[3] != `{"complete":false,"captured":1,"skipped":1,"error":"disk full"}` {
		t.Errorf("trailer %s", lines[3])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errNoSpace
}

func TestManifestWriteFailure(t *testing.T) {
	m, entries := testManifest(t)
	mw := NewManifestWriter(m, failingWriter{}, "test", FormatText, true)

	if err := mw.Begin(); !errors.Is(err, process.ErrCaptureFailed) {
		t.Errorf("Begin: %v", err)
	}
	if err := mw.Append(entries[0]); !errors.Is(err, process.ErrCaptureFailed) {
		t.Errorf("Append: %v", err)
	}
	if len(m.Entries) != 1 {
		t.Errorf("entry not recorded after a write failure")
	}
}
