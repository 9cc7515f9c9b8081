package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"memfetch/process"
	"memfetch/process/memory_map"
)

// Entry is one processed region of a manifest.
type Entry struct {
	Region  memory_map.MemoryRegion
	File    string // artifact name, empty for skipped regions
	Outcome Outcome
}

// Manifest describes everything a session processed, in enumeration order.
type Manifest struct {
	PID        process.ProcessID
	Executable string
	Date       time.Time
	Entries    []Entry
}

// Captured returns the number of captured regions
func (m *Manifest) Captured() int {
	return m.count(Captured)
}

// Skipped returns the number of skipped regions
func (m *Manifest) Skipped() int {
	return m.count(Skipped)
}

func (m *Manifest) count(kind OutcomeKind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Outcome.Kind == kind {
			n++
		}
	}
	return n
}

// ManifestWriter appends entries to a Manifest and streams each one to w
// as soon as it is added.
type ManifestWriter struct {
	m      *Manifest
	w      io.Writer
	dest   string
	format string
	framed bool // header and trailer lines, text format only
}

// NewManifestWriter creates a writer for m. dest names w in errors. The
// text format only frames the entries with a header and trailer when
// framed is set, i.e. when the manifest is a file of its own.
func NewManifestWriter(m *Manifest, w io.Writer, dest, format string, framed bool) *ManifestWriter {
	if format == "" {
		format = FormatText
	}
	return &ManifestWriter{m: m, w: w, dest: dest, format: format, framed: framed}
}

// Manifest returns the manifest being written
func (mw *ManifestWriter) Manifest() *Manifest {
	return mw.m
}

// Begin writes the session header.
func (mw *ManifestWriter) Begin() error {
	switch mw.format {
	case FormatJSON:
		return mw.encode(jsonHeader{
			PID:        int(mw.m.PID),
			Executable: mw.m.Executable,
			Date:       mw.m.Date.Format(time.RFC3339),
		})
	}

	if !mw.framed {
		return nil
	}
	return mw.printf("# Memory image captured by memfetch\n"+
		"# PID %d, declared executable: %s\n"+
		"# Date: %s\n\n", mw.m.PID, mw.m.Executable, mw.m.Date.Format(time.ANSIC))
}

// Append records e and writes it out.
func (mw *ManifestWriter) Append(e Entry) error {
	mw.m.Entries = append(mw.m.Entries, e)

	if mw.format == FormatJSON {
		return mw.encode(newJSONEntry(e))
	}

	r := e.Region
	if e.Outcome.Kind == Skipped {
		return mw.printf("[%03d] skipped %s at 0x%08x (%d bytes):\n"+
			"     Reason: %s\n\n", r.Index, r.Kind(), r.Start, r.Size(), e.Outcome.Reason)
	}

	if err := mw.printf("[%03d] %s:\n"+
		"     Memory range 0x%08x to 0x%08x (%d bytes)\n", r.Index, e.File, r.Start, r.End, r.Size()); err != nil {
		return err
	}
	if r.Mapped() {
		if err := mw.printf("     MAPPED FROM: %s\n", r.Path); err != nil {
			return err
		}
	}
	return mw.printf("     %s\n     %s\n\n", e.Outcome, r.Line)
}

// Finish closes the manifest. A nil cause marks it complete; otherwise the
// error is recorded so the manifest cannot be mistaken for a finished one.
func (mw *ManifestWriter) Finish(cause error) error {
	if mw.format == FormatJSON {
		trailer := jsonTrailer{
			Complete: cause == nil,
			Captured: mw.m.Captured(),
			Skipped:  mw.m.Skipped(),
		}
		if cause != nil {
			trailer.Error = cause.Error()
		}
		return mw.encode(trailer)
	}

	if !mw.framed {
		return nil
	}
	if cause != nil {
		return mw.printf("** An error occurred while generating this file.\n"+
			"** Error message: %v\n", cause)
	}
	return mw.printf("# End of file.\n")
}

func (mw *ManifestWriter) printf(format string, args ...interface{}) error {
	if _, err := fmt.Fprintf(mw.w, format, args...); err != nil {
		return fmt.Errorf("%w: cannot write manifest %s: %w", process.ErrCaptureFailed, mw.dest, err)
	}
	return nil
}

func (mw *ManifestWriter) encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest record: %w", err)
	}
	if _, err := mw.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: cannot write manifest %s: %w", process.ErrCaptureFailed, mw.dest, err)
	}
	return nil
}

type jsonHeader struct {
	PID        int    `json:"pid"`
	Executable string `json:"executable"`
	Date       string `json:"date"`
}

type jsonEntry struct {
	Index           int    `json:"index"`
	Kind            string `json:"kind"`
	File            string `json:"file,omitempty"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Length          uint64 `json:"length"`
	Perms           string `json:"perms,omitempty"`
	Path            string `json:"path,omitempty"`
	Outcome         string `json:"outcome"`
	Strategy        string `json:"strategy,omitempty"`
	Bytes           int64  `json:"bytes,omitempty"`
	UnreadableWords int    `json:"unreadable_words,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func newJSONEntry(e Entry) jsonEntry {
	r := e.Region
	je := jsonEntry{
		Index:   r.Index,
		Kind:    r.Kind(),
		File:    e.File,
		Start:   process.ProcessMemoryAddress(r.Start).ToString(),
		End:     process.ProcessMemoryAddress(r.End).ToString(),
		Length:  r.Size(),
		Perms:   r.Perms,
		Path:    r.Path,
		Outcome: e.Outcome.Kind.String(),
	}
	switch e.Outcome.Kind {
	case Captured:
		je.Strategy = e.Outcome.Strategy.String()
		je.Bytes = e.Outcome.BytesWritten
		je.UnreadableWords = e.Outcome.UnreadableWords
	case Skipped:
		je.Reason = e.Outcome.Reason
	}
	return je
}

type jsonTrailer struct {
	Complete bool   `json:"complete"`
	Captured int    `json:"captured"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}
