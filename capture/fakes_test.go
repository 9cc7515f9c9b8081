package capture

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"testing"

	"memfetch/process"
	"memfetch/process_blob"
)

const testPageSize = 0x1000

// twoRegions is one anonymous region followed by one mapped from /lib/x.
const twoRegions = "00001000-00002000 rw-p 00000000 00:00 0\n" +
	"00003000-00004000 r--p 00000000 08:01 42                         /lib/x\n"

// newTestBlob backs 0x1000-0x4000 with a byte pattern that differs on
// every page.
func newTestBlob() *process_blob.ProcessBlob {
	data := make([]byte, 3*testPageSize)
	for i := range data {
		data[i] = byte(i*7 + i/testPageSize)
	}
	return process_blob.NewProcessBlob(0x1000, data)
}

type waitResult struct {
	status process.StopStatus
	err    error
}

func stopped(sig syscall.Signal) waitResult {
	return waitResult{status: process.StoppedStatus(sig)}
}

// fakeTracer replays scripted wait results and records every request.
type fakeTracer struct {
	blob *process_blob.ProcessBlob

	gone      bool
	attachErr error
	detachErr error
	waits     []waitResult
	onWait    func()

	events     []string
	detaches   int
	interrupts int
}

func (f *fakeTracer) Probe(pid process.ProcessID) error {
	if f.gone {
		return syscall.ESRCH
	}
	return nil
}

func (f *fakeTracer) Attach(pid process.ProcessID) error {
	f.events = append(f.events, "attach")
	return f.attachErr
}

func (f *fakeTracer) Wait(pid process.ProcessID) (process.StopStatus, error) {
	f.events = append(f.events, "wait")
	if f.onWait != nil {
		f.onWait()
	}
	if len(f.waits) == 0 {
		return process.StoppedStatus(syscall.SIGSTOP), nil
	}
	w := f.waits[0]
	f.waits = f.waits[1:]
	return w.status, w.err
}

func (f *fakeTracer) Cont(pid process.ProcessID, sig syscall.Signal) error {
	f.events = append(f.events, fmt.Sprintf("cont %d", int(sig)))
	return nil
}

func (f *fakeTracer) Detach(pid process.ProcessID, sig syscall.Signal) error {
	f.events = append(f.events, fmt.Sprintf("detach %d", int(sig)))
	f.detaches++
	return f.detachErr
}

func (f *fakeTracer) PeekWord(pid process.ProcessID, addr process.ProcessMemoryAddress, word []byte) error {
	if f.blob == nil {
		return syscall.EIO
	}
	return f.blob.PeekWord(pid, addr, word)
}

func (f *fakeTracer) Interrupt(pid process.ProcessID) error {
	f.interrupts++
	return nil
}

// fakeTarget serves a fixed map and a blob as the memory source.
type fakeTarget struct {
	tracer *fakeTracer
	maps   string
	mem    *process_blob.ProcessBlob
	info   process.ProcessInfo
	memErr error
}

func (f *fakeTarget) Executable(pid process.ProcessID) string {
	return "/usr/bin/victim"
}

func (f *fakeTarget) Status(pid process.ProcessID) (process.ProcessInfo, error) {
	return f.info, nil
}

func (f *fakeTarget) OpenMaps(pid process.ProcessID) (io.ReadCloser, error) {
	if f.tracer != nil {
		f.tracer.events = append(f.tracer.events, "maps")
	}
	return io.NopCloser(strings.NewReader(f.maps)), nil
}

func (f *fakeTarget) OpenMemory(pid process.ProcessID) (MemorySource, error) {
	if f.memErr != nil {
		return nil, f.memErr
	}
	return f.mem, nil
}

func (f *fakeTarget) PageSize() int {
	return testPageSize
}

var errNoSpace = errors.New("no space left on device")

// memSink is an in-memory Sink that accepts at most limit bytes when limit
// is not negative.
type memSink struct {
	buf    []byte
	pos    int64
	limit  int64
	closed bool
}

func (s *memSink) Write(p []byte) (int, error) {
	n := int64(len(p))
	var err error
	if s.limit >= 0 && s.pos+n > s.limit {
		n = max(s.limit-s.pos, 0)
		err = errNoSpace
	}
	if end := s.pos + n; end > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-int64(len(s.buf)))...)
	}
	copy(s.buf[s.pos:], p[:n])
	s.pos += n
	return int(n), err
}

func (s *memSink) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += s.pos
	case io.SeekEnd:
		offset += int64(len(s.buf))
	default:
		return 0, errors.New("invalid whence")
	}
	if offset < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = offset
	return offset, nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func (s *memSink) Bytes() []byte {
	return s.buf
}

// memArtifacts creates memSinks. Names in limits get a size limit.
type memArtifacts struct {
	files    map[string]*memSink
	limits   map[string]int64
	onCreate func(name string)
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{
		files:  map[string]*memSink{},
		limits: map[string]int64{},
	}
}

func (a *memArtifacts) Create(name string) (Sink, error) {
	if a.onCreate != nil {
		a.onCreate(name)
	}
	if _, ok := a.files[name]; ok {
		return nil, fmt.Errorf("%w: %s exists", process.ErrCaptureFailed, name)
	}
	limit, ok := a.limits[name]
	if !ok {
		limit = -1
	}
	sink := &memSink{limit: limit}
	a.files[name] = sink
	return sink, nil
}

func (a *memArtifacts) Path(name string) string {
	return "mem://" + name
}

type testLogger struct {
	t *testing.T
}

func (l testLogger) Infoln(args ...interface{})  { l.t.Log(args...) }
func (l testLogger) Debugln(args ...interface{}) { l.t.Log(args...) }
func (l testLogger) Warn(args ...interface{})    { l.t.Log(append([]interface{}{"WARN "}, args...)...) }
