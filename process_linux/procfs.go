//go:build linux

package process_linux

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memfetch/capture"
	"memfetch/process"
	"memfetch/process/memory_map"
)

// ProcFS implements capture.Target on top of /proc.
type ProcFS struct {
	Root string // "/proc" if empty
}

var _ capture.Target = (*ProcFS)(nil)

func (fs *ProcFS) path(pid process.ProcessID, name string) string {
	root := fs.Root
	if root == "" {
		root = "/proc"
	}
	return filepath.Join(root, strconv.Itoa(int(pid)), name)
}

// Executable resolves /proc/[pid]/exe, "<unknown>" if it cannot be read
func (fs *ProcFS) Executable(pid process.ProcessID) string {
	exe, err := os.Readlink(fs.path(pid, "exe"))
	if err != nil || exe == "" {
		return "<unknown>"
	}
	return exe
}

// Status reads /proc/[pid]/status
func (fs *ProcFS) Status(pid process.ProcessID) (process.ProcessInfo, error) {
	data, err := os.ReadFile(fs.path(pid, "status"))
	if err != nil {
		return process.ProcessInfo{}, fmt.Errorf("failed to read status of %d: %w", pid, err)
	}

	info := parseStatusFile(string(data))
	if info.PID == 0 {
		info.PID = pid
	}
	return info, nil
}

// parseStatusFile parses the fields of /proc/[pid]/status used by memfetch
func parseStatusFile(data string) process.ProcessInfo {
	var info process.ProcessInfo

	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		switch parts[0] {
		case "Name:":
			info.Name = parts[1]
		case "State:":
			info.State = process.ProcessState(parts[1])
		case "Tgid:":
			if tgid, err := strconv.Atoi(parts[1]); err == nil {
				info.Tgid = process.ProcessID(tgid)
			}
		case "Pid:":
			if pid, err := strconv.Atoi(parts[1]); err == nil {
				info.PID = process.ProcessID(pid)
			}
		case "Threads:":
			if threads, err := strconv.Atoi(parts[1]); err == nil {
				info.Threads = threads
			}
		}
	}

	return info
}

// OpenMaps opens /proc/[pid]/maps
func (fs *ProcFS) OpenMaps(pid process.ProcessID) (io.ReadCloser, error) {
	if fs.Root == "" {
		return memory_map.OpenLinux(int(pid))
	}
	return os.Open(fs.path(pid, "maps"))
}

// OpenMemory opens /proc/[pid]/mem
func (fs *ProcFS) OpenMemory(pid process.ProcessID) (capture.MemorySource, error) {
	file, err := os.Open(fs.path(pid, "mem"))
	if err != nil {
		return nil, err
	}
	return &MemFile{File: file}, nil
}

// PageSize returns the system page size
func (fs *ProcFS) PageSize() int {
	return os.Getpagesize()
}
