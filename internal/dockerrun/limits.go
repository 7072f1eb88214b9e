package dockerrun

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"pkt.systems/pslog"
	"pkt.systems/stevedore/schema"
)

// detectResourceLimits reports the most this host can offer one container:
// every logical CPU and all physical memory. Detection failures degrade to a
// zero memory figure rather than an error.
func detectResourceLimits(logger pslog.Logger) schema.ResourceLimits {
	limits := schema.ResourceLimits{CPU: runtime.NumCPU()}
	total, err := readMemTotalBytes()
	if err != nil {
		if logger != nil {
			logger.Warn("host memory detection failed", "err", err)
		}
	} else {
		limits.MemoryBytes = total
	}
	if logger != nil {
		logger.Info("host resource limits", "cpu", limits.CPU, "memory_bytes", limits.MemoryBytes)
	}
	return limits
}

func readMemTotalBytes() (int64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil && info.Totalram > 0 {
		return int64(info.Totalram) * int64(info.Unit), nil
	}
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()
	return parseMemTotalBytes(file)
}

func parseMemTotalBytes(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, errors.New("meminfo: malformed MemTotal line")
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		unit := ""
		if len(fields) >= 3 {
			unit = fields[2]
		}
		switch unit {
		case "kB", "KB", "":
			return value * 1024, nil
		default:
			return 0, fmt.Errorf("meminfo: unsupported unit %q", unit)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("meminfo: MemTotal not found")
}
