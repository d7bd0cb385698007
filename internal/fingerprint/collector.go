package fingerprint

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Collector reads hardware signals from the local OS. Each probe is
// best-effort; a failed probe leaves its field empty so Derive falls back.
type Collector struct {
	logger *zap.Logger

	readFile func(name string) ([]byte, error)
	glob     func(pattern string) ([]string, error)
	command  func(ctx context.Context, name string, args ...string) ([]byte, error)
	hostname func() (string, error)
	username func() (string, error)
	goos     string
}

func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		logger:   logger.Named("FingerprintCollector"),
		readFile: os.ReadFile,
		glob:     filepath.Glob,
		command: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		hostname: os.Hostname,
		username: func() (string, error) {
			u, err := user.Current()
			if err != nil {
				return "", err
			}
			return u.Username, nil
		},
		goos: runtime.GOOS,
	}
}

func (c *Collector) Collect(ctx context.Context) Signals {
	var s Signals

	if h, err := c.hostname(); err == nil {
		s.Hostname = strings.ToLower(strings.TrimSpace(h))
	} else {
		c.logger.Warn("Failed to read hostname", zap.Error(err))
	}
	if u, err := c.username(); err == nil {
		s.Username = strings.TrimSpace(u)
	} else {
		c.logger.Warn("Failed to read current user", zap.Error(err))
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch c.goos {
	case "linux":
		s.CPUID = c.cpuIDLinux()
		s.DiskSerial = c.diskSerialLinux()
	case "windows":
		s.CPUID = c.wmicValue(probeCtx, "cpu", "ProcessorId")
		s.DiskSerial = c.wmicValue(probeCtx, "diskdrive", "SerialNumber")
	case "darwin":
		s.CPUID, s.DiskSerial = c.ioregDarwin(probeCtx)
	}

	if !s.HasHardware() {
		c.logger.Warn("Hardware identifiers unavailable, fingerprint falls back to hostname and user",
			zap.String("os", c.goos),
			zap.Bool("cpu_id", s.CPUID != ""),
			zap.Bool("disk_serial", s.DiskSerial != ""),
		)
	}
	return s
}

func (c *Collector) cpuIDLinux() string {
	data, err := c.readFile("/proc/cpuinfo")
	if err != nil {
		c.logger.Debug("Cannot read /proc/cpuinfo", zap.Error(err))
		return ""
	}
	var model, serial string
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "Serial":
			serial = value
		case "model name":
			if model == "" {
				model = value
			}
		}
	}
	if serial != "" {
		return serial
	}
	return model
}

func (c *Collector) diskSerialLinux() string {
	for _, pattern := range []string{"/sys/block/*/device/serial", "/sys/block/*/serial"} {
		matches, err := c.glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if strings.Contains(m, "/loop") || strings.Contains(m, "/ram") {
				continue
			}
			data, err := c.readFile(m)
			if err != nil {
				continue
			}
			if v := strings.TrimSpace(string(data)); v != "" {
				return v
			}
		}
	}
	if data, err := c.readFile("/etc/machine-id"); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

func (c *Collector) wmicValue(ctx context.Context, class, field string) string {
	out, err := c.command(ctx, "wmic", class, "get", field)
	if err != nil {
		c.logger.Debug("wmic query failed", zap.String("class", class), zap.Error(err))
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, field) {
			continue
		}
		return line
	}
	return ""
}

func (c *Collector) ioregDarwin(ctx context.Context) (cpuID, diskSerial string) {
	out, err := c.command(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err != nil {
		c.logger.Debug("ioreg query failed", zap.Error(err))
		return "", ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.Contains(line, "IOPlatformUUID"):
			cpuID = quotedValue(line)
		case strings.Contains(line, "IOPlatformSerialNumber"):
			diskSerial = quotedValue(line)
		}
	}
	return cpuID, diskSerial
}

func quotedValue(line string) string {
	_, rhs, ok := strings.Cut(line, "=")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rhs), `"`)
}

func (s Signals) String() string {
	return fmt.Sprintf("host=%s user=%s hw=%t", s.Hostname, s.Username, s.HasHardware())
}
