package offline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// PIDFileService stops the local product using the pid it wrote at startup.
// A missing pid file means nothing is running.
type PIDFileService struct {
	PIDFile string
	Timeout time.Duration
	logger  *zap.Logger
}

func NewPIDFileService(pidFile string, logger *zap.Logger) *PIDFileService {
	return &PIDFileService{
		PIDFile: pidFile,
		Timeout: 10 * time.Second,
		logger:  logger.Named("LocalService"),
	}
}

func (s *PIDFileService) Stop(ctx context.Context) error {
	if s.PIDFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.PIDFile)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("No pid file, local service not running", zap.String("pid_file", s.PIDFile))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid file %s: %q", s.PIDFile, strings.TrimSpace(string(data)))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return s.removePIDFile()
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return s.removePIDFile()
		}
		s.logger.Warn("Graceful stop failed, killing local service", zap.Int("pid", pid), zap.Error(err))
		if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill local service (pid %d): %w", pid, err)
		}
		return s.removePIDFile()
	}

	deadline := time.Now().Add(s.Timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warn("Local service did not exit in time, killing it", zap.Int("pid", pid))
			_ = proc.Kill()
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.logger.Info("Local service stopped", zap.Int("pid", pid))
	return s.removePIDFile()
}

func (s *PIDFileService) removePIDFile() error {
	if err := os.Remove(s.PIDFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
