package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"proxyrules/internal/debuglog"
)

const fileLogLevel = debuglog.UseGlobal

func fileLog(level debuglog.Level, format string, args ...interface{}) {
	debuglog.Log("FileService", level, fileLogLevel, format, args...)
}

// FileService owns the output tree: one directory per tool under OutputDir.
type FileService struct {
	OutputDir string
}

// NewFileService creates outputDir if needed and returns a FileService rooted
// there.
func NewFileService(outputDir string) (*FileService, error) {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("NewFileService: cannot resolve %s: %w", outputDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileService: cannot create %s: %w", abs, err)
	}
	return &FileService{OutputDir: abs}, nil
}

// ToolDir returns the directory of one tool's files.
func (fs *FileService) ToolDir(tool string) string {
	return filepath.Join(fs.OutputDir, tool)
}

// WriteFile writes data to <tool>/<name>. The file is replaced through a
// temporary file in the same directory, so readers never see a partial write.
// It reports false when the file already held exactly data.
func (fs *FileService) WriteFile(tool, name string, data []byte) (bool, error) {
	dir := fs.ToolDir(tool)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("WriteFile: cannot create %s: %w", dir, err)
	}
	target := filepath.Join(dir, name)

	if old, err := os.ReadFile(target); err == nil && bytes.Equal(old, data) {
		fileLog(debuglog.LevelTrace, "%s unchanged", target)
		return false, nil
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return false, fmt.Errorf("WriteFile: cannot create temp file for %s: %w", target, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		debuglog.CloseWithLog("WriteFile", tmp)
		return false, fmt.Errorf("WriteFile: cannot write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("WriteFile: cannot close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return false, fmt.Errorf("WriteFile: cannot chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return false, fmt.Errorf("WriteFile: cannot replace %s: %w", target, err)
	}
	fileLog(debuglog.LevelVerbose, "wrote %s (%d bytes)", target, len(data))
	return true, nil
}

// OpenLogFileWithRotation opens a log file in append mode, rotating it first
// when it exceeds maxLogFileSize.
func OpenLogFileWithRotation(logPath string) (*os.File, error) {
	CheckAndRotateLogFile(logPath)
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

const maxLogFileSize = 2 * 1024 * 1024 // 2 MB

// CheckAndRotateLogFile renames logPath to logPath.old once it exceeds
// maxLogFileSize.
func CheckAndRotateLogFile(logPath string) {
	info, err := os.Stat(logPath)
	if err != nil {
		return // File doesn't exist yet, nothing to rotate
	}
	if info.Size() <= maxLogFileSize {
		return
	}
	oldPath := logPath + ".old"
	_ = os.Remove(oldPath)
	if err := os.Rename(logPath, oldPath); err != nil {
		fileLog(debuglog.LevelWarn, "failed to rotate log file %s: %v", logPath, err)
		return
	}
	fileLog(debuglog.LevelInfo, "rotated log file %s (size: %d bytes)", logPath, info.Size())
}
