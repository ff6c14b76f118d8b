package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

// ErrNotFound is returned when ffmpeg or ffprobe is not installed.
var ErrNotFound = errors.New("ffmpeg not found")

const (
	EnvFFmpegPath  = "SUBAUTO_FFMPEG_PATH"
	EnvFFprobePath = "SUBAUTO_FFPROBE_PATH"
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

var (
	ensureOnce sync.Once
	ensureErr  error
	ensurePath BinaryPaths
)

// Ensure locates ffmpeg and ffprobe once per process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensurePath, ensureErr = locate(os.Getenv(EnvFFmpegPath), os.Getenv(EnvFFprobePath))
	})
	return ensurePath, ensureErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

// Available reports whether both binaries can be found.
func Available() bool {
	_, err := Ensure()
	return err == nil
}

func locate(ffmpegPath, ffprobePath string) (BinaryPaths, error) {
	// a directory in the env var means both binaries live there
	if ffmpegPath != "" && isDir(ffmpegPath) {
		dir := ffmpegPath
		ffmpegPath = filepath.Join(dir, "ffmpeg"+executableSuffix())
		if ffprobePath == "" {
			ffprobePath = filepath.Join(dir, "ffprobe"+executableSuffix())
		}
	}

	if ffmpegPath == "" {
		if found, err := exec.LookPath("ffmpeg"); err == nil {
			ffmpegPath = found
		}
	}
	if ffprobePath == "" {
		if found, err := exec.LookPath("ffprobe"); err == nil {
			ffprobePath = found
		}
	}

	if !fileExists(ffmpegPath) || !fileExists(ffprobePath) {
		return BinaryPaths{}, fmt.Errorf(
			"%w: set %s or install ffmpeg on PATH",
			ErrNotFound,
			EnvFFmpegPath,
		)
	}
	return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
