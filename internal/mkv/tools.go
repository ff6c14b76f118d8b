package mkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrToolNotFound is returned when mkvmerge or mkvextract cannot be located.
var ErrToolNotFound = errors.New("mkvtoolnix not found")

// EnvToolPath names a directory holding the MKVToolNix binaries. It takes
// precedence over the configured directory and PATH.
const EnvToolPath = "SUBAUTO_MKVTOOLNIX_PATH"

type Tools struct {
	Merge   string
	Extract string
}

// FindTools locates mkvmerge and mkvextract. Search order is the env
// override, then configDir, then PATH.
func FindTools(configDir string) (Tools, error) {
	var searched []string
	for _, dir := range []string{os.Getenv(EnvToolPath), configDir} {
		if dir == "" {
			continue
		}
		searched = append(searched, dir)
		tools := Tools{
			Merge:   filepath.Join(dir, "mkvmerge"+executableSuffix()),
			Extract: filepath.Join(dir, "mkvextract"+executableSuffix()),
		}
		if isExecutable(tools.Merge) && isExecutable(tools.Extract) {
			return tools, nil
		}
	}

	merge, mergeErr := exec.LookPath("mkvmerge")
	extract, extractErr := exec.LookPath("mkvextract")
	if mergeErr == nil && extractErr == nil {
		return Tools{Merge: merge, Extract: extract}, nil
	}

	if len(searched) > 0 {
		return Tools{}, fmt.Errorf("%w in %v or PATH", ErrToolNotFound, searched)
	}
	return Tools{}, fmt.Errorf("%w in PATH", ErrToolNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

// Result is the outcome of a finished subprocess.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes a command. A non-zero exit is reported through
// Result.ExitCode; err is reserved for failures to start or wait.
type Runner func(ctx context.Context, name string, args ...string) (Result, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return res, fmt.Errorf("%w: %v", ErrToolNotFound, err)
	default:
		return res, err
	}
}
