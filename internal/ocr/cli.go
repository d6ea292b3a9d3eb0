package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
	"github.com/emtechscan/scan-worker/internal/logging"
)

// CLIEngine invokes an external OCR binary in the cuneiform/gocr family.
// The page bitmap is written to a temp PNG, the engine is spawned with the
// caller's deadline, and its output is read back from stdout (gocr) or a
// temp output file (cuneiform). Temp files are removed on all paths.
type CLIEngine struct {
	command  string
	language string
	tempDir  string
	log      *logging.Logger
}

// NewCLIEngine creates an adapter around the named binary. Known commands
// are "cuneiform" and "gocr"; anything else is driven cuneiform-style.
func NewCLIEngine(command, language, tempDir string) *CLIEngine {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &CLIEngine{
		command:  command,
		language: language,
		tempDir:  tempDir,
		log:      logging.NewLogger("ocr-cli"),
	}
}

func (e *CLIEngine) Name() string { return e.command }

// Available reports whether the binary can be found in PATH.
func (e *CLIEngine) Available() bool {
	_, err := exec.LookPath(e.command)
	return err == nil
}

// Recognize runs the external engine on one page bitmap.
func (e *CLIEngine) Recognize(ctx context.Context, in Input) (document.OcrResult, error) {
	if _, err := exec.LookPath(e.command); err != nil {
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.command, in.PageIndex, err)
	}

	imgFile, err := os.CreateTemp(e.tempDir, "emtechscan-page-*.png")
	if err != nil {
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.command, in.PageIndex, fmt.Errorf("create temp image: %w", err))
	}
	imgPath := imgFile.Name()
	defer os.Remove(imgPath)

	if _, err := imgFile.Write(in.Bitmap); err != nil {
		imgFile.Close()
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.command, in.PageIndex, fmt.Errorf("write temp image: %w", err))
	}
	if err := imgFile.Close(); err != nil {
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.command, in.PageIndex, fmt.Errorf("close temp image: %w", err))
	}

	var text string
	if filepath.Base(e.command) == "gocr" {
		text, err = e.runStdoutStyle(ctx, imgPath)
	} else {
		text, err = e.runFileStyle(ctx, imgPath)
	}
	if err != nil {
		return document.OcrResult{}, err
	}

	text = strings.TrimSpace(text)
	return document.OcrResult{
		Engine:    e.Name(),
		PageIndex: in.PageIndex,
		RawText:   text,
		Tokens:    tokensFromText(text),
	}, nil
}

// runStdoutStyle drives engines that print recognized text to stdout.
func (e *CLIEngine) runStdoutStyle(ctx context.Context, imgPath string) (string, error) {
	cmd := exec.CommandContext(ctx, e.command, imgPath)
	out, err := cmd.Output()
	if err != nil {
		if invocationFailure(ctx, err) {
			return "", scanerrors.NewEngineUnavailableError(e.command, -1, err)
		}
		// The engine ran but exited unhappily; whatever it printed is still
		// the best text we will get from it.
		e.log.Warn("Engine exited with error, keeping partial output", "engine", e.command, "error", err)
	}
	return string(out), nil
}

// runFileStyle drives engines that write recognized text to an output file.
func (e *CLIEngine) runFileStyle(ctx context.Context, imgPath string) (string, error) {
	outFile, err := os.CreateTemp(e.tempDir, "emtechscan-out-*.txt")
	if err != nil {
		return "", scanerrors.NewEngineUnavailableError(e.command, -1, fmt.Errorf("create temp output: %w", err))
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	args := []string{"-f", "text", "-o", outPath}
	if e.language != "" {
		args = append([]string{"-l", e.language}, args...)
	}
	args = append(args, imgPath)

	cmd := exec.CommandContext(ctx, e.command, args...)
	if runErr := cmd.Run(); runErr != nil {
		if invocationFailure(ctx, runErr) {
			return "", scanerrors.NewEngineUnavailableError(e.command, -1, runErr)
		}
		e.log.Warn("Engine exited with error, reading output anyway", "engine", e.command, "error", runErr)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		// No output file at all means the engine never did its job.
		return "", scanerrors.NewEngineUnavailableError(e.command, -1, fmt.Errorf("read engine output: %w", err))
	}
	return string(data), nil
}

// invocationFailure distinguishes "the process could not run" (binary
// missing, killed by our deadline) from an ordinary non-zero exit.
func invocationFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	var exitErr *exec.ExitError
	return !errors.As(err, &exitErr)
}
