package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/mescon/Scanarr/internal/clock"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

// quickDecodeSpan bounds how much of the file the quick pass decodes.
const quickDecodeSpan = "60"

// FFAdapter runs ffprobe for metadata probes and ffmpeg for decode checks.
type FFAdapter struct {
	FFprobePath string
	FFmpegPath  string
	clk         clock.Clock
}

var _ Adapter = (*FFAdapter)(nil)

// NewFFAdapter creates an adapter using PATH lookup for both binaries.
func NewFFAdapter() *FFAdapter {
	return NewFFAdapterWithPaths("ffprobe", "ffmpeg")
}

// NewFFAdapterWithPaths creates an adapter with explicit binary locations.
func NewFFAdapterWithPaths(ffprobePath, ffmpegPath string) *FFAdapter {
	return &FFAdapter{
		FFprobePath: ffprobePath,
		FFmpegPath:  ffmpegPath,
		clk:         clock.NewRealClock(),
	}
}

// ffprobe's -print_format json shape. Numeric fields arrive as strings.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

func (a *FFAdapter) Probe(ctx context.Context, path string, timeout time.Duration) *domain.ProbeResult {
	now := a.clk.Now()
	failed := func(msg string) *domain.ProbeResult {
		return &domain.ProbeResult{Path: path, Success: false, Message: msg, ProbedAt: now}
	}

	if err := ValidatePath(path); err != nil {
		return failed(fmt.Sprintf("invalid media path: %v", err))
	}

	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	stdout, stderr, exitCode, timedOut, err := a.run(ctx, a.FFprobePath, args, timeout)
	if timedOut {
		return failed(fmt.Sprintf("ffprobe timed out after %v", timeout))
	}
	if err != nil && exitCode < 0 {
		return failed(fmt.Sprintf("ffprobe failed to start: %v", err))
	}
	if exitCode != 0 {
		msg := stderr
		if msg == "" {
			msg = fmt.Sprintf("ffprobe exited with code %d", exitCode)
		}
		return failed(msg)
	}

	var out ffprobeOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		return failed(fmt.Sprintf("ffprobe produced invalid JSON: %v", err))
	}

	result := &domain.ProbeResult{
		Path:     path,
		Success:  true,
		ProbedAt: now,
		Format: domain.FormatInfo{
			Name:     out.Format.FormatName,
			Duration: parseFloat(out.Format.Duration),
			Size:     parseInt(out.Format.Size),
			BitRate:  parseInt(out.Format.BitRate),
		},
	}
	for _, s := range out.Streams {
		result.Streams = append(result.Streams, domain.Stream{
			Index:    s.Index,
			Type:     s.CodecType,
			Codec:    s.CodecName,
			Width:    s.Width,
			Height:   s.Height,
			Duration: parseFloat(s.Duration),
		})
	}
	if len(result.Streams) == 0 {
		result.Success = false
		result.Message = "no streams found in file"
	}
	return result
}

func (a *FFAdapter) DecodeCheck(ctx context.Context, path string, depth domain.Depth, timeout time.Duration) DecodeReport {
	start := a.clk.Now()

	if err := ValidatePath(path); err != nil {
		return DecodeReport{
			ExitCode:   -1,
			Diagnostic: fmt.Sprintf("invalid media path: %v", err),
			Elapsed:    a.clk.Now().Sub(start),
		}
	}

	// -xerror stops on the first decode error, -f null discards output.
	// The quick pass only decodes the leading span of the file.
	args := []string{"-v", "error", "-xerror", "-i", path}
	if depth == domain.DepthQuick {
		args = append(args, "-t", quickDecodeSpan)
	}
	args = append(args, "-f", "null", "-")

	_, stderr, exitCode, timedOut, err := a.run(ctx, a.FFmpegPath, args, timeout)
	elapsed := a.clk.Now().Sub(start)

	if timedOut {
		return DecodeReport{
			ExitCode:   -1,
			Diagnostic: fmt.Sprintf("ffmpeg timed out after %v; partial output: %s", timeout, stderr),
			Elapsed:    elapsed,
			TimedOut:   true,
		}
	}
	if err != nil && exitCode < 0 {
		return DecodeReport{
			ExitCode:   -1,
			Diagnostic: fmt.Sprintf("ffmpeg failed to start: %v", err),
			Elapsed:    elapsed,
		}
	}
	return DecodeReport{ExitCode: exitCode, Diagnostic: stderr, Elapsed: elapsed}
}

// run executes the command with a hard timeout, returning stdout, stderr,
// the exit code, whether the deadline fired and any spawn error. The child
// process is killed and reaped when the timeout or ctx cancellation hits.
func (a *FFAdapter) run(ctx context.Context, bin string, args []string, timeout time.Duration) (stdout, stderr string, exitCode int, timedOut bool, err error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if runCtx.Err() == context.DeadlineExceeded {
		logger.Debugf("%s killed after %v timeout", bin, timeout)
		return stdout, stderr, -1, true, runErr
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return stdout, stderr, exitErr.ExitCode(), false, nil
		}
		// Spawn failure (binary missing, permission denied).
		return stdout, stderr, -1, false, runErr
	}
	return stdout, stderr, 0, false, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
