package wav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrFFmpegMissing is returned when non-WAV input arrives and ffmpeg is not
// on PATH.
var ErrFFmpegMissing = errors.New("ffmpeg not found in PATH")

// CheckFFmpegAvailable reports whether the ffmpeg binary can be found.
func CheckFFmpegAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: install ffmpeg to accept mp3 and flac uploads", ErrFFmpegMissing)
	}
	return nil
}

// ConvertToWAV converts inputPath to a mono 16-bit PCM WAV at sampleRate and
// returns the path of the new file. The caller removes it.
func ConvertToWAV(ctx context.Context, inputPath string, sampleRate int) (string, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return "", err
	}

	out, err := os.CreateTemp("", "voiceguard-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	outputPath := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("ffmpeg conversion failed: %w", err)
		}
		return "", fmt.Errorf("ffmpeg conversion failed: %w: %s", err, msg)
	}
	return outputPath, nil
}

func decodeWithFFmpeg(ctx context.Context, data []byte, name string, sampleRate int) (*Waveform, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	in, err := os.CreateTemp("", "voiceguard-in-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	inputPath := in.Name()
	defer os.Remove(inputPath)

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	in.Close()

	converted, err := ConvertToWAV(ctx, inputPath, sampleRate)
	if err != nil {
		return nil, err
	}
	defer os.Remove(converted)

	pcm, err := os.ReadFile(converted)
	if err != nil {
		return nil, fmt.Errorf("read converted wav: %w", err)
	}
	return decodePCM(pcm, sampleRate)
}
