package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"voiceguard/models"
	"voiceguard/utils"
)

// emitter is the part of socketio.Conn the controller needs.
type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

type socketController struct {
	analyzer       *analyzer
	maxUploadBytes int64
}

// newSocketController caps decoded uploads at maxUploadBytes, like the HTTP
// handler. A non-positive cap disables the check.
func newSocketController(a *analyzer, maxUploadBytes int64) *socketController {
	return &socketController{analyzer: a, maxUploadBytes: maxUploadBytes}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	socket.Emit("modelInfo", c.analyzer.model.Info())
}

func (c *socketController) handleAnalyzeAudio(socket emitter, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if msg == "" {
		logger.ErrorContext(ctx, "no data received in analyzeAudio event")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	data, fileName, err := decodeUploadPayload(msg, c.maxUploadBytes)
	if errors.Is(err, errUploadTooLarge) {
		logger.ErrorContext(ctx, "rejected oversized upload",
			slog.String("socketID", socket.ID()),
			slog.Int64("limit", c.maxUploadBytes),
		)
		socket.Emit("analysisError", map[string]string{"message": "upload is too large"})
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to parse upload payload",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(err)),
		)
		socket.Emit("analysisError", map[string]string{"message": "invalid audio payload"})
		return
	}

	log.Printf("[handleAnalyzeAudio] socket=%s file=%s size=%d\n", socket.ID(), fileName, len(data))

	result, err := c.analyzer.analyze(ctx, data, fileName, "socket")
	if err != nil {
		_, message := errorStatus(err)
		logger.ErrorContext(ctx, "failed to analyze upload",
			slog.String("socketID", socket.ID()),
			slog.String("file", fileName),
			slog.Any("error", xerrors.New(err)),
		)
		socket.Emit("analysisError", map[string]string{"message": message})
		return
	}

	socket.Emit("analysis", result)
	logger.InfoContext(ctx, "emitted analysis result",
		slog.String("socketID", socket.ID()),
		slog.String("verdict", result.Verdict),
	)
}

var errUploadTooLarge = errors.New("upload is too large")

// decodeUploadPayload parses the JSON socket message and its base64 audio.
// Data URLs ("data:audio/wav;base64,...") are accepted. Audio larger than
// maxBytes is rejected before it is decoded when maxBytes is positive.
func decodeUploadPayload(msg string, maxBytes int64) ([]byte, string, error) {
	var payload models.UploadPayload
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.FileName) == "" {
		return nil, "", errors.New("fileName is required")
	}

	encoded := payload.Audio
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	if encoded == "" {
		return nil, "", errors.New("audio is empty")
	}
	// DecodedLen over-estimates by at most two bytes of padding
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(encoded))) > maxBytes+2 {
		return nil, "", errUploadTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, "", errUploadTooLarge
	}
	return data, payload.FileName, nil
}
