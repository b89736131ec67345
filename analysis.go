package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/mdobak/go-xerrors"

	"voiceguard/classifier"
	"voiceguard/history"
	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/utils"
	"voiceguard/wav"
)

var errUnsupportedFile = errors.New("unsupported file type, upload a wav, mp3 or flac file")

// analysisResult is the payload returned to the front end.
type analysisResult struct {
	ID          string       `json:"id"`
	FileName    string       `json:"fileName"`
	Label       models.Label `json:"label"`
	Verdict     string       `json:"verdict"`
	Probability float64      `json:"probability"`
	Confidence  float64      `json:"confidence"`
	Frames      int          `json:"frames"`
	DurationSec float64      `json:"durationSec"`
	LatencyMs   float64      `json:"latencyMs"`
	MFCC        [][]float32  `json:"mfcc"`
	Image       string       `json:"image,omitempty"`
}

// analyzer runs the decode, extract, predict pipeline for one upload. The
// model is loaded once and shared by every request.
type analyzer struct {
	extractor *mfcc.Extractor
	model     classifier.Predictor
	store     history.Store
	logger    *slog.Logger
}

func newAnalyzer(extractor *mfcc.Extractor, model classifier.Predictor, store history.Store) *analyzer {
	if store == nil {
		store = history.Nop{}
	}
	return &analyzer{extractor: extractor, model: model, store: store, logger: utils.GetLogger()}
}

func (a *analyzer) analyze(ctx context.Context, data []byte, fileName, source string) (*analysisResult, error) {
	if !wav.SupportedExtension(fileName) {
		return nil, errUnsupportedFile
	}
	started := time.Now()

	waveform, err := wav.Decode(ctx, data, filepath.Base(fileName), wav.TargetSampleRate)
	if err != nil {
		return nil, err
	}

	full, err := a.extractor.ExtractFull(waveform.Samples, waveform.SampleRate)
	if err != nil {
		return nil, err
	}
	features := full.Fit(a.extractor.Config().Frames)

	p, err := a.model.Predict(features)
	if err != nil {
		return nil, err
	}
	decision := classifier.Decide(p)
	latency := float64(time.Since(started).Microseconds()) / 1000

	result := &analysisResult{
		ID:          utils.GenerateUniqueID(),
		FileName:    fileName,
		Label:       decision.Label,
		Verdict:     decision.Verdict,
		Probability: decision.Probability,
		Confidence:  decision.Confidence,
		Frames:      full.Cols,
		DurationSec: waveform.Duration(),
		LatencyMs:   latency,
		MFCC:        features.Rows2D(),
	}

	if img, err := mfcc.RenderPNG(features, full.Cols); err != nil {
		a.logger.WarnContext(ctx, "failed to render mfcc image", slog.Any("error", err))
	} else {
		result.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
	}

	a.logger.InfoContext(ctx, "analysis complete",
		slog.String("source", source),
		slog.String("file", fileName),
		slog.String("verdict", decision.Verdict),
		slog.Float64("probability", p),
		slog.Int("frames", full.Cols),
		slog.Float64("latency_ms", latency),
	)

	record := &models.Analysis{
		ID:          result.ID,
		Timestamp:   time.Now().UTC(),
		FileName:    fileName,
		Label:       decision.Label,
		Verdict:     decision.Verdict,
		Probability: decision.Probability,
		Confidence:  decision.Confidence,
		Frames:      full.Cols,
		Duration:    result.DurationSec,
		LatencyMs:   latency,
		Source:      source,
	}
	if err := a.store.SaveAnalysis(ctx, record); err != nil {
		a.logger.ErrorContext(ctx, "failed to save analysis", slog.Any("error", xerrors.New(err)))
	}
	return result, nil
}

// errorStatus maps a pipeline error to an HTTP status and a client message.
func errorStatus(err error) (int, string) {
	var (
		decodeErr  *wav.DecodeError
		extractErr *mfcc.FeatureExtractionError
		predictErr *classifier.PredictionError
	)
	switch {
	case errors.Is(err, errUnsupportedFile):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &decodeErr):
		if errors.Is(err, wav.ErrFFmpegMissing) {
			return http.StatusBadRequest, "unable to decode audio: ffmpeg is not installed on the server"
		}
		return http.StatusBadRequest, "unable to decode audio"
	case errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity, fmt.Sprintf("unable to extract features: %v", extractErr.Err)
	case errors.As(err, &predictErr):
		return http.StatusInternalServerError, "classifier error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}
