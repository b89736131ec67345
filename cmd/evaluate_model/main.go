package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"gonum.org/v1/gonum/stat"

	"voiceguard/classifier"
	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/utils"
	"voiceguard/wav"
)

// CLI defines the command-line interface
type CLI struct {
	Model   string `default:"deepfake_audio_detector.ckpt" help:"Model checkpoint or .onnx file"`
	DataDir string `default:"dataset" help:"Directory containing fake/ and real/ clips to evaluate"`
	Report  string `default:"evaluation_report.json" help:"Path to save the evaluation report (empty to skip)"`
	Verbose bool   `short:"v" help:"Log every file that fails to process"`
}

// ClassMetrics tracks per-class performance
type ClassMetrics struct {
	ClassName     string
	TotalSamples  int
	Failed        int
	CorrectCount  int
	Accuracy      float64
	AvgConfidence float64
	ConfidenceStd float64
	Misclassified []MisclassificationInfo
}

// MisclassificationInfo stores details of incorrect predictions
type MisclassificationInfo struct {
	Filename       string
	TrueLabel      string
	PredictedLabel string
	Probability    float64
	Confidence     float64
}

// EvaluationReport contains comprehensive evaluation results
type EvaluationReport struct {
	Timestamp       time.Time
	ModelPath       string
	TotalSamples    int
	CorrectCount    int
	OverallAccuracy float64
	AvgConfidence   float64
	ClassMetrics    []ClassMetrics
	// ConfusionMatrix[actual][predicted], indexed by label value.
	ConfusionMatrix [2][2]int
	ProcessingTime  time.Duration
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("evaluate_model"),
		kong.Description("Evaluate the classifier on a labelled folder of clips"),
		kong.UsageOnError(),
	)

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation ===")
	log.Printf("Model: %s\n", cli.Model)
	log.Printf("Evaluation data: %s\n", cli.DataDir)

	model, err := classifier.Load(cli.Model)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}
	defer model.Close()

	report := evaluateModel(context.Background(), model, mfcc.Default(), cli)
	printEvaluationReport(report)

	if cli.Report != "" {
		if err := saveReport(report, cli.Report); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("Report saved to: %s\n", cli.Report)
		}
	}
	printVerdict(report)
}

func evaluateModel(ctx context.Context, model classifier.Predictor, extractor *mfcc.Extractor, cli *CLI) EvaluationReport {
	report := EvaluationReport{
		Timestamp: time.Now(),
		ModelPath: cli.Model,
	}

	var confidenceSum float64
	for _, label := range models.Labels {
		metrics := evaluateClass(ctx, model, extractor, label, cli, &report)
		report.ClassMetrics = append(report.ClassMetrics, metrics)
		report.CorrectCount += metrics.CorrectCount
		scored := metrics.TotalSamples - metrics.Failed
		report.TotalSamples += scored
		confidenceSum += metrics.AvgConfidence * float64(scored)
	}

	if report.TotalSamples > 0 {
		report.OverallAccuracy = float64(report.CorrectCount) / float64(report.TotalSamples) * 100
		report.AvgConfidence = confidenceSum / float64(report.TotalSamples)
	}
	report.ProcessingTime = time.Since(report.Timestamp)
	return report
}

func evaluateClass(ctx context.Context, model classifier.Predictor, extractor *mfcc.Extractor,
	label models.Label, cli *CLI, report *EvaluationReport) ClassMetrics {

	metrics := ClassMetrics{ClassName: label.String()}
	dir := filepath.Join(cli.DataDir, label.String())

	files, err := collectAudioFiles(dir)
	if err != nil {
		log.Printf("WARNING: Failed to read directory %s: %v\n", dir, err)
		return metrics
	}
	if len(files) == 0 {
		log.Printf("WARNING: No audio files in %s\n", dir)
		return metrics
	}

	var confidences []float64
	for _, path := range files {
		metrics.TotalSamples++

		d, err := classifyFile(ctx, model, extractor, path)
		if err != nil {
			metrics.Failed++
			if cli.Verbose {
				log.Printf("  ERROR processing %s: %v\n", filepath.Base(path), err)
			}
			continue
		}

		confidences = append(confidences, d.Confidence)
		report.ConfusionMatrix[label][d.Label]++
		if d.Label == label {
			metrics.CorrectCount++
		} else {
			metrics.Misclassified = append(metrics.Misclassified, MisclassificationInfo{
				Filename:       filepath.Base(path),
				TrueLabel:      label.String(),
				PredictedLabel: d.Label.String(),
				Probability:    d.Probability,
				Confidence:     d.Confidence,
			})
		}
	}

	if scored := metrics.TotalSamples - metrics.Failed; scored > 0 {
		metrics.Accuracy = float64(metrics.CorrectCount) / float64(scored) * 100
	}
	if len(confidences) > 0 {
		metrics.AvgConfidence, metrics.ConfidenceStd = stat.MeanStdDev(confidences, nil)
		if len(confidences) == 1 {
			metrics.ConfidenceStd = 0
		}
	}
	return metrics
}

func classifyFile(ctx context.Context, model classifier.Predictor, extractor *mfcc.Extractor, path string) (classifier.Decision, error) {
	w, err := wav.Load(ctx, path, wav.TargetSampleRate)
	if err != nil {
		return classifier.Decision{}, err
	}
	m, err := extractor.Extract(w.Samples, w.SampleRate)
	if err != nil {
		return classifier.Decision{}, err
	}
	p, err := model.Predict(m)
	if err != nil {
		return classifier.Decision{}, err
	}
	return classifier.Decide(p), nil
}

func collectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !wav.SupportedExtension(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func printEvaluationReport(report EvaluationReport) {
	log.Println()
	log.Println(strings.Repeat("=", 80))
	log.Println("EVALUATION RESULTS")
	log.Println(strings.Repeat("=", 80))

	log.Printf("Overall Accuracy: %.2f%% (%d/%d correct)\n",
		report.OverallAccuracy, report.CorrectCount, report.TotalSamples)
	log.Printf("Average Confidence: %.2f%%\n", report.AvgConfidence*100)
	log.Printf("Processing Time: %.2f seconds\n", report.ProcessingTime.Seconds())
	log.Println()

	log.Println("Per-Class Performance:")
	log.Println(strings.Repeat("-", 80))
	log.Printf("%-10s %9s %11s %9s %8s\n", "Class", "Accuracy", "Confidence", "Samples", "Failed")
	log.Println(strings.Repeat("-", 80))
	for _, m := range report.ClassMetrics {
		log.Printf("%-10s %8.1f%% %10.1f%% %9d %8d\n",
			m.ClassName, m.Accuracy, m.AvgConfidence*100, m.TotalSamples, m.Failed)
	}
	log.Println()

	log.Println("Confusion Matrix:")
	fmt.Printf("%-15s %6s %6s\n", "Actual \\ Pred", models.LabelFake, models.LabelReal)
	for _, actual := range models.Labels {
		fmt.Printf("%-15s %6d %6d\n", actual, report.ConfusionMatrix[actual][models.LabelFake], report.ConfusionMatrix[actual][models.LabelReal])
	}
	log.Println()

	total := 0
	for _, m := range report.ClassMetrics {
		total += len(m.Misclassified)
	}
	if total == 0 {
		log.Println("No misclassifications")
		return
	}
	log.Printf("Misclassifications (%d total):\n", total)
	for _, m := range report.ClassMetrics {
		for _, misc := range m.Misclassified {
			log.Printf("  %s/%s predicted as %s (P(real)=%.3f)\n",
				misc.TrueLabel, misc.Filename, misc.PredictedLabel, misc.Probability)
		}
	}
}

func printVerdict(report EvaluationReport) {
	var verdict string
	switch accuracy := report.OverallAccuracy; {
	case report.TotalSamples == 0:
		verdict = "NO DATA"
	case accuracy >= 90:
		verdict = "EXCELLENT"
	case accuracy >= 80:
		verdict = "GOOD"
	case accuracy >= 70:
		verdict = "FAIR"
	default:
		verdict = "POOR"
	}
	log.Println(strings.Repeat("=", 80))
	log.Printf("Overall Assessment: %s\n", verdict)
	log.Println(strings.Repeat("=", 80))
}

func saveReport(report EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data)
}
