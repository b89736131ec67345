package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"voiceguard/classifier"
	"voiceguard/config"
	"voiceguard/dataset"
	"voiceguard/history"
	"voiceguard/mfcc"
	"voiceguard/utils"
	"voiceguard/wav"
)

var modelPath string

var rootCmd = &cobra.Command{
	Use:   "voiceguard",
	Short: "Detect AI-generated speech in audio clips",
	Long: `VoiceGuard classifies audio clips as real or AI-generated.

Clips are decoded to 16 kHz mono, reduced to a 13 x 200 MFCC matrix and
scored by a small convolutional network.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload front end",
	Long: `Serve the HTTP API, the socket.io endpoint and the upload page.

Examples:
  voiceguard serve
  voiceguard serve --port 8080 --model models/detector.ckpt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
		if proto, _ := cmd.Flags().GetString("proto"); proto != "" {
			cfg.Protocol = proto
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Non-WAV uploads need ffmpeg
		if err := wav.CheckFFmpegAvailable(); err != nil {
			log.Printf("WARNING: %v\n", err)
			log.Println("The server will start but mp3 and flac uploads will fail until FFmpeg is installed.")
		} else {
			log.Println("FFmpeg is available")
		}

		return serve(cmd.Context(), cfg)
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <audio-file>",
	Short: "Classify one local audio file",
	Long: `Classify one local audio file and print the verdict as JSON.

Examples:
  voiceguard predict clip.wav
  voiceguard predict --model deepfake_audio_detector.ckpt clip.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		model, err := classifier.Load(cfg.ModelPath)
		if err != nil {
			return err
		}
		defer model.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		result, err := newAnalyzer(mfcc.Default(), model, history.Nop{}).analyze(cmd.Context(), data, filepath.Base(args[0]), "cli")
		if err != nil {
			return err
		}
		result.MFCC = nil
		if withImage, _ := cmd.Flags().GetBool("image"); !withImage {
			result.Image = ""
		}
		return printJSON(result)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a model against feature and label dumps",
	Long: `Evaluate a model against the arrays written by prepare_dataset.

Examples:
  voiceguard evaluate
  voiceguard evaluate --features X.msgpack --labels y.msgpack`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		featuresPath, _ := cmd.Flags().GetString("features")
		labelsPath, _ := cmd.Flags().GetString("labels")

		x, y, err := dataset.LoadPair(featuresPath, labelsPath)
		if err != nil {
			return err
		}
		model, err := classifier.Load(cfg.ModelPath)
		if err != nil {
			return err
		}
		defer model.Close()

		metrics, err := classifier.Evaluate(cmd.Context(), model, x, y)
		if err != nil {
			return err
		}
		return printJSON(metrics)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "model checkpoint or .onnx file (default from VOICEGUARD_MODEL_PATH)")

	serveCmd.Flags().StringP("port", "p", "", "port to listen on (default from VOICEGUARD_PORT)")
	serveCmd.Flags().String("proto", "", "protocol to use, http or https (default from VOICEGUARD_PROTO)")

	predictCmd.Flags().Bool("image", false, "include the MFCC heatmap as a base64 PNG")

	evaluateCmd.Flags().String("features", dataset.DefaultFeaturesFile, "feature array dump")
	evaluateCmd.Flags().String("labels", dataset.DefaultLabelsFile, "label array dump")

	rootCmd.AddCommand(serveCmd, predictCmd, evaluateCmd)
}

// loadConfig validates only what every subcommand needs; serve checks the
// rest once its flags are applied.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadTools()
	if err != nil {
		return config.Config{}, err
	}
	if modelPath != "" {
		cfg.ModelPath = modelPath
	}
	utils.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger := utils.GetLogger()
		logger.ErrorContext(ctx, "command failed", slog.Any("error", xerrors.New(err)))
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
