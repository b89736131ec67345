package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/mdobak/go-xerrors"

	"voiceguard/classifier"
	"voiceguard/config"
	"voiceguard/dataset"
	"voiceguard/utils"
)

// CLI defines the command-line interface. Zero values (and a negative
// validation split) fall back to the configured training settings.
type CLI struct {
	Features        string  `default:"X.msgpack" help:"Feature array produced by prepare_dataset"`
	Labels          string  `default:"y.msgpack" help:"Label array produced by prepare_dataset"`
	Output          string  `short:"o" default:"deepfake_audio_detector.ckpt" help:"Checkpoint output file"`
	Epochs          int     `help:"Training epochs (default from VOICEGUARD_EPOCHS or 10)"`
	BatchSize       int     `help:"Mini-batch size (default from VOICEGUARD_BATCH_SIZE or 1)"`
	LearningRate    float64 `help:"Adam learning rate (default from VOICEGUARD_LEARNING_RATE or 0.001)"`
	Seed            uint64  `help:"Random seed for initialisation, shuffling and dropout (default from VOICEGUARD_SEED or 42)"`
	ValidationSplit float64 `default:"-1" help:"Fraction of examples held out from the tail for validation"`
	NoShuffle       bool    `help:"Keep the stored example order every epoch"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("train_model"),
		kong.Description("Train the deepfake audio classifier on prepared feature arrays"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger := utils.GetLogger()

	if err := run(ctx, cli); err != nil {
		logger.ErrorContext(ctx, "training failed", slog.Any("error", xerrors.New(err)))
		stop()
		os.Exit(1)
	}
}

func trainConfig(cli *CLI, settings config.Training) classifier.TrainConfig {
	tc := classifier.DefaultTrainConfig()
	tc.Epochs = settings.Epochs
	tc.BatchSize = settings.BatchSize
	tc.LearningRate = settings.LearningRate
	tc.Seed = settings.Seed
	tc.ValidationSplit = settings.ValidationSplit

	if cli.Epochs > 0 {
		tc.Epochs = cli.Epochs
	}
	if cli.BatchSize > 0 {
		tc.BatchSize = cli.BatchSize
	}
	if cli.LearningRate > 0 {
		tc.LearningRate = cli.LearningRate
	}
	if cli.Seed > 0 {
		tc.Seed = cli.Seed
	}
	if cli.ValidationSplit >= 0 {
		tc.ValidationSplit = cli.ValidationSplit
	}
	tc.Shuffle = !cli.NoShuffle
	return tc
}

func run(ctx context.Context, cli *CLI) error {
	cfg, err := config.LoadTools()
	if err != nil {
		return err
	}
	tc := trainConfig(cli, cfg.Train)
	if err := tc.Validate(); err != nil {
		return err
	}

	x, y, err := dataset.LoadPair(cli.Features, cli.Labels)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d examples from %s and %s\n", x.Len(), cli.Features, cli.Labels)

	net, err := classifier.NewNetwork(classifier.DefaultArchitecture(), tc.Seed)
	if err != nil {
		return err
	}

	tc.OnEpoch = func(s classifier.EpochStats) {
		if s.HasValidation {
			log.Printf("Epoch %d/%d - loss: %.4f - accuracy: %.4f - val_loss: %.4f - val_accuracy: %.4f (%s)\n",
				s.Epoch, tc.Epochs, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy, s.Duration.Round(time.Millisecond))
			return
		}
		log.Printf("Epoch %d/%d - loss: %.4f - accuracy: %.4f (%s)\n",
			s.Epoch, tc.Epochs, s.Loss, s.Accuracy, s.Duration.Round(time.Millisecond))
	}

	hist, err := classifier.Fit(ctx, net, x, y, tc)
	if err != nil {
		return err
	}

	last := hist.Last()
	summary := classifier.TrainingSummary{
		TrainedAt:    time.Now().UTC(),
		Epochs:       tc.Epochs,
		BatchSize:    tc.BatchSize,
		LearningRate: tc.LearningRate,
		Examples:     x.Len(),
		FinalLoss:    last.Loss,
		FinalAcc:     last.Accuracy,
	}
	if err := classifier.SaveCheckpoint(cli.Output, net, summary); err != nil {
		return err
	}
	log.Printf("Saved model to %s\n", cli.Output)
	return nil
}
