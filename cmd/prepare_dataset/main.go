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

	"voiceguard/config"
	"voiceguard/dataset"
	"voiceguard/featurecache"
	"voiceguard/mfcc"
	"voiceguard/models"
	"voiceguard/utils"
)

// CLI defines the command-line interface
type CLI struct {
	Root        string   `short:"r" default:"dataset" help:"Dataset root containing fake/ and real/"`
	FeaturesOut string   `default:"X.msgpack" help:"Feature array output file"`
	LabelsOut   string   `default:"y.msgpack" help:"Label array output file"`
	CacheDir    string   `help:"Feature cache directory (default from VOICEGUARD_CACHE_DIR, empty disables the cache)"`
	Ext         []string `help:"Audio extensions to include (.mp3 and .flac need ffmpeg)" default:".wav"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("prepare_dataset"),
		kong.Description("Extract MFCC features from fake/ and real/ clips and write the training arrays"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger := utils.GetLogger()

	if err := run(ctx, cli); err != nil {
		logger.ErrorContext(ctx, "dataset preparation failed", slog.Any("error", xerrors.New(err)))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cli *CLI) error {
	cfg, err := config.LoadTools()
	if err != nil {
		return err
	}
	cacheDir := cli.CacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}

	var cache *featurecache.Cache
	if cacheDir != "" {
		cache, err = featurecache.Open(featurecache.Options{Dir: cacheDir})
		if err != nil {
			return err
		}
		defer cache.Close()
		log.Printf("Using feature cache at %s\n", cacheDir)
	}

	started := time.Now()
	builder := dataset.NewBuilder(mfcc.Default(), dataset.Options{
		Root:       cli.Root,
		Extensions: cli.Ext,
		Cache:      cache,
	})
	ds, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	if err := ds.Save(cli.FeaturesOut, cli.LabelsOut); err != nil {
		return err
	}

	counts := ds.Counts()
	log.Printf("Processed %d files in %s (fake: %d, real: %d)\n",
		ds.Len(), time.Since(started).Round(time.Millisecond), counts[models.LabelFake], counts[models.LabelReal])
	log.Printf("Wrote %s and %s\n", cli.FeaturesOut, cli.LabelsOut)
	return nil
}
