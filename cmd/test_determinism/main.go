package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/alecthomas/kong"

	"voiceguard/mfcc"
	"voiceguard/wav"
)

// CLI defines the command-line interface
type CLI struct {
	File string `arg:"" type:"existingfile" help:"Audio file to extract features from"`
	Runs int    `short:"n" default:"5" help:"Number of extractions to compare"`
}

// Checks that decoding plus MFCC extraction is bit-for-bit repeatable.
func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("test_determinism"),
		kong.Description("Extract MFCC features from one file several times and compare the results"),
		kong.UsageOnError(),
	)
	if cli.Runs < 2 {
		log.Fatal("need at least 2 runs")
	}

	log.Printf("Testing determinism with: %s\n", cli.File)
	extractor := mfcc.Default()

	var runs []*mfcc.Matrix
	for i := 0; i < cli.Runs; i++ {
		w, err := wav.Load(context.Background(), cli.File, wav.TargetSampleRate)
		if err != nil {
			log.Fatalf("Run %d failed: %v", i+1, err)
		}
		m, err := extractor.Extract(w.Samples, w.SampleRate)
		if err != nil {
			log.Fatalf("Run %d failed: %v", i+1, err)
		}
		runs = append(runs, m)
		log.Printf("Run %d: c0..c4 of frame 0: %.6f, %.6f, %.6f, %.6f, %.6f",
			i+1, m.At(0, 0), m.At(1, 0), m.At(2, 0), m.At(3, 0), m.At(4, 0))
	}

	fmt.Println("\n=== Determinism Check ===")
	identical := true
	maxDiff := 0.0
	for i := 1; i < len(runs); i++ {
		if runs[i].Equal(runs[0]) {
			continue
		}
		identical = false
		for j := range runs[0].Data {
			diff := math.Abs(float64(runs[0].Data[j] - runs[i].Data[j]))
			maxDiff = math.Max(maxDiff, diff)
		}
	}

	if identical {
		fmt.Println("All runs produced IDENTICAL features")
		return
	}
	fmt.Printf("Feature extraction is NON-DETERMINISTIC (max diff: %e)\n", maxDiff)
	os.Exit(1)
}
