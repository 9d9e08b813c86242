// Command replay runs notification files through the exporter's processor and prints the
// metrics file each of them would produce.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/openstack/ironic-prometheus-exporter/collector"
	"github.com/openstack/ironic-prometheus-exporter/config"
	"github.com/openstack/ironic-prometheus-exporter/notifier"
)

func main() {
	var (
		configFile = flag.String("config.file", "", "Exporter configuration file, used for json_metrics (optional)")
		verbose    = flag.Bool("verbose", false, "Log skipped sensors and categories")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] notification.json...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var jsonMetrics []config.JSONMetricsConfig
	if *configFile != "" {
		cfg, err := config.NewConfigFromFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *configFile, err)
		}
		jsonMetrics = cfg.JSONMetrics
	}

	descriptions, err := collector.LoadDescriptions()
	if err != nil {
		log.Fatal(err)
	}
	processor, err := collector.NewProcessor(logger, descriptions, jsonMetrics)
	if err != nil {
		log.Fatal(err)
	}

	failed := false
	for _, file := range flag.Args() {
		if err := replay(context.Background(), processor, file); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func replay(ctx context.Context, processor *collector.Processor, file string) error {
	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	n, err := notifier.DecodeMessage(body)
	if err != nil {
		return err
	}
	res, err := processor.Process(ctx, n)
	if err != nil {
		return err
	}
	fmt.Printf("# file: %s\n", res.FileKey)
	return res.Registry.WriteText(os.Stdout)
}
