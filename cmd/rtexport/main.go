package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"rtstudyexport/pkg/config"
	"rtstudyexport/pkg/export"
	"rtstudyexport/pkg/logging"
	"rtstudyexport/pkg/manifest"
)

func main() {
	// Parse command line arguments
	manifestPath := flag.String("manifest", "", "YAML study manifest describing the exportables")
	configPath := flag.String("config", "rtexport.yaml", "Configuration file (defaults are used if it does not exist)")
	outputDir := flag.String("output", "", "Output directory (overrides the manifest)")
	previews := flag.Bool("previews", false, "Save PNG previews of every slice with structures overlaid")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	log := logging.NamedLogger("rtexport", *verbose)

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Infof("Default configuration written to %s", *configPath)
		return
	}

	// Validate inputs
	if *manifestPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *previews {
		cfg.Output.SavePreviews = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	if err := run(cfg, *manifestPath, *outputDir); err != nil {
		log.Errorf("Export failed: %s", export.Reason(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, manifestPath, outputDir string) error {
	log := logging.NamedLogger("rtexport", cfg.Output.Verbose)

	study, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	exportables, err := study.Exportables(outputDir)
	if err != nil {
		return err
	}
	if len(exportables) > 0 {
		outputDir = exportables[0].Directory
	}
	if outputDir == "" {
		outputDir = "."
	}

	params := export.Params{
		StrictRoles:      cfg.Export.StrictRoles,
		GenerateStudyUID: cfg.Export.GenerateStudyUID,
		WeldTolerance:    cfg.Export.WeldTolerance,
		Logger:           logging.NamedLogger("export", cfg.Output.Verbose),
	}
	writer := &studyWriter{
		log:          log,
		savePreviews: cfg.Output.SavePreviews,
		previewDir:   cfg.Output.PreviewDir,
		previewSize:  cfg.Output.PreviewSize,
		saveMeshes:   cfg.Output.SaveWorldMeshes,
		meshDir:      cfg.Output.MeshDir,
	}

	log.WithField("manifest", manifestPath).Info("Starting RT study export")
	start := time.Now()
	if err := export.NewStudyExporter(params).Run(exportables, writer); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output":  outputDir,
		"seconds": fmt.Sprintf("%.2f", time.Since(start).Seconds()),
	}).Info("Export completed successfully")
	return nil
}
