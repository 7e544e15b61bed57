// Package startup holds the process bootstrap helpers shared by jobflow's
// entrypoint: the startup banner and logger construction.
package startup

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/banner"

	"github.com/ternarybob/jobflow/internal/config"
	"github.com/ternarybob/jobflow/internal/version"
)

// PrintBanner renders the startup banner to stdout and logs the same
// information as a structured event.
func PrintBanner(cfg *config.Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(72)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("JOBFLOW")
	b.PrintCenteredText("Data-transformation job orchestrator")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version.Get(), 14)
	b.PrintKeyValue("Environment", cfg.Environment, 14)
	b.PrintKeyValue("Reaper period", cfg.Reaper.Period().String(), 14)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version.Get()).
		Str("environment", cfg.Environment).
		Msg("jobflow starting")
}

// NewLogger builds the arbor logger from cfg, matching the console/file
// writer selection the teacher's entrypoint performs.
func NewLogger(cfg *config.Config) arbor.ILogger {
	logger := arbor.NewLogger()

	hasConsole := false
	hasFile := false
	for _, out := range cfg.Logging.Output {
		switch out {
		case "stdout", "console":
			hasConsole = true
		case "file":
			hasFile = true
		}
	}

	if hasFile {
		logger = logger.WithFileWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeFile,
			FileName:         "logs/jobflowd.log",
			TimeFormat:       cfg.Logging.TimeFormat,
			MaxSize:          100 * 1024 * 1024,
			MaxBackups:       3,
			TextOutput:       cfg.Logging.Format != "json",
			DisableTimestamp: false,
		})
	}
	if hasConsole || !hasFile {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       cfg.Logging.TimeFormat,
			TextOutput:       cfg.Logging.Format != "json",
			DisableTimestamp: false,
		})
	}

	return logger.WithLevelFromString(cfg.Logging.Level)
}
