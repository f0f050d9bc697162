package runner

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ccd-ops/renovate-jira/pkg/models"
)

// Output logs the run summary and exports the report file when enabled.
func (r *Runner) Output(report *models.RunReport) error {
	logger.Info("Output: starting...")

	logger.Infof("Summary: processed=%d created=%d tracked=%d skipped=%d errors=%d",
		report.Processed, report.Created, report.Tracked, report.Skipped, report.Errors)
	if report.Halted != "" {
		logger.Warnf("Run halted early: %s", report.Halted)
	}

	if err := r.outputReportJson(report); err != nil {
		return err
	}
	logger.Info("Output: done.")
	return nil
}

// Exporting report json file to output directory if enabled
func (r *Runner) outputReportJson(report *models.RunReport) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	logger.Info("OutputJson: starting...")

	resultsJson, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return err
	}
	filePath := filepath.Join(r.Options.OutputDir, "report.json")
	if err := os.WriteFile(filePath, resultsJson, 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write report data to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written report data to file")
	return nil
}
