package runner

import "time"

type Options struct {
	// Run identity
	RunID string
	Mode  string // "dry-run" or "apply"

	// Repository-config and template resolution
	LocalConfigPath string
	TemplatesPath   string

	// Throttles and caps
	MaxNewTickets int           // 0 disables the creation cap
	PRDelay       time.Duration // pause between pull requests

	// Report output
	OutputDir          string
	EnableExportReport bool
}
