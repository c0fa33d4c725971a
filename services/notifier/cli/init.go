package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultNotifierYAML = `# Care tasks notifier config
# Priority: CLI flag > environment > this file > default.

kafka_brokers: "localhost:9092"
group_id:      "care-notifier"
log_level:     "info"

# Delivery ledger. Leave empty to run without duplicate suppression.
redis_addr:    "localhost:6379"

channel:          "log"    # email | webhook | log
max_retries:      3
delivery_timeout: "30s"
retry_base_delay: "1s"     # waits 1s, 4s, 9s ... capped at retry_max_delay
retry_max_delay:  "30s"
metrics_addr:     ":9093"

# --- email (local MailHog) ---
smtp_host:    "localhost"
smtp_port:    1025
smtp_from:    "reminders@care.local"
email_domain: "care.local"   # appended to assignee ids that are not addresses
# smtp_username: ""
# smtp_password: ""

# --- webhook ---
# webhook_url:     "https://hooks.example.com/care-reminders"
# webhook_timeout: "15s"

# otel_endpoint: "localhost:4318"  # uncomment to enable OpenTelemetry tracing
# otel_sample_ratio: 1.0
`

func newInitCmd(serviceName, defaultYAML string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/.go-care-tasks/%s.yaml.
Fails if the file already exists unless --force is passed.`, serviceName, serviceName),
		RunE: func(_ *cobra.Command, _ []string) error {
			dest := cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ".go-care-tasks", serviceName+".yaml")
			}
			return writeDefaultConfig(dest, defaultYAML, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}

func writeDefaultConfig(dest, content string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if !force {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", dest, err)
		}
	}
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("config written to %s\n", dest)
	return nil
}
