package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/infrastructure/monitoring"
	"github.com/turtacn/keystore/pkg/logger"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	verbose    bool
}

// NewRootCmd builds the keystore-admin command tree.
// NewRootCmd 构建 keystore-admin 命令树。
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "keystore-admin",
		Short: "Administer the user SSH key store",
		Long: `keystore-admin performs offline and operator tasks for the user key store:
generating and inspecting SSH keypairs, minting development tokens and
removing a user's stored keypair.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "service config file (defaults to the service search paths)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newInspectCmd(),
		newTokenCmd(opts),
		newDeleteKeyCmd(opts),
	)
	return cmd
}

// Execute runs the CLI and exits non-zero on error.
// Execute 运行 CLI，出错时以非零状态退出。
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger logs to stderr so command output on stdout stays pipeable.
func (o *rootOptions) newLogger() logger.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log, err := monitoring.NewZapLogger(&config.LogConfig{Level: level, Format: "console", OutputPath: "stderr"})
	if err != nil {
		return logger.NewNoopLogger()
	}
	return log
}
