package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ytdlp-telegram-bot/internal/auth"
	"ytdlp-telegram-bot/internal/config"
	"ytdlp-telegram-bot/internal/diagnostics"
	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/logging"
	"ytdlp-telegram-bot/internal/users"
)

// ErrDiagnosticsFailed is returned by doctor when a required check fails.
var ErrDiagnosticsFailed = errors.New("diagnostics reported failures")

type rootFlags struct {
	configFile string
	envFiles   []string
}

// NewRootCommand builds the ytbot command tree. Running without a
// subcommand starts the bot.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "ytbot",
		Short:         "Telegram bot that downloads YouTube links with yt-dlp",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd, flags)
			},
		},
		newDoctorCommand(flags),
		newTokenCommand(flags),
		newUsersCommand(flags),
	)
	return root
}

func runBot(cmd *cobra.Command, flags *rootFlags) error {
	settings, err := config.Load(flags.configFile, flags.envFiles...)
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(settings, log)
	if err != nil {
		return fmt.Errorf("bootstrap app: %w", err)
	}
	log.WithField("data_dir", settings.DataDir).Info("bot started")
	return app.Run(ctx)
}

func newDoctorCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(flags.configFile, flags.envFiles...)
			if err != nil && !errors.Is(err, config.ErrInvalidSettings) {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			report := diagnostics.NewChecker().Run(settings)
			printReport(cmd, report)
			if report.HasFailures {
				return ErrDiagnosticsFailed
			}
			return nil
		},
	}
}

func newTokenCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a registration code for a chat user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("user id %q is not a number", args[0])
			}
			settings, err := loadLenient(flags)
			if err != nil {
				return err
			}

			code, err := auth.NewCodes(settings.JWTSecret, settings.TokenTTL).Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func newUsersCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadLenient(flags)
			if err != nil {
				return err
			}

			quiet := logrus.New()
			quiet.SetOutput(cmd.ErrOrStderr())
			store, err := users.OpenFileStore(settings.UsersFile, quiet)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tNAME\tUSERNAME\tAUTH")
			for _, key := range store.Keys() {
				record, _ := store.Get(key)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", key, record.DisplayName(), record.Username, record.Auth)
			}
			return w.Flush()
		},
	}
}

// loadLenient loads settings for offline commands that do not need every
// required value.
func loadLenient(flags *rootFlags) (domain.Settings, error) {
	settings, err := config.Load(flags.configFile, flags.envFiles...)
	if err != nil && !errors.Is(err, config.ErrInvalidSettings) {
		return settings, err
	}
	return settings, nil
}

func printReport(cmd *cobra.Command, report domain.DiagnosticReport) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, item := range report.Items {
		fmt.Fprintf(w, "[%s]\t%s\t%s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(w, "\t\t%s\n", item.Hint)
		}
	}
	_ = w.Flush()
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
