package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledgerbak/internal/app"
	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, backup.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// readConfig loads the config file named by the application defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.New(ctx, cfg, app.Options{Console: os.Stderr, Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal without echo. With confirm set the
// passphrase is asked for twice and must match.
func readPassphrase(prompt string, confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("a terminal is required to read the passphrase")
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(first) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:   "ledgerbak",
	Short: "SQLite backup pipeline",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Backups:  %s\n", cfg.Storage.RemotePath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Work Dir:   %s\n", cfg.WorkDir)
		fmt.Printf("Storage:    %s\n", cfg.Storage.Type)
		fmt.Printf("Snapshot:   %s\n", cfg.Backup.SnapshotMethod)
		fmt.Printf("Encryption: %s\n", orNone(cfg.Encryption.Type))
		fmt.Printf("History:    %s\n", orNone(cfg.History.Type))
		fmt.Printf("Watch:      %t\n", cfg.Backup.Watch)
		fmt.Printf("Schedule:   %s\n", orNone(cfg.Backup.Schedule))
		fmt.Printf("Listen:     %s\n", orNone(cfg.Server.Listen))
		fmt.Printf("Resources:\n")
		for _, r := range cfg.Backup.Resources {
			fmt.Printf("  %s\n", r)
		}
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backup worker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup [PATH...]",
	Short: "Back up the given databases, or every configured resource",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cycles, err := a.BackupNow(ctx, args)
		summary := app.NewRunSummary("backup")
		for _, c := range cycles {
			summary.Add(c)
			if c.Status == backup.CycleSuccess {
				fmt.Printf("%s  %s  %d\n", c.ResourcePath, c.DestinationName, c.Size)
			} else {
				fmt.Printf("%s  %s  %s\n", c.ResourcePath, c.Status, c.Error)
			}
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Println(summary)
		if n := summary.Failed(); n > 0 {
			return fmt.Errorf("%d of %d backup(s) failed", n, summary.Total())
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify storage, resources and history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, r := range a.Check(cmd.Context()) {
			if r.Err != nil {
				failed++
				fmt.Printf("FAIL  %s: %v\n", r.Name, r.Err)
				continue
			}
			fmt.Printf("ok    %s\n", r.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup cycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		cycles, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(cycles) == 0 {
			fmt.Println("No backup cycles recorded.")
			return nil
		}

		for _, c := range cycles {
			fmt.Printf("%s  %-15s  %s  %8s  %s\n",
				c.StartedAt.Local().Format("2006-01-02 15:04:05"),
				c.Status,
				c.ResourcePath,
				c.Duration().Truncate(time.Millisecond),
				c.DestinationName,
			)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase for the private key: ", true)
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return err
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		if cfg.Encryption.Type == "" {
			fmt.Println(`Set [encryption] type = "age" to encrypt new backups.`)
		}
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt a downloaded backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return fmt.Errorf("--output is required")
		}

		cfg, err := readConfig()
		if err != nil {
			return err
		}

		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening backup: %w", err)
		}
		defer in.Close()

		passphrase, err := readPassphrase("Passphrase: ", false)
		if err != nil {
			return err
		}

		out, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		if err := app.Decrypt(cfg, passphrase, in, out); err != nil {
			out.Close()
			os.Remove(output)
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("closing output: %w", err)
		}

		fmt.Printf("Decrypted %s to %s\n", args[0], output)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of cycles to show")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
	decryptCmd.Flags().StringP("output", "o", "", "Path of the decrypted database")
}
