package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"treebak/internal/app"
	"treebak/internal/config"
	"treebak/internal/treebak"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (one of the app.Op constants).
func newApp(operation string) (*app.App, error) {
	cfg, err := loadConfig(operation)
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// loadConfig reads the config file. A backup still runs on the built-in
// defaults when no home directory can be determined.
func loadConfig(operation string) (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		if operation == app.OpBackup {
			return config.NewConfig("", ""), nil
		}
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// locateRoot finds the repository root above the working directory.
func locateRoot(a *app.App) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return a.LocateRoot(cwd)
}

// runBackup is the default action. Every failure is reported on stdout and
// the process still exits 0.
func runBackup(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if err := backup(w); err != nil {
		fmt.Fprintf(w, "Error during backup: %v\n", err)
	}
	return nil
}

func backup(w io.Writer) error {
	a, err := newApp(app.OpBackup)
	if err != nil {
		return err
	}
	defer a.Close()

	root, err := locateRoot(a)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Repository root detected at: %s\n", root)

	rec, err := a.Backup(root)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s successfully backed up to '%s'.\n", a.Layout().Label, rec.Destination)
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "treebak",
	Short:        "Snapshot a repository's migrations generator tests",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBackup,
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

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		cfg, err := config.Load(defaults["config_path"], defaults["base_dir"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Source:     %s\n", cfg.Backup.Source)
		fmt.Printf("Prefix:     %s\n", cfg.Backup.Prefix)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OpPush)
		if err != nil {
			return err
		}
		defer a.Close()

		name, err := a.ValidateVault()
		if err != nil {
			return err
		}
		fmt.Printf("Vault %s is ready\n", name)
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
		a, err := newApp(app.OpKeysInit)
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		pub, err := a.KeysInit(passphrase)
		if err != nil {
			return err
		}
		fmt.Println("Encryption keys created.")
		if pub != "" {
			fmt.Printf("Public key: %s\n", pub)
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the current repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OpList)
		if err != nil {
			return err
		}
		defer a.Close()

		root, err := locateRoot(a)
		if err != nil {
			return err
		}

		entries, err := a.ListBackups(root)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No backups found.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.Time.Local().Format(timeLayout), e.Name)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(app.OpHistory)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}

		for _, r := range recs {
			fmt.Println(formatRecord(r))
		}
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push NAME",
	Short: "Upload a backup to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OpPush)
		if err != nil {
			return err
		}
		defer a.Close()

		root, err := locateRoot(a)
		if err != nil {
			return err
		}

		rec, err := a.Push(root, args[0])
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Printf("Pushed %d file(s) to %s\n", rec.Objects, rec.VaultName)
		return nil
	},
}

// pushes command
var pushesCmd = &cobra.Command{
	Use:   "pushes NAME",
	Short: "View the push history of a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OpHistory)
		if err != nil {
			return err
		}
		defer a.Close()

		pushes, err := a.ListPushes(args[0])
		if err != nil {
			return err
		}

		if len(pushes) == 0 {
			fmt.Printf("No pushes recorded for %s.\n", args[0])
			return nil
		}

		for _, p := range pushes {
			fmt.Println(formatPush(p))
		}
		return nil
	},
}

// pull command
var pullCmd = &cobra.Command{
	Use:   "pull NAME",
	Short: "Restore a backup from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(app.OpPull)
		if err != nil {
			return err
		}
		defer a.Close()

		root, err := locateRoot(a)
		if err != nil {
			return err
		}

		need, err := a.PullNeedsPassphrase(args[0])
		if err != nil {
			return err
		}
		var passphrase string
		if need {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		written, err := a.Pull(root, args[0], passphrase)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		fmt.Printf("Restored %d file(s) into %s\n", len(written), args[0])
		return nil
	},
}

// timeLayout is used for every timestamp shown to the user, in local time.
const timeLayout = "2006-01-02 15:04:05"

func formatRecord(r *treebak.Record) string {
	duration := ""
	if d := r.Duration(); d > 0 {
		duration = d.Truncate(time.Millisecond).String()
	}
	return fmt.Sprintf("%s  %-8s  %5d files  %-10s  %s",
		r.StartedAt.Local().Format(timeLayout),
		r.Status,
		r.Files,
		duration,
		r.Destination,
	)
}

func formatPush(p *treebak.PushRecord) string {
	mode := "plain"
	if p.Encrypted {
		mode = "encrypted"
	}
	return fmt.Sprintf("%s  %-12s  %5d files  %-9s  %d bytes",
		p.PushedAt.Local().Format(timeLayout),
		p.VaultName,
		p.Objects,
		mode,
		p.Bytes,
	)
}

// readPassphrase prompts on stderr and reads a line from the terminal
// without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Back up the migrations generator tests (default action)",
		Args:  cobra.NoArgs,
		RunE:  runBackup,
	})
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pushesCmd)
	rootCmd.AddCommand(pullCmd)
}
