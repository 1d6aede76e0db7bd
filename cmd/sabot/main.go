package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sabot-go/internal/app"
	"sabot-go/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Fetch", "Run").
func newApp(operation string) (*app.App, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("passphrase input requires a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "sabot",
	Short:        "Social media aggregation relay",
	SilenceUsage: true,
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
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, paths.Home)

		if err := config.Init(paths.ConfigFile, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigFile)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", paths.Home)
		fmt.Printf("Secrets:     %s\n", cfg.EnvFile)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		cfg, err := config.ReadFromFile(paths.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigFile)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Ledger:      %s %s\n", cfg.Ledger.Type, cfg.Ledger.Path)
		fmt.Printf("Media Root:  %s\n", cfg.Media.Root)
		fmt.Printf("Relay:       %s\n", cfg.Relay.Type)
		for _, s := range cfg.Sources {
			fmt.Printf("Source:      %s (%s)\n", s.Platform, s.Type)
		}
		fmt.Printf("Poller:      every %ds, targets %s\n", cfg.Poller.IntervalSeconds, strings.Join(cfg.Poller.Targets, ", "))
		if cfg.Archive.Type != "" {
			fmt.Printf("Archive:     %s (encrypt=%v)\n", cfg.Archive.Type, cfg.Archive.Encrypt)
		}
		if cfg.Web.Listen != "" {
			fmt.Printf("HTTP API:    %s\n", cfg.Web.Listen)
		}
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch PLATFORM ACCOUNT|LINK",
	Short: "Fetch and relay new content for an account or a single link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Fetch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		report, err := a.Fetch(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		for _, it := range report.Items {
			line := fmt.Sprintf("%-16s %s", it.State, it.ContentID)
			if it.Files > 0 {
				line += fmt.Sprintf("  files:%d", it.Files)
			}
			if it.Failed > 0 {
				line += fmt.Sprintf("  unavailable:%d", it.Failed)
			}
			if it.Err != nil {
				line += "  " + it.Err.Error()
			}
			fmt.Println(line)
		}
		fmt.Println(report.Summary())
		if report.Err != nil {
			return fmt.Errorf("fetch failed")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored content",
}

var historyAccountsCmd = &cobra.Command{
	Use:   "accounts PLATFORM",
	Short: "List accounts with history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListAccounts")
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.Accounts(args[0])
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}
		for _, acct := range accounts {
			fmt.Println(acct)
		}
		return nil
	},
}

var historyPostsCmd = &cobra.Command{
	Use:   "posts PLATFORM ACCOUNT",
	Short: "List stored content ids for an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		a, err := newApp("ListPosts")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Posts(args[0], args[1], page)
		if err != nil {
			return err
		}
		if p.Total == 0 {
			fmt.Println("No posts found.")
			return nil
		}
		for _, id := range p.Items {
			fmt.Println(id)
		}

		nav := fmt.Sprintf("page %d/%d (%d total)", p.Index+1, p.Pages, p.Total)
		if p.HasPrev {
			nav += fmt.Sprintf("  prev: --page %d", p.Index-1)
		}
		if p.HasNext {
			nav += fmt.Sprintf("  next: --page %d", p.Index+1)
		}
		fmt.Println(nav)
		return nil
	},
}

var historyMediaCmd = &cobra.Command{
	Use:   "media PLATFORM ACCOUNT ID",
	Short: "Show stored media files for a content item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ResolveMedia")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.Media(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "View pipeline run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListRuns")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.Runs(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-11s  %-24s  %s  %-7s  d:%d s:%d f:%d  %s\n",
				r.ID[:min(8, len(r.ID))],
				r.Trigger,
				string(r.Platform)+"/"+r.Account,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Delivered, r.Skipped, r.Failed,
				duration,
			)
		}
		return nil
	},
}

// purge command
var purgeCmd = &cobra.Command{
	Use:   "purge PLATFORM ACCOUNT ID",
	Short: "Delete stored media for a content item (it stays seen)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Purge")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Purge(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d file(s)\n", n)
		return nil
	},
}

// repair command
var repairCmd = &cobra.Command{
	Use:   "repair PLATFORM ACCOUNT ID",
	Short: "Drop a media mapping whose files are gone",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Repair")
		if err != nil {
			return err
		}
		defer a.Close()

		repaired, err := a.Repair(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if repaired {
			fmt.Println("Stale mapping removed.")
		} else {
			fmt.Println("Nothing to repair.")
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the HTTP API and poll configured targets until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Run")
		if err != nil {
			return err
		}
		defer a.Close()

		poll := a.Config().Poller.Autostart
		if cmd.Flags().Changed("poll") {
			poll, _ = cmd.Flags().GetBool("poll")
		}

		ctx, cancel := signalContext()
		defer cancel()

		return a.Run(ctx, poll)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		enc := a.Config().Encryption
		fmt.Printf("Public key:  %s\n", enc.PublicKeyPath)
		fmt.Printf("Private key: %s\n", enc.PrivateKeyPath)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage ledger snapshots",
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local ledger with the newest archived snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveRestore")
		if err != nil {
			return err
		}
		defer a.Close()

		var pass string
		if a.ArchiveEncrypted() {
			pass, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		version, err := a.RestoreArchive(pass)
		if err != nil {
			return err
		}
		fmt.Printf("Restored ledger snapshot %d (%s)\n", version, time.Unix(version, 0).Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// history subcommands
	historyCmd.AddCommand(historyAccountsCmd)
	historyCmd.AddCommand(historyPostsCmd)
	historyPostsCmd.Flags().IntP("page", "p", 0, "Page index, starting at 0")
	historyCmd.AddCommand(historyMediaCmd)
	historyCmd.AddCommand(historyRunsCmd)
	historyRunsCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	keysCmd.AddCommand(keysInitCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)

	runCmd.Flags().Bool("poll", false, "Start the poller (default from [poller] autostart)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(archiveCmd)
}
