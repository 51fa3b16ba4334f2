// main.go - Admin control tool for the view tracker
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"viewtracker/internal"
	"viewtracker/internal/analytics"
	"viewtracker/internal/seeder"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SweepCommand{},
	&ResetProductCommand{},
	&ResetAllCommand{},
	&GenerateAPIKeyCommand{},
	&TopCommand{},
	&StatusCommand{},
	&SeedCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SweepCommand runs the data retention sweep once
type SweepCommand struct{}

func (c *SweepCommand) Name() string { return "sweep" }
func (c *SweepCommand) Description() string {
	return "Deletes view details older than the retention horizon (--days overrides the setting)"
}

func (c *SweepCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	days := fs.Int("days", -1, "retention horizon in days (defaults to the configured option)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot sweep")
	}

	horizon := *days
	if horizon < 0 {
		opts, err := app.Services.Settings.Options(ctx)
		if err != nil {
			return fmt.Errorf("failed to load options: %w", err)
		}
		horizon = opts.RetentionDays
	}

	deleted, err := app.Services.Retention.Sweep(ctx, horizon)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Deleted %d view details (horizon: %d days)\n", deleted, horizon)
	return nil
}

// ResetProductCommand clears the views of one product
type ResetProductCommand struct{}

func (c *ResetProductCommand) Name() string        { return "reset-product" }
func (c *ResetProductCommand) Description() string { return "Resets the view count and history of a product" }

func (c *ResetProductCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <product-id>", c.Name())
	}

	productID := views.ParseProductID(args[0])
	if productID == 0 {
		return fmt.Errorf("invalid product id: %q", args[0])
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot reset views")
	}

	if err := app.Services.Recorder.ResetProductViews(ctx, productID); err != nil {
		return fmt.Errorf("failed to reset product %d: %w", productID, err)
	}

	fmt.Printf("Views for product %d reset\n", productID)
	return nil
}

// ResetAllCommand clears every counter and detail row
type ResetAllCommand struct{}

func (c *ResetAllCommand) Name() string        { return "reset-all" }
func (c *ResetAllCommand) Description() string { return "Resets all view data (requires --yes)" }

func (c *ResetAllCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("reset-all", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm the reset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		return fmt.Errorf("refusing to reset all views without --yes")
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot reset views")
	}

	if err := app.Services.Recorder.ResetAllViews(ctx); err != nil {
		return fmt.Errorf("failed to reset views: %w", err)
	}

	fmt.Println("All view data reset")
	return nil
}

// GenerateAPIKeyCommand rotates the server-to-server API key
type GenerateAPIKeyCommand struct{}

func (c *GenerateAPIKeyCommand) Name() string { return "generate-api-key" }
func (c *GenerateAPIKeyCommand) Description() string {
	return "Generates a new API key for the storefront plugin, replacing the old one"
}

func (c *GenerateAPIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot generate API key")
	}

	key, err := app.Services.Settings.GenerateAPIKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	fmt.Println("New API key (shown once, store it in the plugin settings):")
	fmt.Println(key)
	return nil
}

// TopCommand prints the most viewed products
type TopCommand struct{}

func (c *TopCommand) Name() string { return "top" }
func (c *TopCommand) Description() string {
	return "Lists the most viewed products (--limit N, --days N; 0 days means all time)"
}

func (c *TopCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "number of products")
	days := fs.Int("days", 0, "only count views from the last N days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot query views")
	}

	var (
		products []analytics.ProductViews
		err      error
	)
	if *days > 0 {
		r := timeframe.NewDateRangeParser().LastNDays(*days)
		products, err = app.Services.Analytics.MostViewedInRange(ctx, r, *limit, analytics.ProductFilter{})
	} else {
		products, err = app.Services.Analytics.MostViewedAllTime(ctx, *limit, analytics.ProductFilter{})
	}
	if err != nil {
		return fmt.Errorf("failed to query popular products: %w", err)
	}

	return writeTop(os.Stdout, products, term.IsTerminal(int(os.Stdout.Fd())))
}

// writeTop renders an aligned table for a terminal and CSV otherwise.
func writeTop(w io.Writer, products []analytics.ProductViews, table bool) error {
	if table {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "RANK\tPRODUCT\tVIEWS\t")
		for i, p := range products {
			fmt.Fprintf(tw, "%d\t%d\t%d\t\n", i+1, p.ProductID, p.Views)
		}
		return tw.Flush()
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "product_id", "views"}); err != nil {
		return err
	}
	for i, p := range products {
		record := []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(uint64(p.ProductID), 10),
			strconv.FormatInt(p.Views, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection().WithContext(ctx)

	var counters, details int64
	if err := db.Model(&views.ProductCounter{}).Count(&counters).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&views.ProductView{}).Count(&details).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	opts, err := app.Services.Settings.Options(ctx)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Tracked products: %d", counters)
	log.Printf("- View details: %d", details)
	log.Printf("- Retention: %d days", opts.RetentionDays)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// SeedCommand populates the DB with sample views
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample product views" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("views", 10000, "number of views to generate")
	products := fs.Int("products", 50, "number of distinct products")
	days := fs.Int("days", 90, "spread views over the last N days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	return seeder.NewSeeder(app.DBManager.GetConnection(), slog.Default(), *count, *products, *days).Run(ctx)
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vtctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")

	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}
