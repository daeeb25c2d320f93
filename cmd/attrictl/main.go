// main.go - Admin control tool for Attriflow
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"attriflow/internal"
	"attriflow/internal/attribution"
	"attriflow/internal/journeys"
	"attriflow/internal/seeder"
	"attriflow/internal/users"

	"log/slog"
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
	&CreateAdminUserCommand{},
	&ChangeAdminPasswordCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&RecalculateCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	// Parse global flags
	flag.Parse()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Set up context with cancellation for cleanup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals in a separate goroutine
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	// Parse command and arguments
	cmdName, args := parseArgs()

	// Find the requested command
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	// Try to initialize the app
	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	// Ensure app is cleaned up
	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	// Execute the command
	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// CreateAdminUserCommand implements the command to create an initial admin user
type CreateAdminUserCommand struct{}

// Name returns the command name
func (c *CreateAdminUserCommand) Name() string {
	return "create-admin-user"
}

// Description returns the command description
func (c *CreateAdminUserCommand) Description() string {
	return "Creates an initial admin user"
}

// Execute implements the create-admin-user command
func (c *CreateAdminUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}

	email := args[0]

	var password string
	if len(args) >= 2 {
		password = args[1]
	} else {
		var err error
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}

	log.Printf("Setting up initial user with email: %s", email)

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}
	db := app.DBManager.GetConnection()

	// Create the admin user
	if err := users.CreateAdminUser(db, email, password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			log.Printf("User %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// ChangeAdminPasswordCommand implements password update for existing admin user
type ChangeAdminPasswordCommand struct{}

// Name returns the command name
func (c *ChangeAdminPasswordCommand) Name() string {
	return "change-admin-password"
}

// Description returns the command description
func (c *ChangeAdminPasswordCommand) Description() string {
	return "Changes the password of an existing admin user"
}

// Execute implements the change-admin-password command
func (c *ChangeAdminPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := strings.TrimSpace(args[0])
	if email == "" {
		return fmt.Errorf("email is required")
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}
	db := app.DBManager.GetConnection()

	// Ensure user exists
	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	var newPassword string
	if len(args) >= 2 {
		newPassword = args[1]
	} else {
		var err error
		newPassword, err = promptPassword()
		if err != nil {
			return err
		}
	}

	if newPassword == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := users.ChangePassword(db, email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Print("Enter new password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm new password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}

	if string(passBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(passBytes), nil
}

// RecalculateCommand rebuilds attribution results for a model
type RecalculateCommand struct{}

func (c *RecalculateCommand) Name() string { return "recalculate" }
func (c *RecalculateCommand) Description() string {
	return "Recalculates attribution results for a model across all journeys"
}

func (c *RecalculateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <model-id>", c.Name())
	}
	modelID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid model id %q: %w", args[0], err)
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}
	db := app.DBManager.GetConnection()

	recalculated, err := attribution.RecalculateModel(db, slog.Default(), uint(modelID))
	if err != nil {
		return fmt.Errorf("recalculation failed: %w", err)
	}

	log.Printf("Recalculated %d journeys under model %d", recalculated, modelID)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

// Name returns the command name
func (c *StatusCommand) Name() string {
	return "status"
}

// Description returns the command description
func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

// Execute implements the status command
func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	// Get database connection
	db := app.DBManager.GetConnection()

	// Check database status
	var userCount int64
	if err := db.Model(&users.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var modelCount, journeyCount, resultCount int64
	if err := db.Model(&attribution.AttributionModel{}).Count(&modelCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&journeys.CustomerJourney{}).Count(&journeyCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&attribution.AttributionResult{}).Count(&resultCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Users: %d", userCount)
	log.Printf("- Attribution models: %d", modelCount)
	log.Printf("- Journeys: %d", journeyCount)
	log.Printf("- Attribution results: %d", resultCount)

	// Check database statistics
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

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

// Name returns the command name
func (c *HelpCommand) Name() string {
	return "help"
}

// Description returns the command description
func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

// Execute implements the help command
func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: attrictl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
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

// SeedCommand populates the DB with demo journeys and attribution data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample journey data" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	touches := fs.Int("touches", 10000, "number of touch events to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *touches)
	return se.Run(ctx)
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
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

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: attrictl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
