package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"vmgd-scraper/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	source := flag.String("path", "file://migrations", "Migration source URL")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction: %q (must be \"up\" or \"down\")\n", *direction)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	m, err := migrate.New(*source, cfg.Database.Postgres().URL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	fmt.Printf("Running migrations %s from %s\n", *direction, *source)

	if *direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to apply")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", *direction, err)
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
