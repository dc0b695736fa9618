package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"apexdispatch/internal/config"
	"apexdispatch/internal/database"
)

func main() {
	cfg, _, err := config.Load("")
	if err != nil {
		fmt.Printf("ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Checking %s database connection...\n", cfg.DatabaseDriver)

	db, err := database.New(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Printf("ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	jobs, err := db.CountJobs(ctx)
	if err != nil {
		fmt.Printf("ERROR: Failed to query processing jobs (run `dispatcher migrate`?): %v\n", err)
		os.Exit(1)
	}
	tasks, err := db.CountTasks(ctx)
	if err != nil {
		fmt.Printf("ERROR: Failed to query upscaling tasks: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("SUCCESS: Database connection OK (%d processing jobs, %d upscaling tasks)\n", jobs, tasks)
}
