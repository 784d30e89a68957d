// Entry point for the flight delay training pipeline
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aeroml/flightdelay/pkg/config"
	storage "github.com/aeroml/flightdelay/pipelines/Storage"
	"github.com/aeroml/flightdelay/utils"
)

const flightdelayVersion = "v0.1.0"

func main() {
	var configPath, dataPath string
	listRuns := false
	runsLimit := 20

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help", "help":
			printHelp()
			return
		case "-v", "--version":
			fmt.Println("flightdelay version:", flightdelayVersion)
			return
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a file path")
				os.Exit(1)
			}
			configPath = args[i]
		case "--data":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --data requires a CSV path")
				os.Exit(1)
			}
			dataPath = args[i]
		case "--runs":
			listRuns = true
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					runsLimit = n
					i++
				}
			}
		default:
			fmt.Fprintf(os.Stderr, "Unknown argument %q. Use --help for usage.\n", args[i])
			os.Exit(1)
		}
	}

	if dataPath != "" {
		// The flag rides the documented env override so it lands before
		// config validation.
		os.Setenv("FLIGHTDELAY_DATA_PATH", dataPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := utils.InitLogger(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	if listRuns {
		if err := printRuns(cfg, runsLimit); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in configuration: %v\n", err)
		os.Exit(1)
	}

	report, err := runPipeline(cfg)
	if err != nil {
		utils.GetLogger().Error("Run failed", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReport(report)

	// The run itself succeeded; artifact problems are reported, not fatal.
	if cfg.Storage.ReportPath != "" {
		if err := writeReportJSON(cfg.Storage.ReportPath, report); err != nil {
			utils.GetLogger().Error("Failed to write report JSON", err)
		}
	}
	if err := storeRun(cfg, report); err != nil {
		utils.GetLogger().Error("Failed to store run report", err)
	}
}

// printRuns lists the most recent stored runs
func printRuns(cfg *config.Config, limit int) error {
	store, err := storage.NewRunStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %8s  %8s  %8s  %s\n",
		"RUN", "CREATED", "TRAIN", "TEST", "BEST AUC", "DATA")
	for _, s := range summaries {
		fmt.Printf("%-36s  %-20s  %8d  %8d  %8.4f  %s\n",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.TrainRows, s.TestRows, s.BestAUC, s.DataPath)
	}
	return nil
}

func printHelp() {
	fmt.Println("Usage:")
	fmt.Println("  --config <path>   Load configuration from a YAML file")
	fmt.Println("  --data <path>     Train on the given CSV (overrides config)")
	fmt.Println("  --runs [n]        List the n most recent stored runs (default 20)")
	fmt.Println("  -h, --help, help  Show this help message")
	fmt.Println("  -v, --version     Show version")
}
