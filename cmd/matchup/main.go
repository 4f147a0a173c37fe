package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/matchup/internal/timeutil"
	"github.com/banshee-data/matchup/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	a := &app{stdout: os.Stdout, stderr: os.Stderr, clock: timeutil.RealClock{}}
	command, args := os.Args[1], os.Args[2:]

	var err error
	switch command {
	case "run":
		err = a.handleRun(args)
	case "ingest":
		err = a.handleIngest(args)
	case "runs":
		err = a.handleRuns(args)
	case "qc":
		err = a.handleQC(args)
	case "migrate":
		err = a.handleMigrate(args)
	case "version":
		fmt.Printf("matchup version %s\n", version.String())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "matchup %s: %v\n", command, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`matchup - find coincident observations of two sensors

Usage: matchup <command> [options]

Commands:
  ingest     Add sensor products to the observation catalog
  run        Run a matchup use case over a day-of-year window
  runs       List stored runs
  qc         Write summary, daily chart and location plot of a stored run
  migrate    Apply or inspect catalog schema migrations (up, down, version)
  version    Show matchup version
  help       Show this help message

Common Flags:
  -config <file>   System config (YAML): catalog path, output directory, readers
  -v               Log per-stage counts and timings
  -vv              Also log per-sample detail

Examples:
  matchup migrate -config system.yaml up
  matchup ingest -config system.yaml -sensor avhrr-n18 data/avhrr/*.csv
  matchup run -config system.yaml -usecase atsr-avhrr.json -start 2008-120 -end 2008-122 -v
  matchup qc -config system.yaml -run <run id> -out qc/`)
}
