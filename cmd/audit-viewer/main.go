package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
	"github.com/ducminhle1904/portfolio-risk-governor/pkg/reporting"
)

func main() {
	var (
		dir     = flag.String("dir", "audit", "Audit log directory")
		date    = flag.String("date", "", "UTC day to load (YYYY-MM-DD, default today)")
		latest  = flag.Bool("latest", false, "Show only the latest record")
		verify  = flag.Bool("verify", false, "Verify sequence and timestamp continuity for the day")
		xlsxOut = flag.String("xlsx", "", "Export the day to an Excel file at this path")
		csvOut  = flag.String("csv", "", "Export the day as CSV ('-' for stdout)")
	)
	flag.Parse()

	day := time.Now().UTC()
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			log.Fatalf("Invalid date %q, expected YYYY-MM-DD", *date)
		}
		day = parsed
	}

	if *latest {
		rec, err := audit.ReadLatest(*dir)
		if err != nil {
			log.Fatalf("Failed to read latest record: %v", err)
		}
		reporting.NewConsoleReporter().PrintLatest(rec)
		return
	}

	if *verify {
		count, err := audit.VerifyDay(*dir, day)
		if err != nil {
			fmt.Printf("❌ Verification failed after %d records: %v\n", count, err)
			os.Exit(1)
		}
		fmt.Printf("✅ %d records verified for %s\n", count, day.Format("2006-01-02"))
		return
	}

	records, err := audit.ReadDay(*dir, day)
	if err != nil {
		log.Fatalf("Failed to read audit day: %v", err)
	}
	if len(records) == 0 {
		fmt.Printf("No audit records for %s\n", day.Format("2006-01-02"))
		return
	}

	switch {
	case *xlsxOut != "":
		if err := reporting.NewExcelReporter().WriteDayXLSX(records, day, *xlsxOut); err != nil {
			log.Fatalf("Failed to write Excel file: %v", err)
		}
		fmt.Printf("Exported %d records to %s\n", len(records), *xlsxOut)

	case *csvOut != "":
		path := *csvOut
		if path == "-" {
			path = ""
		}
		if err := reporting.WriteDayCSV(records, path); err != nil {
			log.Fatalf("Failed to write CSV: %v", err)
		}
		if path != "" {
			fmt.Printf("Exported %d records to %s\n", len(records), path)
		}

	default:
		reporting.NewConsoleReporter().PrintDay(records, day)
	}
}
