package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/utils"
)

func main() {
	dir := flag.String("dir", "data", "directory searched for equity CSV files")
	prefix := flag.String("prefix", "equity", "file name prefix of equity CSV files")
	benchmarkFile := flag.String("benchmark", "", "benchmark CSV written by fetch_benchmark")
	riskFree := flag.Float64("risk-free", analytics.DefaultConfig().RiskFreeRate, "annual risk-free rate")
	flag.Parse()

	// Explicit files win over the directory scan
	files := flag.Args()
	if len(files) == 0 {
		var err error
		files, err = findEquityFiles(*dir, *prefix)
		if err != nil {
			log.Fatalf("Error finding equity files: %v", err)
		}
	}
	if len(files) == 0 {
		log.Println("No equity files found. Export one with `papertrader equity` or `papertrader replay --equity-out`.")
		return
	}

	var bench []domain.BenchmarkPoint
	if *benchmarkFile != "" {
		var err error
		bench, err = utils.ReadBenchmarkFromCSV(*benchmarkFile)
		if err != nil {
			log.Fatalf("Error reading benchmark %s: %v", *benchmarkFile, err)
		}
	}

	engine := analytics.NewEngine(analytics.Config{RiskFreeRate: *riskFree})

	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "File\tDays\tReturn%\tVol%\tSharpe\tMaxDD%\tVaR95\tCVaR95\tBeta\t")

	reports := make(map[string]*analytics.RiskReport, len(files))
	for _, file := range files {
		snaps, err := utils.ReadEquityFromCSV(file)
		if err != nil {
			log.Printf("Error reading equity from %s: %v", file, err)
			continue
		}
		report := engine.ComputeMetrics(analytics.DailyCloses(snaps), bench, nil)
		reports[file] = report

		beta := "-"
		if report.Beta != nil {
			beta = fmt.Sprintf("%.3f", *report.Beta)
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.3f\t%.2f\t%s\t%s\t%s\t\n",
			filepath.Base(file),
			report.Observations,
			report.TotalReturnPercent,
			report.AnnualizedVolatility*100,
			report.SharpeRatio,
			report.MaxDrawdownPercent,
			report.VaR95.StringFixed(2),
			report.CVaR95.StringFixed(2),
			beta,
		)
	}
	w.Flush()

	// Print drawdown and monthly breakdown
	fmt.Println("\n## Drawdowns and Monthly Returns")
	for _, file := range files {
		report, ok := reports[file]
		if !ok {
			continue
		}
		printBreakdown(filepath.Base(file), report)
	}
}

// findEquityFiles finds all equity CSV files in the specified directory
func findEquityFiles(dir, prefix string) ([]string, error) {
	var files []string

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".csv") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func printBreakdown(name string, r *analytics.RiskReport) {
	fmt.Printf("\nFile: %s\n", name)
	if len(r.Drawdowns) == 0 {
		fmt.Println("No drawdowns.")
	} else {
		fmt.Println("Peak\t\tTrough\t\tDepth%\tRecovered")
		for _, d := range r.Drawdowns {
			recovered := "open"
			if !d.EndTime.IsZero() {
				recovered = d.EndTime.Format("2006-01-02")
			}
			fmt.Printf("%s\t%s\t%.2f\t%s\n", d.StartTime.Format("2006-01-02"), d.TroughTime.Format("2006-01-02"), d.DepthPercent, recovered)
		}
	}
	for _, m := range r.MonthlyReturns {
		fmt.Printf("%s\t%.2f%%\n", m.Month.Format("2006-01"), m.ReturnPercent)
	}
}
