// Benchmark tool for testing Harrier against published grant CSV exports.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/grants.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a grant CSV export (any column labels the normalizer understands)
//   2. Splits the rows into batches and sends each to Harrier for analysis
//   3. Aggregates alert counts by severity and category across all reports
//   4. Reports throughput and pipeline latency
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AnalyzeRequest is the Harrier API request format.
type AnalyzeRequest struct {
	Records []map[string]any `json:"records"`
}

// AnalyzeResponse is the Harrier API response format, reduced to the fields
// the benchmark aggregates.
type AnalyzeResponse struct {
	ReportID string `json:"reportId"`
	Report   struct {
		Stats struct {
			Count         int     `json:"count"`
			ValidCount    int     `json:"validCount"`
			DegradedCount int     `json:"degradedCount"`
			Total         float64 `json:"total"`
		} `json:"stats"`
		Alerts []struct {
			Severity string `json:"severity"`
			Category string `json:"category"`
		} `json:"alerts"`
		Metadata struct {
			NormalizeMs int64 `json:"normalizeMs"`
			AnalyzeMs   int64 `json:"analyzeMs"`
			TotalMs     int64 `json:"totalMs"`
		} `json:"metadata"`
	} `json:"report"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	BatchesProcessed int64
	RecordsProcessed int64
	RecordsDegraded  int64
	TotalErrors      int64

	AlertsCritical int64
	AlertsWarning  int64

	PipelineMs int64
	RequestMs  int64

	mu               sync.Mutex
	alertsByCategory map[string]int64
}

func (m *Metrics) countCategory(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alertsByCategory == nil {
		m.alertsByCategory = make(map[string]int64)
	}
	m.alertsByCategory[category]++
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to grant CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	sourceID := flag.String("source", "benchmark-test", "Source ID for requests")
	batchSize := flag.Int("batch", 500, "Records per batch")
	limit := flag.Int("limit", 0, "Maximum records to process (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/grants.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HARRIER BENCHMARK - Grant Batch Analysis             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Source ID:   %s\n", *sourceID)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Harrier is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	// Read grant data
	fmt.Printf("\nReading grant data from %s...\n", *csvPath)
	batches, total, err := readGrantCSV(*csvPath, *batchSize, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d records in %d batches\n", total, len(batches))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(batches, *baseURL, *sourceID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readGrantCSV reads the export and chunks rows into raw-record batches.
// Column labels pass through untouched; the server-side normalizer resolves
// them against its schema mapping.
func readGrantCSV(path string, batchSize, limit int) ([][]map[string]any, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	var batches [][]map[string]any
	var current []map[string]any
	total := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		current = append(current, row)
		total++

		if len(current) >= batchSize {
			batches = append(batches, current)
			current = nil
		}

		if limit > 0 && total >= limit {
			break
		}
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches, total, nil
}

func runBenchmark(batches [][]map[string]any, baseURL, sourceID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan []map[string]any, numWorkers)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := analyzeBatch(client, baseURL, sourceID, batch)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.RequestMs, elapsed)
				atomic.AddInt64(&metrics.BatchesProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				atomic.AddInt64(&metrics.RecordsProcessed, int64(result.Report.Stats.Count))
				atomic.AddInt64(&metrics.RecordsDegraded, int64(result.Report.Stats.DegradedCount))
				atomic.AddInt64(&metrics.PipelineMs, result.Report.Metadata.TotalMs)

				for _, a := range result.Report.Alerts {
					switch a.Severity {
					case "CRITICAL":
						atomic.AddInt64(&metrics.AlertsCritical, 1)
					case "WARNING":
						atomic.AddInt64(&metrics.AlertsWarning, 1)
					}
					metrics.countCategory(a.Category)
				}

				if verbose {
					fmt.Printf("✓ %-36s | Records: %6d | Degraded: %4d | Alerts: %3d | Pipeline: %4d ms\n",
						result.ReportID,
						result.Report.Stats.Count,
						result.Report.Stats.DegradedCount,
						len(result.Report.Alerts),
						result.Report.Metadata.TotalMs,
					)
				}
			}
		}()
	}

	// Send work
	for _, batch := range batches {
		work <- batch
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeBatch(client *http.Client, baseURL, sourceID string, batch []map[string]any) (*AnalyzeResponse, error) {
	req := AnalyzeRequest{Records: batch}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source-ID", sourceID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Batches Processed: %d\n", m.BatchesProcessed)
	fmt.Printf("   Records Processed: %d\n", m.RecordsProcessed)
	fmt.Printf("   Records Degraded:  %d\n", m.RecordsDegraded)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	fmt.Printf("\nALERTS\n")
	fmt.Printf("   Critical:  %d\n", m.AlertsCritical)
	fmt.Printf("   Warning:   %d\n", m.AlertsWarning)
	for category, count := range m.alertsByCategory {
		fmt.Printf("   %-24s %d\n", category+":", count)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.BatchesProcessed > 0 {
		avgPipeline := float64(m.PipelineMs) / float64(m.BatchesProcessed)
		avgRequest := float64(m.RequestMs) / float64(m.BatchesProcessed)
		rps := float64(m.RecordsProcessed) / duration.Seconds()
		fmt.Printf("   Avg Pipeline:     %.2f ms/batch\n", avgPipeline)
		fmt.Printf("   Avg Request:      %.2f ms/batch\n", avgRequest)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Println()
}
