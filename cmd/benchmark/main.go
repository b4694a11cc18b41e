package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type BenchmarkResult struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
}

type stats struct {
	Data struct {
		Immutable int `json:"immutable"`
		Tables    struct {
			Tables                  int     `json:"tables"`
			Keys                    int     `json:"keys"`
			FilterBytes             int     `json:"filter_bytes"`
			FilterBitsPerKey        int     `json:"filter_bits_per_key"`
			FilterProbes            int     `json:"filter_probes"`
			FilterSkips             uint64  `json:"filter_skips"`
			FilterFalsePositives    uint64  `json:"filter_false_positives"`
			FilterFalsePositiveRate float64 `json:"filter_false_positive_rate"`
		} `json:"tables"`
	} `json:"data"`
}

var client = &http.Client{Timeout: 5 * time.Second}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "kvcore base URL")
	ops := flag.Int("ops", 1000, "operations per test")
	concurrency := flag.Int("c", 10, "concurrent workers")
	flag.Parse()

	fmt.Println("=== kvcore Benchmark ===")
	fmt.Printf("Target: %s\n\n", *baseURL)

	if !checkHealth(*baseURL) {
		fmt.Printf("ERROR: node %s is not available\n", *baseURL)
		return
	}

	fmt.Printf("Test 1: Writes (%d operations, %d workers)\n", *ops, *concurrency)
	printResult(run(*ops, *concurrency, func(i int) (bool, error) {
		key := fmt.Sprintf("bench_key_%08d", i)
		return true, putKey(*baseURL, key, "bench_value_"+key)
	}))

	fmt.Println("\nFlushing memtables")
	if err := post(*baseURL + "/api/flush"); err != nil {
		fmt.Printf("ERROR: flush failed: %v\n", err)
		return
	}

	fmt.Printf("\nTest 2: Reads of present keys (%d operations)\n", *ops)
	printResult(run(*ops, *concurrency, func(i int) (bool, error) {
		return getKey(*baseURL, fmt.Sprintf("bench_key_%08d", i))
	}))

	// keys that sort inside the flushed tables but were never written
	fmt.Printf("\nTest 3: Reads of absent keys (%d operations)\n", *ops)
	printResult(run(*ops, *concurrency, func(i int) (bool, error) {
		found, err := getKey(*baseURL, fmt.Sprintf("bench_key_%08d_absent", i))
		return !found, err
	}))

	st, err := fetchStats(*baseURL)
	if err != nil {
		fmt.Printf("ERROR: stats: %v\n", err)
		return
	}
	t := st.Data.Tables
	fmt.Println("\nFilter:")
	fmt.Printf("  Tables: %d (keys %d, pending %d)\n", t.Tables, t.Keys, st.Data.Immutable)
	fmt.Printf("  Buffer: %d bytes, %d bits/key, k=%d\n", t.FilterBytes, t.FilterBitsPerKey, t.FilterProbes)
	fmt.Printf("  Skipped tables: %d\n", t.FilterSkips)
	fmt.Printf("  False positives: %d (%.4f)\n", t.FilterFalsePositives, t.FilterFalsePositiveRate)

	fmt.Println("\n=== Benchmark Complete ===")
}

// run calls op for 0..totalOps-1 on up to concurrency goroutines. op reports
// whether the response was the expected one.
func run(totalOps, concurrency int, op func(i int) (bool, error)) BenchmarkResult {
	var (
		mu        sync.Mutex
		ok        int
		latencies = make([]time.Duration, 0, totalOps)
	)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := 0; i < totalOps; i++ {
		g.Go(func() error {
			opStart := time.Now()
			good, err := op(i)
			latency := time.Since(opStart)

			mu.Lock()
			if err == nil && good {
				ok++
			}
			latencies = append(latencies, latency)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	duration := time.Since(start)

	res := BenchmarkResult{
		TotalOps:      totalOps,
		SuccessfulOps: ok,
		FailedOps:     totalOps - ok,
		Duration:      duration,
		OpsPerSec:     float64(ok) / duration.Seconds(),
	}
	if len(latencies) == 0 {
		return res
	}

	var sum time.Duration
	res.MinLatency, res.MaxLatency = latencies[0], latencies[0]
	for _, lat := range latencies {
		res.MinLatency = min(res.MinLatency, lat)
		res.MaxLatency = max(res.MaxLatency, lat)
		sum += lat
	}
	res.AvgLatency = sum / time.Duration(len(latencies))

	return res
}

func checkHealth(baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func putKey(baseURL, key, value string) error {
	data := url.Values{}
	data.Set("key", key)
	data.Set("value", value)

	req, err := http.NewRequest(http.MethodPut, baseURL+"/api/kv", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func getKey(baseURL, key string) (bool, error) {
	resp, err := client.Get(baseURL + "/api/kv?key=" + url.QueryEscape(key))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func post(target string) error {
	resp, err := client.Post(target, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func fetchStats(baseURL string) (stats, error) {
	var st stats

	resp, err := client.Get(baseURL + "/api/stats")
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, err
	}
	return st, nil
}

func printResult(result BenchmarkResult) {
	fmt.Printf("  Total Operations: %d\n", result.TotalOps)
	fmt.Printf("  Successful: %d\n", result.SuccessfulOps)
	fmt.Printf("  Failed: %d\n", result.FailedOps)
	fmt.Printf("  Duration: %v\n", result.Duration)
	fmt.Printf("  Operations/sec: %.2f\n", result.OpsPerSec)
	fmt.Printf("  Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", result.MinLatency)
	fmt.Printf("  Max Latency: %v\n", result.MaxLatency)
}
