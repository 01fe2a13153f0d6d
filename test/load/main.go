package main

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type LoadTestConfig struct {
	BaseURL           string
	RequestsPerSecond int
	DurationSeconds   int
	ConcurrentWorkers int
	Cards             []string
	AccountID         string
	PageSize          int
}

// target is one read path of the API weighted by how often it is hit.
type target struct {
	name   string
	weight int
	url    func(cfg LoadTestConfig, r *rand.Rand) string
}

var targets = []target{
	{name: "card_account", weight: 6, url: func(cfg LoadTestConfig, r *rand.Rand) string {
		return cfg.BaseURL + "/xref/cards/" + pick(cfg.Cards, r) + "/account"
	}},
	{name: "account_cards", weight: 2, url: func(cfg LoadTestConfig, r *rand.Rand) string {
		return cfg.BaseURL + "/xref/accounts/" + cfg.AccountID + "/cards"
	}},
	{name: "list_page", weight: 1, url: func(cfg LoadTestConfig, r *rand.Rand) string {
		return fmt.Sprintf("%s/cards?account_id=%s&size=%d&page=%d", cfg.BaseURL, cfg.AccountID, cfg.PageSize, r.Intn(3))
	}},
	{name: "browse", weight: 1, url: func(cfg LoadTestConfig, r *rand.Rand) string {
		return fmt.Sprintf("%s/cards/browse?size=%d&start=%s", cfg.BaseURL, cfg.PageSize, pick(cfg.Cards, r))
	}},
}

type Stats struct {
	successCount atomic.Int64
	notFound     atomic.Int64
	errorCount   atomic.Int64

	mu            sync.Mutex
	responseTimes map[string][]float64
}

func newStats() *Stats {
	return &Stats{responseTimes: make(map[string][]float64)}
}

func (s *Stats) addResponseTime(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseTimes[name] = append(s.responseTimes[name], d.Seconds())
}

func (s *Stats) snapshot() map[string][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]float64, len(s.responseTimes))
	for k, v := range s.responseTimes {
		out[k] = slices.Clone(v)
	}
	return out
}

func sendRequest(client *http.Client, name, url string, stats *Stats) {
	start := time.Now()
	resp, err := client.Get(url)
	if err != nil {
		stats.errorCount.Add(1)
		stats.addResponseTime(name, time.Since(start))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	stats.addResponseTime(name, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		stats.successCount.Add(1)
	case resp.StatusCode == http.StatusNotFound:
		// unknown cards are a valid lookup result
		stats.notFound.Add(1)
	default:
		stats.errorCount.Add(1)
	}
}

func worker(id int, client *http.Client, cfg LoadTestConfig, stats *Stats, jobs <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	total := 0
	for _, t := range targets {
		total += t.weight
	}
	for range jobs {
		n := r.Intn(total)
		for _, t := range targets {
			if n < t.weight {
				sendRequest(client, t.name, t.url(cfg, r), stats)
				break
			}
			n -= t.weight
		}
	}
}

func pick(items []string, r *rand.Rand) string {
	return items[r.Intn(len(items))]
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func main() {
	cfg := LoadTestConfig{
		BaseURL:           strings.TrimRight(getEnvOrDefault("TARGET_URL", "http://localhost:8080/api/v1"), "/"),
		RequestsPerSecond: getEnvIntOrDefault("REQUESTS_PER_SECOND", 2000),
		DurationSeconds:   getEnvIntOrDefault("DURATION_SECONDS", 30),
		ConcurrentWorkers: getEnvIntOrDefault("CONCURRENT_WORKERS", 200),
		Cards:             strings.Split(getEnvOrDefault("CARDS", "4111111111111111,4111111111111112,4111111111111113"), ","),
		AccountID:         getEnvOrDefault("ACCOUNT_ID", "12345678901"),
		PageSize:          getEnvIntOrDefault("PAGE_SIZE", 7),
	}

	fmt.Println("Starting xref load test...")
	fmt.Printf("Target: %s\n", cfg.BaseURL)
	fmt.Printf("Target RPS: %d for %d seconds\n", cfg.RequestsPerSecond, cfg.DurationSeconds)
	fmt.Printf("Concurrent workers: %d\n", cfg.ConcurrentWorkers)
	fmt.Printf("Cards: %d, account: %s\n", len(cfg.Cards), cfg.AccountID)
	fmt.Println(strings.Repeat("-", 50))

	stats := newStats()
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.ConcurrentWorkers,
			MaxIdleConnsPerHost: cfg.ConcurrentWorkers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 10 * time.Second,
	}

	jobs := make(chan struct{}, cfg.RequestsPerSecond)
	var wg sync.WaitGroup
	for i := 0; i < cfg.ConcurrentWorkers; i++ {
		wg.Add(1)
		go worker(i, client, cfg, stats, jobs, &wg)
	}

	startTime := time.Now()
	for sec := 0; sec < cfg.DurationSeconds; sec++ {
		batchStart := time.Now()
		for j := 0; j < cfg.RequestsPerSecond; j++ {
			jobs <- struct{}{}
		}

		ok, nf, failed := stats.successCount.Load(), stats.notFound.Load(), stats.errorCount.Load()
		fmt.Printf("[%ds] Completed: %d | OK: %d | NotFound: %d | Errors: %d\n", sec+1, ok+nf+failed, ok, nf, failed)

		if elapsed := time.Since(batchStart); elapsed < time.Second {
			time.Sleep(time.Second - elapsed)
		}
	}
	close(jobs)
	wg.Wait()
	duration := time.Since(startTime).Seconds()

	ok, nf, failed := stats.successCount.Load(), stats.notFound.Load(), stats.errorCount.Load()
	total := ok + nf + failed

	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Duration: %.2f seconds\n", duration)
	fmt.Printf("Total requests: %d (OK %d, NotFound %d, Errors %d)\n", total, ok, nf, failed)
	fmt.Printf("Actual RPS: %.2f\n", float64(total)/duration)

	times := stats.snapshot()
	names := make([]string, 0, len(times))
	for name := range times {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		ts := times[name]
		slices.Sort(ts)
		fmt.Printf("\n%s (%d requests)\n", name, len(ts))
		fmt.Printf("  P50: %.2f ms  P95: %.2f ms  P99: %.2f ms  Max: %.2f ms\n",
			percentile(ts, 0.50)*1000, percentile(ts, 0.95)*1000, percentile(ts, 0.99)*1000, ts[len(ts)-1]*1000)
	}
}
