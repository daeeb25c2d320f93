// main.go - Performance testing tool for the Attriflow collect API
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"log/slog"

	v1 "attriflow/api/v1"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL        string
	Origin         string // Origin header, must match an allowed origin
	Concurrency    int
	Duration       time.Duration
	TouchesPerSec  int
	ConversionRate float64
	Timeout        time.Duration
}

// PerfStats holds statistics about the performance test
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	DatabaseBusyErrors int64
	TotalDuration      time.Duration
	MinLatency         time.Duration
	MaxLatency         time.Duration
	TotalLatency       time.Duration
	StartTime          time.Time
	EndTime            time.Time

	mu            sync.Mutex
	StatusCodes   map[int]int64
	ResponseTimes []time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	touchesPerSec := flag.Int("rate", 0, "Target touch events per second (0 = unlimited)")
	conversionRate := flag.Float64("conversions", 0.1, "Fraction of requests sent as conversion events")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	origin := os.Getenv("ATTRIFLOW_ORIGIN")
	if origin == "" {
		origin = "https://example.com"
		logger.Info("Using default origin (https://example.com)")
	} else {
		logger.Info("Using origin from ATTRIFLOW_ORIGIN environment variable", slog.String("origin", origin))
	}

	config := &PerfConfig{
		BaseURL:        *baseURL,
		Origin:         origin,
		Concurrency:    *concurrency,
		Duration:       *duration,
		TouchesPerSec:  *touchesPerSec,
		ConversionRate: *conversionRate,
		Timeout:        *timeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== Attriflow Collect API Performance Test ===")
	fmt.Printf("  URL (-url):              %s\n", config.BaseURL)
	fmt.Printf("  Concurrency (-c):        %d\n", config.Concurrency)
	fmt.Printf("  Duration (-d):           %v\n", config.Duration)
	fmt.Printf("  Touches/sec (-rate):     %d (0 = unlimited)\n", config.TouchesPerSec)
	fmt.Printf("  Conversion share:        %.0f%%\n", config.ConversionRate*100)
	fmt.Printf("  Timeout (-timeout):      %v\n", config.Timeout)
	fmt.Println("==============================================")

	stats := &PerfStats{
		StatusCodes: make(map[int]int64),
		StartTime:   time.Now(),
	}

	fmt.Printf("Starting test with %d concurrent clients for %v\n", config.Concurrency, config.Duration)
	fmt.Printf("Touch endpoint:      %s/api/v1/events\n", config.BaseURL)
	fmt.Printf("Conversion endpoint: %s/api/v1/conversions\n", config.BaseURL)

	testCtx, testCancel := context.WithTimeout(ctx, config.Duration)
	defer testCancel()

	resultChan := runTest(testCtx, config, logger)
	for result := range resultChan {
		processResult(result, stats)
	}

	stats.EndTime = time.Now()
	stats.TotalDuration = stats.EndTime.Sub(stats.StartTime)

	printResults(stats)
	fmt.Println("Test completed")
}

// runTest starts the worker pool and returns a channel of per-request results
func runTest(ctx context.Context, config *PerfConfig, logger *slog.Logger) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	requestsPerSecPerWorker := 0.0
	if config.TouchesPerSec > 0 {
		requestsPerSecPerWorker = float64(config.TouchesPerSec) / float64(config.Concurrency)
		logger.Info("Rate limiting enabled",
			slog.Int("totalRequestsPerSec", config.TouchesPerSec),
			slog.Float64("requestsPerSecPerWorker", requestsPerSecPerWorker))
	} else {
		logger.Info("No rate limiting, running at maximum speed")
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: config.Timeout}
			randGen := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			var ticker *time.Ticker
			if requestsPerSecPerWorker > 0 {
				interval := time.Duration(float64(time.Second) / requestsPerSecPerWorker)
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
					if ticker != nil {
						select {
						case <-ticker.C:
						case <-ctx.Done():
							return
						}
					}

					resultChan <- sendRequest(client, config, randGen, workerID)

					// Cooldown scaled with concurrency to reduce write contention
					cooldownMs := 2 + (config.Concurrency / 20)
					time.Sleep(time.Duration(cooldownMs) * time.Millisecond)
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}

// sendRequest posts one touch or conversion event to the collect API
func sendRequest(client *http.Client, config *PerfConfig, randGen *rand.Rand, workerID int) Result {
	isConversion := randGen.Float64() < config.ConversionRate
	params := generateTouchData(config, randGen, workerID, isConversion)

	jsonData, err := json.Marshal(params)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	endpoint := config.BaseURL + "/api/v1/events"
	if isConversion {
		endpoint = config.BaseURL + "/api/v1/conversions"
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", generateUserAgent(randGen))
	req.Header.Set("Origin", config.Origin)
	if params.Referrer != "" {
		req.Header.Set("Referer", params.Referrer)
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		return Result{Duration: duration, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		fmt.Printf("Error response [%d]: %s\n", resp.StatusCode, string(bodyBytes))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return Result{Duration: duration, StatusCode: resp.StatusCode}
}

// trafficMix is a set of plausible landing URLs with channel-identifying tags
var trafficMix = []struct {
	path     string
	referrer string
}{
	{"/pricing?utm_source=google&utm_medium=cpc&utm_campaign=perf_brand&gclid=test", "https://www.google.com/"},
	{"/?utm_source=linkedin&utm_medium=paid_social&utm_campaign=perf_b2b", "https://www.linkedin.com/"},
	{"/features?utm_source=mailchimp&utm_medium=email&utm_campaign=perf_digest", ""},
	{"/blog/attribution-guide", "https://www.google.com/"},
	{"/", "https://www.facebook.com/"},
	{"/docs/getting-started", "https://news.ycombinator.com/"},
	{"/signup", ""},
	{"/products/analytics", "https://duckduckgo.com/"},
}

// generateTouchData creates a random collect payload for testing
func generateTouchData(config *PerfConfig, randGen *rand.Rand, workerID int, isConversion bool) v1.CollectTouchParams {
	// Customers repeat across requests so journeys accumulate touchpoints
	customerID := fmt.Sprintf("perf-customer-%d-%d", workerID, randGen.Intn(200))

	// Past timestamps keep events inside the dashboard's default windows
	now := time.Now().UTC()
	occurredAt := now.Add(-time.Duration(randGen.Intn(12*3600)) * time.Second)

	mix := trafficMix[randGen.Intn(len(trafficMix))]
	hostname := strings.TrimPrefix(strings.TrimPrefix(config.Origin, "https://"), "http://")

	params := v1.CollectTouchParams{
		CustomerID: customerID,
		URL:        fmt.Sprintf("https://%s%s", hostname, mix.path),
		Referrer:   mix.referrer,
		OccurredAt: occurredAt,
		UserAgent:  generateUserAgent(randGen),
	}

	if isConversion {
		value := 20 + randGen.Float64()*480
		params.EventName = "purchase"
		params.EventValue = &value
		params.ConversionType = "purchase"
		params.Referrer = ""
	}

	return params
}

// generateUserAgent returns a random browser user agent string
func generateUserAgent(randGen *rand.Rand) string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
	return userAgents[randGen.Intn(len(userAgents))]
}

// processResult folds a single request result into the running statistics
func processResult(result Result, stats *PerfStats) {
	atomic.AddInt64(&stats.TotalRequests, 1)

	if result.Error != nil {
		atomic.AddInt64(&stats.FailedRequests, 1)
		return
	}

	stats.mu.Lock()
	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
	stats.StatusCodes[result.StatusCode]++
	stats.mu.Unlock()

	if result.StatusCode == http.StatusOK || result.StatusCode == http.StatusAccepted {
		atomic.AddInt64(&stats.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&stats.FailedRequests, 1)
		if result.StatusCode == http.StatusServiceUnavailable {
			atomic.AddInt64(&stats.DatabaseBusyErrors, 1)
		}
	}

	atomic.AddInt64((*int64)(&stats.TotalLatency), int64(result.Duration))

	if stats.MinLatency == 0 || result.Duration < stats.MinLatency {
		stats.MinLatency = result.Duration
	}
	if result.Duration > stats.MaxLatency {
		stats.MaxLatency = result.Duration
	}
}

// printResults displays the test results in aligned tables
func printResults(stats *PerfStats) {
	fmt.Println("\nPerformance Test Results:")
	fmt.Printf("Test Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Start Time: %v\n", stats.StartTime.Format(time.RFC3339))
	fmt.Printf("End Time: %v\n", stats.EndTime.Format(time.RFC3339))

	requestsPerSecond := float64(stats.TotalRequests) / stats.TotalDuration.Seconds()
	fmt.Printf("Requests Per Second: %.2f\n", requestsPerSecond)

	var avgLatency time.Duration
	if stats.TotalRequests > 0 {
		avgLatency = time.Duration(int64(stats.TotalLatency) / stats.TotalRequests)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	if stats.TotalRequests > 0 {
		fmt.Fprintf(w, "Successful Requests\t%d (%.2f%%)\n", stats.SuccessfulRequests,
			100*float64(stats.SuccessfulRequests)/float64(stats.TotalRequests))
		fmt.Fprintf(w, "Failed Requests\t%d (%.2f%%)\n", stats.FailedRequests,
			100*float64(stats.FailedRequests)/float64(stats.TotalRequests))
	}
	if stats.DatabaseBusyErrors > 0 {
		fmt.Fprintf(w, "Database Busy Errors\t%d\n", stats.DatabaseBusyErrors)
	}
	fmt.Fprintf(w, "Min Latency\t%v\n", stats.MinLatency)
	fmt.Fprintf(w, "Max Latency\t%v\n", stats.MaxLatency)
	fmt.Fprintf(w, "Avg Latency\t%v\n", avgLatency)
	w.Flush()

	printStatusCodes(stats)
	printPercentiles(stats)
}

// printStatusCodes shows the status code distribution with a bar graph
func printStatusCodes(stats *PerfStats) {
	if len(stats.StatusCodes) == 0 {
		return
	}

	fmt.Println("\nStatus Code Distribution:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "STATUS CODE", "COUNT", "PERCENTAGE", "GRAPH")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", "-----------", "-----", "----------", "-----")

	var codes []int
	for code := range stats.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	var maxCount int64 = 1
	for _, count := range stats.StatusCodes {
		if count > maxCount {
			maxCount = count
		}
	}

	const maxBarLength = 50
	for _, code := range codes {
		count := stats.StatusCodes[code]
		percentage := 100 * float64(count) / float64(stats.TotalRequests)
		barLength := int(float64(count) / float64(maxCount) * maxBarLength)
		fmt.Fprintf(w, "%d\t%d\t%.2f%%\t%s\n", code, count, percentage, strings.Repeat("█", barLength))
	}
	w.Flush()
}

// printPercentiles shows the latency percentiles
func printPercentiles(stats *PerfStats) {
	total := len(stats.ResponseTimes)
	if total == 0 {
		return
	}

	sort.Slice(stats.ResponseTimes, func(i, j int) bool {
		return stats.ResponseTimes[i] < stats.ResponseTimes[j]
	})

	percentile := func(p float64) int64 {
		idx := int(float64(total) * p)
		if idx >= total {
			idx = total - 1
		}
		return stats.ResponseTimes[idx].Milliseconds()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "PERCENTILE", "VALUE (ms)")
	fmt.Fprintf(w, "%s\t%s\n", "----------", "----------")
	fmt.Fprintf(w, "50th (Median)\t%d\n", percentile(0.5))
	fmt.Fprintf(w, "90th\t%d\n", percentile(0.9))
	fmt.Fprintf(w, "95th\t%d\n", percentile(0.95))
	fmt.Fprintf(w, "99th\t%d\n", percentile(0.99))
	w.Flush()
}
