// Benchmark fires concurrent transfers at a running ledger server and
// verifies conservation: total supply after the run must equal total
// supply before it, and no request may surface a negative balance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	prefix      string
	password    string
)

// Tallies
var (
	totalRequests uint64
	success200    uint64
	fail400       uint64 // business-rule rejections (funds, self, validation)
	fail503       uint64 // gate timeouts
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "Ledger base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Number of seeded accounts")
	flag.StringVar(&prefix, "prefix", "bench", "Seeded username prefix")
	flag.StringVar(&password, "password", "benchpass", "Password shared by seeded accounts")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	supplyBefore, err := totalSupply()
	if err != nil {
		log.Fatalf("total_supply before run: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}
	wg.Wait()
	elapsed := time.Since(start)

	supplyAfter, err := totalSupply()
	if err != nil {
		log.Fatalf("total_supply after run: %v", err)
	}

	printResults(elapsed, supplyBefore, supplyAfter)
	if supplyBefore != supplyAfter {
		log.Fatalf("CONSERVATION VIOLATED: supply %d -> %d", supplyBefore, supplyAfter)
	}
	log.Printf("Conservation held: supply %d before and after", supplyBefore)
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 30 * time.Second}

	for time.Since(start) < duration {
		from, to := pickAccounts()
		form := url.Values{
			"username": {from},
			"password": {password},
			"receiver": {to},
			"amount":   {"1"},
		}

		resp, err := client.PostForm(targetURL+"/transfer_currency", form)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		case 503:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func pickAccounts() (string, string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic ping-pongs between two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return name(1), name(2)
			}
			return name(2), name(1)
		}
	}

	a := rand.Intn(accounts) + 1
	b := rand.Intn(accounts) + 1
	for a == b {
		b = rand.Intn(accounts) + 1
	}
	return name(a), name(b)
}

func name(i int) string {
	return fmt.Sprintf("%s%04d", prefix, i)
}

func totalSupply() (int64, error) {
	resp, err := http.Get(targetURL + "/total_supply")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("total_supply returned %d: %s", resp.StatusCode, body)
	}
	return strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
}

func printResults(d time.Duration, supplyBefore, supplyAfter int64) {
	total := atomic.LoadUint64(&totalRequests)
	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": float64(total) / d.Seconds(),
		"success":        atomic.LoadUint64(&success200),
		"rejected_400":   atomic.LoadUint64(&fail400),
		"busy_503":       atomic.LoadUint64(&fail503),
		"errors":         atomic.LoadUint64(&failOther),
		"supply_before":  supplyBefore,
		"supply_after":   supplyAfter,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
