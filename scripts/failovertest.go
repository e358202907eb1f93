//go:build ignore

// failovertest drives a running failover proxy through an outage of its
// primary endpoint and checks where traffic lands. It expects two instances
// of backend.go behind the proxy, the first of them listed as primary.
//
// Usage:
//
//	go run scripts/failovertest.go -proxy http://localhost:8080 \
//	    -primary http://localhost:8501 -cooldown 30s
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/angeloszaimis/failover/internal/metrics"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		proxyURL   = flag.String("proxy", "http://localhost:8080", "Failover proxy URL")
		primaryURL = flag.String("primary", "http://localhost:8501", "Primary backend URL (toggled during the test)")
		cooldown   = flag.Duration("cooldown", 30*time.Second, "Cooldown configured on the proxy")
		requests   = flag.Int("requests", 10, "Requests per phase")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	fmt.Println(colorCyan + "━━━ FAILOVER TEST ━━━" + colorReset)
	fmt.Println()

	fmt.Println(colorBlue + "PHASE 1: primary healthy" + colorReset)
	hits := sendPhase(client, *proxyURL, *requests)
	if len(hits) == 0 {
		fmt.Println(colorRed + "  ✗ No responses. Is the proxy running?" + colorReset)
		os.Exit(1)
	}
	printHits(hits)
	fmt.Println()

	fmt.Println(colorBlue + "PHASE 2: primary failing" + colorReset)
	if err := toggle(client, *primaryURL); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not toggle primary: %v\n"+colorReset, err)
		os.Exit(1)
	}
	failedOver := sendPhase(client, *proxyURL, *requests)
	printHits(failedOver)
	fmt.Println()

	fmt.Println(colorBlue + "PHASE 3: primary restored, waiting out the cooldown" + colorReset)
	if err := toggle(client, *primaryURL); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not toggle primary: %v\n"+colorReset, err)
		os.Exit(1)
	}
	fmt.Printf("  sleeping %v\n", *cooldown)
	time.Sleep(*cooldown)
	recovered := sendPhase(client, *proxyURL, *requests)
	printHits(recovered)
	fmt.Println()

	fmt.Println(colorBlue + "PHASE 4: proxy stats" + colorReset)
	snap, err := getStats(client, *proxyURL+"/stats")
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch stats: %v\n"+colorReset, err)
	} else {
		fmt.Printf("  attempts=%d failures=%d exhaustions=%d\n",
			snap.TotalAttempts, snap.TotalFailures, snap.Exhaustions)
		for name, em := range snap.Endpoints {
			state := colorGreen + "ELIGIBLE" + colorReset
			if em.Blacklisted {
				state = colorRed + "BLACKLISTED" + colorReset
			}
			fmt.Printf("    %s → %s (attempts: %d, blacklistings: %d, recoveries: %d)\n",
				name, state, em.Attempts, em.Blacklistings, em.Recoveries)
		}
	}
	fmt.Println()

	fmt.Println("Check proxy logs at debug level for individual blacklist and recovery events.")
}

// sendPhase returns the number of successful responses per X-Backend-Server.
func sendPhase(client *http.Client, url string, n int) map[string]int {
	hits := make(map[string]int)
	for i := 0; i < n; i++ {
		resp, err := client.Get(url + "/test")
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		resp.Body.Close()

		backend := resp.Header.Get("X-Backend-Server")
		if resp.StatusCode >= 500 {
			fmt.Printf(colorYellow+"  Request %d: Backend=%s Status=%d\n"+colorReset, i+1, backend, resp.StatusCode)
			continue
		}
		hits[backend]++
	}
	return hits
}

func printHits(hits map[string]int) {
	for backend, count := range hits {
		fmt.Printf("    %s → %d requests\n", backend, count)
	}
}

func toggle(client *http.Client, url string) error {
	resp, err := client.Post(url+"/toggle", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toggle returned %d", resp.StatusCode)
	}
	return nil
}

func getStats(client *http.Client, url string) (metrics.Snapshot, error) {
	var snap metrics.Snapshot

	resp, err := client.Get(url)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, err
	}
	return snap, nil
}
