package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	attempts      map[string]int64
	failures      map[string]int64
	blacklistings map[string]int64
	recoveries    map[string]int64
	blacklisted   map[string]bool
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	exhaustions   int64
	startTime     time.Time
}

type Snapshot struct {
	TotalAttempts int64                      `json:"total_attempts"`
	TotalFailures int64                      `json:"total_failures"`
	Exhaustions   int64                      `json:"exhaustions"`
	Uptime        time.Duration              `json:"uptime"`
	Endpoints     map[string]EndpointMetrics `json:"endpoints"`
}

type EndpointMetrics struct {
	Attempts      int64         `json:"attempts"`
	Failures      int64         `json:"failures"`
	Blacklistings int64         `json:"blacklistings"`
	Recoveries    int64         `json:"recoveries"`
	Blacklisted   bool          `json:"blacklisted"`
	AvgResponse   time.Duration `json:"avg_response"`
	P50Response   time.Duration `json:"p50_response"`
	P95Response   time.Duration `json:"p95_response"`
	P99Response   time.Duration `json:"p99_response"`
	StatusCodes   map[int]int64 `json:"status_codes"`
}

// RecordAttempt counts an attempt. It is a failure when err is set or the
// status is neither 2xx nor 404, matching the failover classification.
func (m *Metrics) RecordAttempt(endpoint string, duration time.Duration, statusCode int, err bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[endpoint]++

	if err || !isAccepted(statusCode) {
		m.failures[endpoint]++
	}

	if err {
		return
	}

	m.responseTimes[endpoint] = append(m.responseTimes[endpoint], duration)
	if len(m.responseTimes[endpoint]) > maxResponseSamples {
		m.responseTimes[endpoint] = m.responseTimes[endpoint][1:]
	}

	if m.statusCodes[endpoint] == nil {
		m.statusCodes[endpoint] = make(map[int]int64)
	}
	m.statusCodes[endpoint][statusCode]++
}

func (m *Metrics) RecordBlacklisted(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.blacklistings[endpoint]++
	m.blacklisted[endpoint] = true
}

func (m *Metrics) RecordRecovered(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.recoveries[endpoint]++
	m.blacklisted[endpoint] = false
}

func (m *Metrics) RecordExhausted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.exhaustions++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Exhaustions: m.exhaustions,
		Uptime:      time.Since(m.startTime),
		Endpoints:   make(map[string]EndpointMetrics),
	}

	// Collect all known endpoints
	all := make(map[string]bool)
	for e := range m.attempts {
		all[e] = true
	}
	for e := range m.blacklistings {
		all[e] = true
	}
	for e := range m.recoveries {
		all[e] = true
	}

	for e := range all {
		snap.TotalAttempts += m.attempts[e]
		snap.TotalFailures += m.failures[e]

		em := EndpointMetrics{
			Attempts:      m.attempts[e],
			Failures:      m.failures[e],
			Blacklistings: m.blacklistings[e],
			Recoveries:    m.recoveries[e],
			Blacklisted:   m.blacklisted[e],
			StatusCodes:   copyCodes(m.statusCodes[e]),
		}

		durations := m.responseTimes[e]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgResponse = average(sorted)
			em.P50Response = percentile(sorted, 0.50)
			em.P95Response = percentile(sorted, 0.95)
			em.P99Response = percentile(sorted, 0.99)
		}

		snap.Endpoints[e] = em
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:      make(map[string]int64),
		failures:      make(map[string]int64),
		blacklistings: make(map[string]int64),
		recoveries:    make(map[string]int64),
		blacklisted:   make(map[string]bool),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		startTime:     time.Now(),
	}
}

func isAccepted(statusCode int) bool {
	return (statusCode >= 200 && statusCode < 300) || statusCode == http.StatusNotFound
}

func copyCodes(codes map[int]int64) map[int]int64 {
	if codes == nil {
		return nil
	}

	out := make(map[int]int64, len(codes))
	for code, n := range codes {
		out[code] = n
	}
	return out
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
