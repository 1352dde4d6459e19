// Command benchmark measures /api/v1/analyze against a few public pages in
// every fetch mode and reports latency and which detector recognised the
// content.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "ReadTrack API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL and mode for averaging")
	modes  = flag.String("modes", "browser,http", "Comma-separated fetch modes to compare")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test URLs covering the detector chain.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Blog", "https://wordpress.org/news/2024/11/rolling-up-our-sleeves/"},
	{"Recipe", "https://www.simplyrecipes.com/recipes/homemade_pizza/"},
	{"Product", "https://woocommerce.com/products/woocommerce-subscriptions/"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"Static", "https://example.com"},
}

// --- Request / Response types (mirrors models package) ---

type analyzeRequest struct {
	URL       string `json:"url"`
	FetchMode string `json:"fetch_mode"`
	Timeout   int    `json:"timeout"`
	Preview   bool   `json:"preview"`
}

type analyzeResponse struct {
	Success     bool         `json:"success"`
	StatusCode  int          `json:"status_code"`
	EngineUsed  string       `json:"engine_used"`
	Detection   *detection   `json:"detection"`
	Region      *region      `json:"region"`
	Diagnostics *diagnostics `json:"diagnostics"`
	Preview     *preview     `json:"preview"`
	Timing      timingInfo   `json:"timing"`
	Error       *errorDetail `json:"error,omitempty"`
}

type detection struct {
	Detector string `json:"detector"`
	Kind     string `json:"kind"`
}

type region struct {
	Height int `json:"height"`
}

type diagnostics struct {
	ContentGuessed  bool `json:"content_guessed"`
	ContentTooShort bool `json:"content_too_short"`
}

type preview struct {
	Words int `json:"words"`
}

type timingInfo struct {
	TotalMs    int64 `json:"total_ms"`
	FetchMs    int64 `json:"fetch_ms"`
	AnalysisMs int64 `json:"analysis_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run           int    `json:"run"`
	TotalMs       int64  `json:"total_ms"`
	FetchMs       int64  `json:"fetch_ms"`
	AnalysisMs    int64  `json:"analysis_ms"`
	Engine        string `json:"engine"`
	Detector      string `json:"detector"`
	ContentHeight int    `json:"content_height"`
	Words         int    `json:"words"`
	Guessed       bool   `json:"guessed"`
	TooShort      bool   `json:"too_short"`
	StatusCode    int    `json:"status_code"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type averages struct {
	TotalMs    float64 `json:"total_ms"`
	FetchMs    float64 `json:"fetch_ms"`
	AnalysisMs float64 `json:"analysis_ms"`
}

type caseResult struct {
	URL      string      `json:"url"`
	Label    string      `json:"label"`
	Mode     string      `json:"mode"`
	Runs     []runResult `json:"runs"`
	Averages *averages   `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string       `json:"timestamp"`
	APIURL     string       `json:"api_url"`
	RunsPerURL int          `json:"runs_per_url"`
	Results    []caseResult `json:"results"`
}

func main() {
	flag.Parse()
	fetchModes := splitModes(*modes)

	fmt.Println("=== ReadTrack Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Modes:     %s\n", strings.Join(fetchModes, ", "))
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for _, t := range testURLs {
		for _, mode := range fetchModes {
			fmt.Printf("Benchmarking [%s/%s] %s ...\n", t.Label, mode, t.URL)
			cr := caseResult{URL: t.URL, Label: t.Label, Mode: mode}

			for i := 1; i <= *runs; i++ {
				fmt.Printf("  Run %d/%d ... ", i, *runs)
				rr := analyze(client, t.URL, mode, i)
				if rr.Success {
					fmt.Printf("OK  %dms  %s  %dpx\n", rr.TotalMs, rr.Detector, rr.ContentHeight)
				} else {
					fmt.Printf("FAILED: %s\n", rr.Error)
				}
				cr.Runs = append(cr.Runs, rr)
			}

			cr.Averages = computeAverages(cr.Runs)
			report.Results = append(report.Results, cr)
		}
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func splitModes(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func analyze(client *http.Client, url, mode string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(analyzeRequest{URL: url, FetchMode: mode, Timeout: 60, Preview: true})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/analyze", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = ar.Success
	rr.StatusCode = ar.StatusCode
	rr.Engine = ar.EngineUsed
	rr.TotalMs = ar.Timing.TotalMs
	rr.FetchMs = ar.Timing.FetchMs
	rr.AnalysisMs = ar.Timing.AnalysisMs
	if ar.Detection != nil {
		rr.Detector = ar.Detection.Detector
	}
	if ar.Region != nil {
		rr.ContentHeight = ar.Region.Height
	}
	if ar.Diagnostics != nil {
		rr.Guessed = ar.Diagnostics.ContentGuessed
		rr.TooShort = ar.Diagnostics.ContentTooShort
	}
	if ar.Preview != nil {
		rr.Words = ar.Preview.Words
	}
	if ar.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", ar.Error.Code, ar.Error.Message)
	}
	return rr
}

func computeAverages(runs []runResult) *averages {
	var n float64
	var avg averages
	for _, r := range runs {
		if !r.Success {
			continue
		}
		n++
		avg.TotalMs += float64(r.TotalMs)
		avg.FetchMs += float64(r.FetchMs)
		avg.AnalysisMs += float64(r.AnalysisMs)
	}
	if n == 0 {
		return nil
	}
	avg.TotalMs /= n
	avg.FetchMs /= n
	avg.AnalysisMs /= n
	return &avg
}

func printTable(results []caseResult) {
	fmt.Println(strings.Repeat("─", 100))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Page\tMode\tAvg Latency\tFetch\tDetector\tHeight\tWords\tFlags\n")
	fmt.Fprintf(w, "────\t────\t───────────\t─────\t────────\t──────\t─────\t─────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\tFAILED\t-\t-\t-\t-\t-\n", r.Label, r.Mode)
			continue
		}
		last := lastSuccess(r.Runs)
		fmt.Fprintf(w, "%s\t%s\t%dms\t%dms\t%s\t%d\t%d\t%s\n",
			r.Label,
			r.Mode,
			int64(r.Averages.TotalMs),
			int64(r.Averages.FetchMs),
			last.Detector,
			last.ContentHeight,
			last.Words,
			flags(last),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 100))
}

func lastSuccess(runs []runResult) runResult {
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Success {
			return runs[i]
		}
	}
	return runResult{}
}

func flags(r runResult) string {
	var f []string
	if r.Guessed {
		f = append(f, "guessed")
	}
	if r.TooShort {
		f = append(f, "short")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
