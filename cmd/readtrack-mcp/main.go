package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiError mirrors the ReadTrack API error detail.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// region mirrors the located content.
type region struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	Height      int     `json:"height"`
	Guessed     bool    `json:"guessed"`
}

// event mirrors one reading event.
type event struct {
	Name   string `json:"name"`
	Fields struct {
		Label       string            `json:"label"`
		MetricName  string            `json:"metric_name"`
		MetricValue int               `json:"metric_value"`
		Dimensions  map[string]string `json:"dimensions"`
	} `json:"fields"`
}

// state mirrors the reading progress.
type state struct {
	StartedReading    bool   `json:"started_reading"`
	ReachedContentEnd bool   `json:"reached_content_end"`
	ReachedPageBottom bool   `json:"reached_page_bottom"`
	TimeToScroll      int    `json:"time_to_scroll"`
	TimeToContentEnd  int    `json:"time_to_content_end"`
	TotalTime         int    `json:"total_time"`
	Behaviour         string `json:"behaviour"`
}

// analyzeResponse mirrors the ReadTrack analyze response.
type analyzeResponse struct {
	Success    bool   `json:"success"`
	FinalURL   string `json:"final_url"`
	Title      string `json:"title"`
	EngineUsed string `json:"engine_used"`
	Detection  *struct {
		Detector    string `json:"detector"`
		Kind        string `json:"kind"`
		ProductPage bool   `json:"product_page"`
	} `json:"detection"`
	Region      *region `json:"region"`
	Diagnostics *struct {
		DocumentHeight  float64 `json:"document_height"`
		PageBottomAt    float64 `json:"page_bottom_at"`
		ContentGuessed  bool    `json:"content_guessed"`
		ContentTooShort bool    `json:"content_too_short"`
	} `json:"diagnostics"`
	Preview *struct {
		Words             int    `json:"words"`
		ReadingSeconds    int    `json:"reading_seconds"`
		ExpectedBehaviour string `json:"expected_behaviour"`
		Markdown          string `json:"markdown"`
	} `json:"preview"`
	Error *apiError `json:"error"`
}

// simulateResponse mirrors the ReadTrack simulate response.
type simulateResponse struct {
	Success bool      `json:"success"`
	Title   string    `json:"title"`
	Region  *region   `json:"region"`
	Events  []event   `json:"events"`
	State   *state    `json:"state"`
	Steps   int       `json:"steps"`
	Error   *apiError `json:"error"`
}

// sessionResponse mirrors the ReadTrack session response.
type sessionResponse struct {
	Success      bool      `json:"success"`
	ID           string    `json:"id"`
	Scrolls      int       `json:"scrolls"`
	Interactions int       `json:"interactions"`
	Region       *region   `json:"region"`
	State        *state    `json:"state"`
	Events       []event   `json:"events"`
	Closed       bool      `json:"closed"`
	Error        *apiError `json:"error"`
}

func main() {
	apiURL := os.Getenv("READTRACK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("READTRACK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "READTRACK_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"readtrack",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	analyzeTool := mcp.NewTool("analyze_page",
		mcp.WithDescription("Find the readable content of a web page (product, recipe, blog entry or a fallback container) and measure it the way the reading tracker does. Returns the content region, warnings and an estimated reading time."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to analyze"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("'browser' (default) renders and measures the page, 'http' detects the content without rendering, 'auto' falls back to http when rendering fails"),
			mcp.Enum("browser", "http", "auto"),
		),
		mcp.WithBoolean("product_page",
			mcp.Description("Force the product page check instead of reading it from the markup"),
		),
	)
	s.AddTool(analyzeTool, handleAnalyze(apiURL, apiKey))

	simulateTool := mcp.NewTool("simulate_reading",
		mcp.WithDescription("Open a page in a headless browser, play a scripted visit (scrolls and pauses) and report the reading events the visit would send to analytics."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to visit"),
		),
		mcp.WithString("steps",
			mcp.Required(),
			mcp.Description(`JSON array of steps, e.g. [{"action":"scroll_by","pixels":600,"dwell_ms":20000},{"action":"bottom"}]. Actions: scroll_to (y), scroll_by (pixels), bottom, wait.`),
		),
	)
	s.AddTool(simulateTool, handleSimulate(apiURL, apiKey))

	openTool := mcp.NewTool("open_session",
		mcp.WithDescription("Open a beacon reading session from annotated page markup (see /api/v1/annotator.js). Scroll beacons are then posted by the page."),
		mcp.WithString("html",
			mcp.Required(),
			mcp.Description("The page markup after the annotator ran"),
		),
		mcp.WithString("url",
			mcp.Description("The page URL, informational"),
		),
		mcp.WithNumber("viewport_height",
			mcp.Description("The visitor's window height in pixels"),
		),
	)
	s.AddTool(openTool, handleOpenSession(apiURL, apiKey))

	reportTool := mcp.NewTool("session_report",
		mcp.WithDescription("Report the reading progress of an open session."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.AddTool(reportTool, handleSession(apiURL, apiKey, http.MethodGet))

	closeTool := mcp.NewTool("close_session",
		mcp.WithDescription("Close a reading session and return its final report."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.AddTool(closeTool, handleSession(apiURL, apiKey, http.MethodDelete))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the ReadTrack API and returns the response body.
// payload may be nil.
func apiDo(ctx context.Context, client *http.Client, method, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func errorResult(e *apiError, fallback string) *mcp.CallToolResult {
	if e == nil {
		return mcp.NewToolResultError(fallback)
	}
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", e.Code, e.Message))
}

func handleAnalyze(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 150 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]interface{}{"url": url}
		if mode := request.GetString("fetch_mode", ""); mode != "" {
			payload["fetch_mode"] = mode
		}
		if args := request.GetArguments(); args != nil {
			if _, ok := args["product_page"]; ok {
				payload["product_page"] = request.GetBool("product_page", false)
			}
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/analyze", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp analyzeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return errorResult(resp.Error, "analysis failed"), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Title: %s\nURL: %s\nEngine: %s\n", resp.Title, resp.FinalURL, resp.EngineUsed)
		if d := resp.Detection; d != nil {
			fmt.Fprintf(&sb, "Detected: %s (%s), product page: %t\n", d.Detector, d.Kind, d.ProductPage)
		}
		if r := resp.Region; r != nil {
			fmt.Fprintf(&sb, "Content: %.0fpx to %.0fpx, counted height %dpx\n", r.StartOffset, r.EndOffset, r.Height)
		}
		if d := resp.Diagnostics; d != nil {
			if d.PageBottomAt > 0 {
				fmt.Fprintf(&sb, "Page bottom at: %.0fpx of %.0fpx\n", d.PageBottomAt, d.DocumentHeight)
			}
			if d.ContentGuessed {
				sb.WriteString("Warning: content type could not be identified, a fallback container was used\n")
			}
			if d.ContentTooShort {
				sb.WriteString("Warning: content is shorter than the pixel threshold\n")
			}
		}
		if p := resp.Preview; p != nil {
			fmt.Fprintf(&sb, "Words: %d, reading time: %ds, expected behaviour: %s\n\n%s\n",
				p.Words, p.ReadingSeconds, p.ExpectedBehaviour, p.Markdown)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleSimulate(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		rawSteps, err := request.RequireString("steps")
		if err != nil {
			return mcp.NewToolResultError("steps is required"), nil
		}
		var steps []map[string]interface{}
		if err := json.Unmarshal([]byte(rawSteps), &steps); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("steps must be a JSON array: %v", err)), nil
		}

		payload := map[string]interface{}{"url": url, "steps": steps, "timeout": 120}
		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/simulate", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp simulateResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return errorResult(resp.Error, "simulation failed"), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Title: %s\nSteps played: %d\n", resp.Title, resp.Steps)
		writeProgress(&sb, resp.Region, resp.State, resp.Events)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleOpenSession(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		html, err := request.RequireString("html")
		if err != nil {
			return mcp.NewToolResultError("html is required"), nil
		}
		payload := map[string]interface{}{
			"html":            html,
			"url":             request.GetString("url", ""),
			"viewport_height": request.GetFloat("viewport_height", 0),
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/sessions", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp sessionResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return errorResult(resp.Error, "session could not be opened"), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Session: %s\nScroll beacons: POST %s/api/v1/sessions/%s/scroll {\"scroll_top\": <px>}\n", resp.ID, apiURL, resp.ID)
		writeProgress(&sb, resp.Region, resp.State, resp.Events)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleSession(apiURL, apiKey, method string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		respBody, err := apiDo(ctx, client, method, apiURL, apiKey, "/api/v1/sessions/"+id, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp sessionResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return errorResult(resp.Error, "session not available"), nil
		}

		var sb strings.Builder
		status := "open"
		if resp.Closed {
			status = "closed"
		}
		fmt.Fprintf(&sb, "Session %s (%s), %d scroll beacons, %d contact interactions\n", resp.ID, status, resp.Scrolls, resp.Interactions)
		writeProgress(&sb, resp.Region, resp.State, resp.Events)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// writeProgress formats the content region, the milestones and the events.
func writeProgress(sb *strings.Builder, r *region, st *state, events []event) {
	if r != nil {
		fmt.Fprintf(sb, "Content: %s, %.0fpx to %.0fpx, counted height %dpx\n", r.Name, r.StartOffset, r.EndOffset, r.Height)
	}
	if st != nil {
		fmt.Fprintf(sb, "Started reading: %t (after %ds)\n", st.StartedReading, st.TimeToScroll)
		fmt.Fprintf(sb, "Reached content end: %t (after %ds)\n", st.ReachedContentEnd, st.TimeToContentEnd)
		fmt.Fprintf(sb, "Reached page bottom: %t (total %ds)\n", st.ReachedPageBottom, st.TotalTime)
		if st.Behaviour != "" {
			fmt.Fprintf(sb, "Behaviour: %s\n", st.Behaviour)
		}
	}
	if len(events) == 0 {
		return
	}
	sb.WriteString("\nEvents:\n")
	for _, e := range events {
		fmt.Fprintf(sb, "- %s", e.Name)
		if e.Fields.MetricName != "" {
			fmt.Fprintf(sb, " %s=%d", e.Fields.MetricName, e.Fields.MetricValue)
		}
		for k, v := range e.Fields.Dimensions {
			fmt.Fprintf(sb, " [%s: %s]", k, v)
		}
		sb.WriteByte('\n')
	}
}
