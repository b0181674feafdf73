package agents

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

	"github.com/dkowalski/arbor/internal/card"
	"github.com/dkowalski/arbor/internal/taxonomy"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Client calls the Anthropic Messages API for all four collaborator
// contracts. Every method degrades to the Offline fallback on any failure:
// transport error, non-200 status, or an unparseable response.
type Client struct {
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client

	fallback Offline
}

// NewClient creates a Client from the environment. The API key comes from
// ANTHROPIC_API_KEY; a missing key is not an error here because every call
// degrades gracefully anyway.
func NewClient(model string, timeout time.Duration) *Client {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		model:   model,
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Available reports whether the client has credentials to attempt real calls.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

var _ PlanGenerator = (*Client)(nil)
var _ Validator = (*Client)(nil)
var _ Optimizer = (*Client)(nil)
var _ Classifier = (*Client)(nil)

// GeneratePlan requests a taxonomy plan fragment for an overview.
func (c *Client) GeneratePlan(ctx context.Context, ov card.Overview, strat taxonomy.Strategy, parentPath string) Result[taxonomy.Plan] {
	prompt := buildPlanPrompt(ov, strat, parentPath)

	text, err := c.callAPI(ctx, prompt)
	if err != nil {
		return Degraded(FallbackPlan(parentPath), fmt.Sprintf("plan generation: %v", err))
	}

	var plan taxonomy.Plan
	if err := unmarshalAgentJSON(text, &plan); err != nil {
		return Degraded(FallbackPlan(parentPath), fmt.Sprintf("plan generation: %v", err))
	}
	if len(plan.Folders) == 0 {
		return Degraded(FallbackPlan(parentPath), "plan generation: response had no folders")
	}
	return Ok(plan)
}

// ValidatePlan requests a structural critique of a repaired plan.
func (c *Client) ValidatePlan(ctx context.Context, plan taxonomy.Plan, ov card.Overview, samples []card.FileCard) Result[ValidationReport] {
	prompt := buildValidatePrompt(plan, ov, samples)

	text, err := c.callAPI(ctx, prompt)
	if err != nil {
		return Degraded(ValidationReport{}, fmt.Sprintf("validation: %v", err))
	}

	var report ValidationReport
	if err := unmarshalAgentJSON(text, &report); err != nil {
		return Degraded(ValidationReport{}, fmt.Sprintf("validation: %v", err))
	}
	return Ok(report)
}

// OptimizePlacements requests improved placements for low-confidence files.
func (c *Client) OptimizePlacements(ctx context.Context, plan taxonomy.Plan, batch []PlacementReview) Result[OptimizationResult] {
	prompt := buildOptimizePrompt(plan, batch)

	text, err := c.callAPI(ctx, prompt)
	if err != nil {
		return Degraded(EchoOptimization(batch), fmt.Sprintf("optimization: %v", err))
	}

	var result OptimizationResult
	if err := unmarshalAgentJSON(text, &result); err != nil {
		return Degraded(EchoOptimization(batch), fmt.Sprintf("optimization: %v", err))
	}
	return Ok(result)
}

// Classify requests a summary and tags for one file.
func (c *Client) Classify(ctx context.Context, fc card.FileCard) Result[Classification] {
	prompt := buildClassifyPrompt(fc)

	text, err := c.callAPI(ctx, prompt)
	if err != nil {
		return c.fallback.Classify(ctx, fc)
	}

	var cl Classification
	if err := unmarshalAgentJSON(text, &cl); err != nil {
		return c.fallback.Classify(ctx, fc)
	}
	cl.Tags = card.NormalizeTags(cl.Tags)
	if cl.Summary == "" && len(cl.Tags) == 0 {
		return c.fallback.Classify(ctx, fc)
	}
	return Ok(cl)
}

func buildPlanPrompt(ov card.Overview, strat taxonomy.Strategy, parentPath string) string {
	var sb strings.Builder

	if parentPath == "" {
		fmt.Fprintf(&sb, "Design a virtual folder taxonomy for a collection of %d files. ", ov.FileCount)
		fmt.Fprintf(&sb, "Propose about %d top-level folders with placement rules. Return JSON only.\n\n", strat.TopLevelFolderCount)
	} else {
		fmt.Fprintf(&sb, "Design sub-folders for the branch %q holding %d files. ", parentPath, ov.FileCount)
		sb.WriteString("All folder paths must be absolute and nested under the branch path. Return JSON only.\n\n")
	}

	overviewJSON, _ := json.Marshal(ov)
	sb.WriteString("Collection overview:\n")
	sb.Write(overviewJSON)
	sb.WriteString("\n\n")

	sb.WriteString(`Return a JSON object with this structure:
{
  "folders": [{"id": "stable-id", "path": "/Absolute/Path", "description": "what belongs here"}],
  "rules": [{"id": "rule-id", "target_folder_id": "stable-id", "required_tags": [], "forbidden_tags": [],
             "path_contains": [], "extension_in": [], "summary_contains_any": [],
             "priority": 50, "reason_template": "why the file belongs here"}]
}

Rules:
- Folder paths start with "/" and have no trailing slash
- Every rule's target_folder_id must reference a folder id from this response
- Higher priority wins when several rules match; use 0-100
- Include one low-priority catch-all rule with no conditions

Return ONLY the JSON, no other text.`)

	return sb.String()
}

func buildValidatePrompt(plan taxonomy.Plan, ov card.Overview, samples []card.FileCard) string {
	var sb strings.Builder

	sb.WriteString("Critique this virtual folder plan for structural problems: overlapping folders, ")
	sb.WriteString("rules that can never match, unreachable folders, unclear boundaries. Return JSON only.\n\n")

	planJSON, _ := json.Marshal(plan)
	sb.WriteString("Plan:\n")
	sb.Write(planJSON)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "The collection has %d files. Sample file cards:\n", ov.FileCount)
	samplesJSON, _ := json.Marshal(samples)
	sb.Write(samplesJSON)
	sb.WriteString("\n\n")

	sb.WriteString(`Return a JSON object with this structure:
{
  "issues": ["human-readable problem descriptions"],
  "corrected_folders": [{"id": "...", "path": "...", "description": "..."}],
  "corrected_rules": [{"id": "...", "target_folder_id": "...", "priority": 50}],
  "files_needing_optimization": ["file ids that no rule places well"]
}

Corrections replace the folder/rule with the same id. Empty arrays mean the plan is fine.
Return ONLY the JSON, no other text.`)

	return sb.String()
}

func buildOptimizePrompt(plan taxonomy.Plan, batch []PlacementReview) string {
	var sb strings.Builder

	sb.WriteString("These files were placed with low confidence. Propose better placements, ")
	sb.WriteString("inventing new folders only when nothing in the plan fits. Return JSON only.\n\n")

	planJSON, _ := json.Marshal(plan)
	sb.WriteString("Plan:\n")
	sb.Write(planJSON)
	sb.WriteString("\n\nFiles and their current placements:\n")
	batchJSON, _ := json.Marshal(batch)
	sb.Write(batchJSON)
	sb.WriteString("\n\n")

	sb.WriteString(`Return a JSON object with this structure:
{
  "placements": [{"file_id": "...", "virtual_path": "/Folder/name.ext", "confidence": 0.8, "reason": "..."}],
  "new_folders": [{"id": "...", "path": "/New/Folder", "description": "..."}]
}

Keep each file's original name as the last path segment. Return one placement per input file.
Return ONLY the JSON, no other text.`)

	return sb.String()
}

func buildClassifyPrompt(fc card.FileCard) string {
	var sb strings.Builder

	sb.WriteString("Classify this file from its metadata. Return JSON only.\n\n")
	fmt.Fprintf(&sb, "Name: %s\nRelative path: %s\nExtension: %s\nSize: %d bytes\n\n",
		fc.Name, fc.RelativePath, fc.Extension, fc.Size)

	sb.WriteString(`Return a JSON object with this structure:
{"summary": "one sentence", "tags": ["lowercase-tag", "another"]}

Rules:
- 2-6 lowercase tags, reusable across a large collection
- Tags describe content type, topic, and time period when inferable

Return ONLY the JSON, no other text.`)

	return sb.String()
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) callAPI(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPI, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return apiResp.Content[0].Text, nil
}

// unmarshalAgentJSON parses an agent response into v, tolerating markdown
// code fences around the JSON.
func unmarshalAgentJSON(resp string, v any) error {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	if err := json.Unmarshal([]byte(resp), v); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}
