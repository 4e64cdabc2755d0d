// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/strokecovery/bites-engine/internal/httputil"
)

// extractionPromptTmpl is the prompt template sent to the Claude API for
// each paper section. It constrains the model to a schema where claim is
// required and every other field is nullable.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a medical research analyst specializing in stroke rehabilitation research. Extract key insights from the following {{.SectionName}} section of a stroke research paper.

Focus on rehabilitation techniques and their effectiveness, recovery timelines and outcomes, treatment recommendations, risk factors, and quality-of-life improvements. Only extract factual findings, not speculation or future-research suggestions.

For each insight extract:
- claim: the main finding, 1-2 sentences (required)
- evidence: supporting methodology or data, or null
- quantitative_result: specific numbers, percentages, p-values, or null
- stroke_types: applicable stroke types from ["ischemic", "hemorrhagic", "tbi"], or [] if general
- recovery_phase: "acute" (under 7 days), "subacute" (7 days to 6 months), "chronic" (6+ months), or null
- intervention: the treatment or therapy discussed, or null
- sample_size: number of participants as a positive integer, or null

Respond with a JSON object containing an "insights" array. If the section has no relevant insights, return {"insights": []}. Do not include any text outside the JSON object.
{{if .Strict}}
STRICT MODE: your previous response failed validation. Output ONLY the JSON object, with every field exactly as specified above. No markdown fences, no commentary, no extra fields.
{{end}}
Paper section:
{{.Text}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude API to extract insights from one section.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Extract calls the Claude API with the extraction prompt for one section.
func (c *ClaudeBackend) Extract(ctx context.Context, sectionName, text string, strict bool) (AIResponse, error) {
	prompt, err := renderPrompt(sectionName, text, strict)
	if err != nil {
		return AIResponse{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return AIResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return AIResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return AIResponse{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return AIResponse{}, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return AIResponse{}, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var aiResp AIResponse
		if err := json.Unmarshal([]byte(stripFences(block.Text)), &aiResp); err != nil {
			return AIResponse{}, fmt.Errorf("parsing AI response JSON: %w", err)
		}
		return aiResp, nil
	}

	return AIResponse{}, fmt.Errorf("no text content in Claude API response")
}

// stripFences removes a surrounding markdown code fence, which some model
// responses add despite instructions.
func stripFences(s string) string {
	trimmed := bytes.TrimSpace([]byte(s))
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return s
	}
	if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = bytes.TrimSuffix(bytes.TrimSpace(trimmed), []byte("```"))
	return string(bytes.TrimSpace(trimmed))
}

// renderPrompt executes the extraction prompt template.
func renderPrompt(sectionName, text string, strict bool) (string, error) {
	var buf bytes.Buffer
	data := struct {
		SectionName string
		Text        string
		Strict      bool
	}{sectionName, text, strict}
	if err := extractionPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
