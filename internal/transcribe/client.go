package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client posts WAV chunks to a speech-to-text HTTP service and extracts
// the transcript from its JSON response.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the speech service at baseURL.
// apiKey may be empty for services without authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// recognizeResponse mirrors the service's JSON shape: a list of results,
// each with ranked alternatives carrying a transcript.
type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe sends one WAV chunk to the recognize endpoint and returns
// the top transcript. A response with no results yields an empty string,
// which the caller treats as a silent chunk, not an error.
func (c *Client) Transcribe(ctx context.Context, wavData []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(wavData))
	if err != nil {
		return "", fmt.Errorf("creating recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognize: unexpected status %d", resp.StatusCode)
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding recognize response: %w", err)
	}

	if len(result.Results) == 0 || len(result.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(result.Results[0].Alternatives[0].Transcript), nil
}
