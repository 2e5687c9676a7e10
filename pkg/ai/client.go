package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Terminal statuses reported for file batches and runs.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// ErrorCodeRateLimit is the upstream error code for exhausted quota.
const ErrorCodeRateLimit = "rate_limit_exceeded"

// Client calls the hosted assistants API: assistants, vector stores, file
// batches, threads, and streamed runs.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets the delay between file batch status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient constructs a client with the provided API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Assistant is a provider-managed conversational agent.
type Assistant struct {
	ID string `json:"id"`
}

// VectorStore is a provider-managed semantic index.
type VectorStore struct {
	ID string `json:"id"`
}

// File is an uploaded provider file.
type File struct {
	ID string `json:"id"`
}

// FileBatch tracks indexing of uploaded files into a vector store.
type FileBatch struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Thread is a provider-managed conversation.
type Thread struct {
	ID string `json:"id"`
}

// ThreadMessage is one turn used to seed or extend a thread.
type ThreadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunError describes why a run failed.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunUsage reports token consumption for a completed run.
type RunUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Run is one generation execution against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error"`
	Usage     *RunUsage `json:"usage"`
}

// CreateAssistant provisions an assistant configured for file search.
func (c *Client) CreateAssistant(ctx context.Context, name, instructions, model string) (Assistant, error) {
	var out Assistant
	err := c.doJSON(ctx, http.MethodPost, "/assistants", map[string]any{
		"name":         name,
		"instructions": instructions,
		"model":        model,
		"tools":        []map[string]string{{"type": "file_search"}},
	}, &out)
	return out, err
}

// BindVectorStore points the assistant's file search at a vector store.
func (c *Client) BindVectorStore(ctx context.Context, assistantID, vectorStoreID string) (Assistant, error) {
	var out Assistant
	err := c.doJSON(ctx, http.MethodPost, "/assistants/"+assistantID, map[string]any{
		"tool_resources": fileSearchResources(vectorStoreID),
	}, &out)
	return out, err
}

// CreateVectorStore provisions a named vector store.
func (c *Client) CreateVectorStore(ctx context.Context, name string) (VectorStore, error) {
	var out VectorStore
	err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]any{"name": name}, &out)
	return out, err
}

// UploadFile uploads file content for assistant use.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (File, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return File{}, fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return File{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return File{}, fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return File{}, fmt.Errorf("close multipart writer: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return File{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out File
	if err := c.do(req, &out); err != nil {
		return File{}, err
	}
	return out, nil
}

// UploadAndPoll uploads a file into a vector store and waits until the
// provider reports a terminal batch status.
func (c *Client) UploadAndPoll(ctx context.Context, vectorStoreID, filename string, r io.Reader) (FileBatch, error) {
	file, err := c.UploadFile(ctx, filename, r)
	if err != nil {
		return FileBatch{}, err
	}
	var batch FileBatch
	err = c.doJSON(ctx, http.MethodPost, "/vector_stores/"+vectorStoreID+"/file_batches", map[string]any{
		"file_ids": []string{file.ID},
	}, &batch)
	if err != nil {
		return FileBatch{}, err
	}
	for !isTerminalStatus(batch.Status) {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		err = c.doJSON(ctx, http.MethodGet, "/vector_stores/"+vectorStoreID+"/file_batches/"+batch.ID, nil, &batch)
		if err != nil {
			return FileBatch{}, err
		}
	}
	return batch, nil
}

// CreateThread creates a conversation seeded with messages and scoped to the
// given vector store for file search.
func (c *Client) CreateThread(ctx context.Context, messages []ThreadMessage, vectorStoreID string) (Thread, error) {
	payload := map[string]any{
		"messages":       messages,
		"tool_resources": fileSearchResources(vectorStoreID),
	}
	var out Thread
	err := c.doJSON(ctx, http.MethodPost, "/threads", payload, &out)
	return out, err
}

// CreateThreadMessage appends one turn to a thread.
func (c *Client) CreateThreadMessage(ctx context.Context, threadID, role, content string) error {
	return c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", ThreadMessage{
		Role:    role,
		Content: content,
	}, nil)
}

// GetRun fetches a run's current state including terminal status and usage.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &out)
	return out, err
}

func fileSearchResources(vectorStoreID string) map[string]any {
	return map[string]any{
		"file_search": map[string]any{
			"vector_store_ids": []string{vectorStoreID},
		},
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return fmt.Errorf("assistants api error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("assistants api error: %s", resp.Status)
}
