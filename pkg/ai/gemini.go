package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta"
)

var (
	// ErrUpload marks a rejected or failed file registration.
	ErrUpload = errors.New("gemini: file upload failed")
	// ErrFileNotFound marks a file reference that expired or never existed.
	ErrFileNotFound = errors.New("gemini: file not found")
)

// FileRef is a handle to a document registered with the Gemini Files API.
type FileRef struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	DisplayName string `json:"displayName"`
	MIMEType    string `json:"mimeType"`
}

// ID returns the bare file identifier without the "files/" prefix.
func (f FileRef) ID() string {
	return strings.TrimPrefix(f.Name, "files/")
}

// Part is one element of a generation input: either text or a file
// reference, never both.
type Part struct {
	Text string
	File *FileRef
}

// GenerateRequest describes a single-turn generation call.
type GenerateRequest struct {
	Parts             []Part
	SystemInstruction string
	ResponseMIMEType  string
	ResponseSchema    json.RawMessage
}

// ContentGenerator is the generation surface consumed by the quiz and
// study guide generators. *Client implements it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, req GenerateRequest) (string, error)
}

// TokenCounter reports advisory token counts for an input.
type TokenCounter interface {
	CountTokens(ctx context.Context, model string, req GenerateRequest) (int, error)
}

// Client calls the Google AI Studio (Gemini) API. It is the only owner
// of network traffic to the generative backend; callers get no retries
// and no caching.
type Client struct {
	apiKey       string
	baseURL      string
	uploadURL    string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient constructs a client with the provided API key.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &Client{
		apiKey:    apiKey,
		baseURL:   defaultGeminiBaseURL,
		uploadURL: defaultGeminiUploadURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		// Streaming responses stay open for as long as the model keeps
		// producing; they are bounded by the caller's context instead
		// of a client-wide timeout.
		streamClient: &http.Client{},
	}, nil
}

// UploadFile registers a local file with the Files API and returns its
// remote handle. Failures wrap ErrUpload.
func (c *Client) UploadFile(ctx context.Context, path, displayName string) (FileRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: read %s: %v", ErrUpload, path, err)
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	meta := map[string]any{"file": map[string]string{"display_name": displayName}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if _, err := mediaPart.Write(data); err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if err := mw.Close(); err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	url := fmt.Sprintf("%s/files?uploadType=multipart&key=%s", c.uploadURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return FileRef{}, fmt.Errorf("%w: %s", ErrUpload, apiErrorMessage(resp))
	}
	var out struct {
		File FileRef `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FileRef{}, fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	return out.File, nil
}

// GetFile re-resolves a previously uploaded file by its identifier.
// Returns ErrFileNotFound when the backend no longer knows the file.
func (c *Client) GetFile(ctx context.Context, id string) (FileRef, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "files/")
	url := fmt.Sprintf("%s/files/%s?key=%s", c.baseURL, id, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FileRef{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return FileRef{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	if resp.StatusCode >= 400 {
		return FileRef{}, fmt.Errorf("gemini api error: %s", apiErrorMessage(resp))
	}
	var ref FileRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return FileRef{}, err
	}
	return ref, nil
}

// GenerateContent returns the full generated text for a single call.
func (c *Client) GenerateContent(ctx context.Context, model string, req GenerateRequest) (string, error) {
	body := buildGenerateRequest(req)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	var resp generateResponse
	if err := c.doJSON(ctx, url, body, &resp); err != nil {
		return "", err
	}
	text := resp.text()
	if text == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return text, nil
}

// StreamGenerateContent streams generation output, invoking fn once per
// non-empty text chunk in arrival order. A non-nil error from fn aborts
// the stream and is returned unchanged.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, req GenerateRequest, fn func(chunk string) error) error {
	body := buildGenerateRequest(req)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	return c.doStream(ctx, url, body, fn)
}

// CountTokens returns the token count for an input. Advisory only; the
// study guide generator logs it ahead of the expensive structure call.
func (c *Client) CountTokens(ctx context.Context, model string, req GenerateRequest) (int, error) {
	body := struct {
		Contents []content `json:"contents"`
	}{Contents: []content{{Role: "user", Parts: wireParts(req.Parts)}}}
	url := fmt.Sprintf("%s/models/%s:countTokens?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	var resp struct {
		TotalTokens int `json:"totalTokens"`
	}
	if err := c.doJSON(ctx, url, body, &resp); err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *Client) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gemini api error: %s", apiErrorMessage(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

func (c *Client) doStream(ctx context.Context, url string, payload any, fn func(chunk string) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gemini api error: %s", apiErrorMessage(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if text := chunk.text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func apiErrorMessage(resp *http.Response) string {
	var errResp errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return resp.Status
}

func buildGenerateRequest(req GenerateRequest) generateRequest {
	out := generateRequest{
		Contents: []content{{Role: "user", Parts: wireParts(req.Parts)}},
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.ResponseMIMEType != "" || len(req.ResponseSchema) > 0 {
		out.GenerationConfig = &generationConfig{
			ResponseMIMEType: req.ResponseMIMEType,
			ResponseSchema:   req.ResponseSchema,
		}
	}
	return out
}

func wireParts(parts []Part) []part {
	out := make([]part, 0, len(parts))
	for _, p := range parts {
		if p.File != nil {
			out = append(out, part{FileData: &fileData{
				MIMEType: p.File.MIMEType,
				FileURI:  p.File.URI,
			}})
			continue
		}
		out = append(out, part{Text: p.Text})
	}
	return out
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
