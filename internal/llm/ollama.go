package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultHost        = "http://127.0.0.1:11434"
	DefaultModel       = "llama3.1:8b"
	defaultTimeout     = 300 * time.Second
	defaultNumPredict  = 256
	defaultTemperature = 0.2
	maxResponseBytes   = 1 << 20
)

// OllamaConfig selects the model server. Zero fields take the defaults.
type OllamaConfig struct {
	Host         string
	Model        string
	AllowNetwork bool
	Timeout      time.Duration
	NumPredict   int
	Temperature  float64
}

// OllamaProvider talks to an Ollama server's chat endpoint.
type OllamaProvider struct {
	host        string
	model       string
	timeout     time.Duration
	numPredict  int
	temperature float64
	client      *http.Client
}

// NewOllamaProvider validates cfg. Hosts other than loopback are refused
// unless cfg.AllowNetwork is set.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("llm: invalid host %q", cfg.Host)
	}
	if !cfg.AllowNetwork && !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	p := &OllamaProvider{
		host:        host,
		model:       strings.TrimSpace(cfg.Model),
		timeout:     cfg.Timeout,
		numPredict:  cfg.NumPredict,
		temperature: cfg.Temperature,
		client:      &http.Client{},
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.numPredict <= 0 {
		p.numPredict = defaultNumPredict
	}
	if p.temperature <= 0 {
		p.temperature = defaultTemperature
	}
	return p, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Model returns the configured model name.
func (p *OllamaProvider) Model() string { return p.model }

func (p *OllamaProvider) Explain(ctx context.Context, req ExplainRequest) (ExplainResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	user, err := userPrompt(req)
	if err != nil {
		return ExplainResponse{}, err
	}
	text, err := p.chat(ctx, systemPrompt(req.Mode), user)
	if err != nil {
		return ExplainResponse{}, err
	}
	text = cleanText(text)
	if text == "" {
		return ExplainResponse{}, ErrEmptyResponse
	}
	return ExplainResponse{Text: text, Model: p.model}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

func (p *OllamaProvider) chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: chatOptions{NumPredict: p.numPredict, Temperature: p.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("llm: server returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("llm: parse response: %w", decodeErr)
	}
	return out.Message.Content, nil
}
