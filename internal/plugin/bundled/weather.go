package bundled

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sidekick/internal/agent"
	"sidekick/internal/plugin"
)

const wttrBase = "https://wttr.in/"

func Weather() plugin.Source {
	return plugin.Static("weather", plugin.Constructor{
		Name: "get_weather",
		Plain: func() (agent.Tool, error) {
			return &weatherTool{
				base: wttrBase,
				client: &http.Client{
					Timeout:   10 * time.Second,
					Transport: otelhttp.NewTransport(http.DefaultTransport),
				},
			}, nil
		},
	})
}

type weatherTool struct {
	base   string
	client *http.Client
}

func (w *weatherTool) Name() string        { return "get_weather" }
func (w *weatherTool) Description() string { return "Get the current weather for a location." }

func (w *weatherTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{"type": "string", "description": "City or place name"},
		},
		"required": []string{"location"},
	}
}

func (w *weatherTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	location, _ := args["location"].(string)
	location = strings.TrimSpace(location)
	if location == "" {
		return "", errors.New("location is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base+url.PathEscape(location)+"?format=3", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather service returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("reading weather: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
