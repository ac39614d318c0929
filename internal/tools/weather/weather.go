// Package weather provides the built-in "query_weather" MCP tool, which looks
// up current conditions for a city via the OpenWeather current-weather API.
//
// Upstream failures (bad city, quota exhausted, network trouble) are reported
// as readable text in the tool result rather than as protocol errors, so the
// LLM can relay them to the user directly.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// DefaultBaseURL is the OpenWeather current-weather endpoint used when no
// override is configured.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides the default OpenWeather API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client, e.g. to adjust timeouts or inject
// a test transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client queries the OpenWeather current-weather API.
type Client struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
}

// New creates a weather client for the given OpenWeather API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("weather: apiKey must not be empty")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Observation holds the subset of the OpenWeather response the tool reports.
type Observation struct {
	City        string
	Country     string
	TempC       float64
	Humidity    int
	WindSpeed   float64
	Description string
}

// Format renders the observation as the multi-line text returned to callers.
func (o Observation) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %s\n", o.City, o.Country)
	fmt.Fprintf(&b, "Temperature: %.1f°C\n", o.TempC)
	fmt.Fprintf(&b, "Humidity: %d%%\n", o.Humidity)
	fmt.Fprintf(&b, "Wind: %.1f m/s\n", o.WindSpeed)
	fmt.Fprintf(&b, "Conditions: %s\n", o.Description)
	return b.String()
}

// apiResponse mirrors the fields of the OpenWeather current-weather JSON that
// the tool cares about.
type apiResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Message string `json:"message"`
}

// Current fetches the current conditions for city. The city name must be in
// English; metric units are requested.
func (c *Client) Current(ctx context.Context, city string) (Observation, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Observation{}, fmt.Errorf("weather: build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Observation{}, fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Observation{}, fmt.Errorf("weather: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := body.Message
		if msg == "" {
			msg = resp.Status
		}
		return Observation{}, fmt.Errorf("weather: upstream error (HTTP %d): %s", resp.StatusCode, msg)
	}

	o := Observation{
		City:        body.Name,
		Country:     body.Sys.Country,
		TempC:       body.Main.Temp,
		Humidity:    body.Main.Humidity,
		WindSpeed:   body.Wind.Speed,
		Description: "unknown",
	}
	if o.City == "" {
		o.City = city
	}
	if len(body.Weather) > 0 && body.Weather[0].Description != "" {
		o.Description = body.Weather[0].Description
	}
	return o, nil
}

// queryArgs is the JSON-decoded input for the "query_weather" tool.
type queryArgs struct {
	// City is the city name in English, e.g. "Taipei" or "New York".
	City string `json:"city"`
}

// queryHandler implements the "query_weather" tool. Upstream failures are
// folded into the result text so the conversation can continue.
func (c *Client) queryHandler(ctx context.Context, args string) (string, error) {
	var a queryArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("weather: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.City) == "" {
		return "", fmt.Errorf("weather: city must not be empty")
	}

	obs, err := c.Current(ctx, strings.TrimSpace(a.City))
	if err != nil {
		return fmt.Sprintf("Weather lookup failed: %v", err), nil
	}
	return obs.Format(), nil
}

// Tools returns the built-in weather tools ready for registration.
//
// The returned tools are:
//   - "query_weather": current conditions for a city, formatted as text.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "query_weather",
				Description: "Look up the current weather for a city: temperature, humidity, wind speed and conditions. City names must be in English, e.g. \"Taipei\", \"Tokyo\", \"New York\".",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"city": map[string]any{
							"type":        "string",
							"description": "City name in English. Keep spaces in multi-word names, e.g. \"New York\".",
						},
					},
					"required": []string{"city"},
				},
			},
			Handler: c.queryHandler,
		},
	}
}
