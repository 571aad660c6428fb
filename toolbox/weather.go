package toolbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/martinemde/stepagent/steploop"
)

// DefaultWeatherURL is the wttr.in endpoint.
const DefaultWeatherURL = "https://wttr.in"

// Weather looks up current conditions for the get_weather tool.
type Weather struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewWeather returns a Weather using wttr.in.
func NewWeather() *Weather {
	return &Weather{
		BaseURL:    DefaultWeatherURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Lookup returns a one-line weather summary for city. A non-200 reply is
// reported as text, not as an error; only transport failures are errors.
func (w *Weather) Lookup(ctx context.Context, city string) (string, error) {
	base := w.BaseURL
	if base == "" {
		base = DefaultWeatherURL
	}
	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	city = strings.TrimSpace(city)
	u := strings.TrimRight(base, "/") + "/" + url.PathEscape(strings.ToLower(city)) + "?format=%C+%t"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("get_weather: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get_weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "Something went wrong", nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("get_weather: reading reply: %w", err)
	}
	return fmt.Sprintf("The weather in %s is %s", city, strings.TrimSpace(string(body))), nil
}

// Tool returns the get_weather tool.
func (w *Weather) Tool() steploop.Tool {
	return steploop.Tool{
		Name:        "get_weather",
		Description: "Takes a city name as input and returns the current weather for that city.",
		Run:         w.Lookup,
	}
}
