package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const defaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

var errOpenMeteoStatus = errors.New("open-meteo: unexpected status")

// OpenMeteoProvider reads current conditions from Open-Meteo. Calls go
// through a circuit breaker; there is no retry.
type OpenMeteoProvider struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider builds a provider. An empty baseURL uses the public
// endpoint; a nil client gets a 10s timeout.
func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		baseURL: baseURL,
		client:  client,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "open-meteo",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return "open-meteo"
}

type openMeteoPayload struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Max []float64 `json:"temperature_2m_max"`
		Min []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, at Coordinates) (Reading, error) {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", at.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", at.Longitude))
	values.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
	values.Set("daily", "temperature_2m_max,temperature_2m_min")
	values.Set("temperature_unit", "fahrenheit")
	values.Set("wind_speed_unit", "mph")
	values.Set("timezone", "auto")
	values.Set("forecast_days", "1")

	result, err := p.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %d", errOpenMeteoStatus, resp.StatusCode)
		}

		var payload openMeteoPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("open-meteo: decode: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		return Reading{}, err
	}

	payload, ok := result.(openMeteoPayload)
	if !ok {
		return Reading{}, errors.New("open-meteo: unexpected result type")
	}

	r := Reading{
		Temp:      payload.Current.Temperature,
		High:      payload.Current.Temperature,
		Low:       payload.Current.Temperature,
		Humidity:  payload.Current.Humidity,
		WindSpeed: payload.Current.WindSpeed,
		Condition: conditionForCode(payload.Current.WeatherCode),
	}
	if len(payload.Daily.Max) > 0 {
		r.High = payload.Daily.Max[0]
	}
	if len(payload.Daily.Min) > 0 {
		r.Low = payload.Daily.Min[0]
	}
	return r, nil
}

// conditionForCode maps WMO weather codes onto display conditions.
func conditionForCode(code int) string {
	switch {
	case code == 0:
		return "Sunny"
	case code == 1 || code == 2:
		return "Partly Cloudy"
	case code == 3 || code == 45 || code == 48:
		return "Cloudy"
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return "Rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "Snow"
	case code >= 95:
		return "Rain"
	default:
		return "Sunny"
	}
}
