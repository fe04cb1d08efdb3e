package experts

import (
	"context"

	"github.com/zoe-ai/zoe-core/internal/coreerr"
)

var weatherTriggers = []string{"weather", "forecast", "temperature outside", "is it raining"}

// WeatherExpert reads from an allow-listed external weather API. It never
// mutates, so nothing to compensate.
type WeatherExpert struct {
	base
	client   *EndpointClient
	endpoint string
}

func NewWeatherExpert(client *EndpointClient, endpoint string) *WeatherExpert {
	return &WeatherExpert{base: base{variant: VariantWeather, mutating: false}, client: client, endpoint: endpoint}
}

func (e *WeatherExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, weatherTriggers), nil
}

func (e *WeatherExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	body, err := e.client.Call(ctx, e.endpoint, ectx.AllowedEndpoints)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{Success: true, Content: body, Confidence: 0.8}, nil
}

var homeAutomationTriggers = []string{"turn on", "turn off", "dim the", "lock the door", "set the thermostat", "smart switch"}

// HomeAutomationExpert calls an allow-listed home automation endpoint.
// Mutates external device state, so it participates in rollback.
type HomeAutomationExpert struct {
	base
	client   *EndpointClient
	endpoint string
}

func NewHomeAutomationExpert(client *EndpointClient, endpoint string) *HomeAutomationExpert {
	return &HomeAutomationExpert{base: base{variant: VariantHomeAutomation, mutating: true}, client: client, endpoint: endpoint}
}

func (e *HomeAutomationExpert) CanHandle(ctx context.Context, query string, ectx Context) (float64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	return keywordScore(query, homeAutomationTriggers), nil
}

func (e *HomeAutomationExpert) Execute(ctx context.Context, query string, ectx Context) (Result, error) {
	body, err := e.client.Call(ctx, e.endpoint, ectx.AllowedEndpoints)
	if err != nil {
		return Result{Success: false, ErrorKind: coreerr.KindOf(err)}, nil
	}
	return Result{
		Success:    true,
		Content:    "Done.",
		Actions:    []Action{{Name: "home_automation.command", Args: map[string]string{"endpoint": e.endpoint}}},
		Artifacts:  map[string]any{"raw_response": body},
		Confidence: 0.75,
	}, nil
}

// Compensate for home automation is best-effort: it re-calls the same
// endpoint, relying on the external device API's own idempotent toggle
// semantics (out of this core's control, per spec's external-collaborator
// framing).
func (e *HomeAutomationExpert) Compensate(ctx context.Context, artifact map[string]any) error {
	endpoint, _ := artifact["endpoint"].(string)
	if endpoint == "" {
		return nil
	}
	_, err := e.client.Call(ctx, endpoint, []string{endpoint})
	return err
}
