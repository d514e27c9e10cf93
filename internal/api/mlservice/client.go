package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Alias1177/GlucoPredictor/internal/forecast"
	httpClient "github.com/Alias1177/GlucoPredictor/internal/platform/http"
	"github.com/Alias1177/GlucoPredictor/models"
)

// ModelName identifies the remote scorer
const ModelName = "ml-remote"

// Client scores snapshots with a remote prediction service
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new prediction service client
type ClientOptions struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration

	// Breaker settings
	MinRequests      uint32
	FailureThreshold float64
	OpenTimeout      time.Duration
}

var _ forecast.Scorer = (*Client)(nil)

// NewClient creates a new prediction service client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
	}

	// Apply defaults if not set
	if httpOpts.Timeout == 0 {
		httpOpts.Timeout = 3 * time.Second
	}
	if httpOpts.MaxRetries == 0 {
		httpOpts.MaxRetries = 2
	}
	if httpOpts.MaxRetryTimeout == 0 {
		httpOpts.MaxRetryTimeout = 2 * time.Second
	}
	if options.MinRequests == 0 {
		options.MinRequests = 5
	}
	if options.FailureThreshold == 0 {
		options.FailureThreshold = 0.6
	}
	if options.OpenTimeout == 0 {
		options.OpenTimeout = 30 * time.Second
	}

	logger := log.With().Str("component", "mlservice_client").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ModelName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     options.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < options.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= options.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a service failure
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		httpClient: httpClient.NewClient(httpOpts),
		breaker:    breaker,
		logger:     logger,
	}
}

func (c *Client) Name() string {
	return ModelName
}

type predictRequest struct {
	Model          string                  `json:"model"`
	HorizonMinutes float64                 `json:"horizonMinutes"`
	Snapshot       *models.FeatureSnapshot `json:"snapshot"`
}

type predictResponse struct {
	PredictedGlucose *float64           `json:"predictedGlucose"`
	Certainty        *float64           `json:"certainty"`
	Contributions    map[string]float64 `json:"contributions"`
	Path             []float64          `json:"path"`
}

// Score posts the snapshot to the service. Every failure, including an open breaker,
// is reported as *models.ModelUnavailableError.
func (c *Client) Score(ctx context.Context, snap *models.FeatureSnapshot, horizon time.Duration) (*forecast.Score, error) {
	body, err := json.Marshal(predictRequest{
		Model:          ModelName,
		HorizonMinutes: horizon.Minutes(),
		Snapshot:       snap,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.predict(ctx, body)
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", snap.UserID).Msg("Remote scoring failed")
		return nil, &models.ModelUnavailableError{Model: ModelName, Err: err}
	}
	return result.(*forecast.Score), nil
}

func (c *Client) predict(ctx context.Context, body []byte) (*forecast.Score, error) {
	url := c.baseURL + "/v1/predict"

	resp, err := c.httpClient.DoRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var data predictResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(raw)).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if data.PredictedGlucose == nil || math.IsNaN(*data.PredictedGlucose) || math.IsInf(*data.PredictedGlucose, 0) {
		return nil, fmt.Errorf("response without a usable prediction")
	}

	score := &forecast.Score{
		Value:         *data.PredictedGlucose,
		Certainty:     data.Certainty,
		Contributions: make(map[models.SignalType]float64, len(data.Contributions)),
		Path:          data.Path,
	}
	for name, v := range data.Contributions {
		score.Contributions[models.SignalType(name)] = v
	}

	c.logger.Debug().Float64("predicted", score.Value).Int("path", len(score.Path)).Msg("Remote score received")
	return score, nil
}
