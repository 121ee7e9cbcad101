package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

const (
	predictionSucceeded = "succeeded"
	predictionFailed    = "failed"
	predictionCanceled  = "canceled"
)

type predictionInput struct {
	Prompt            string `json:"prompt"`
	NumFrames         int    `json:"num_frames"`
	NumInferenceSteps int    `json:"num_inference_steps"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// VideoGenerator runs a Replicate text-to-video prediction when a token is configured and otherwise
// falls back to an animated Pollinations render.
type VideoGenerator struct {
	client       *retryablehttp.Client
	cfg          config.Media
	pollInterval time.Duration
}

func NewVideoGenerator(client *retryablehttp.Client, cfg config.Media) *VideoGenerator {
	pollInterval := cfg.ReplicatePollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &VideoGenerator{
		client:       client,
		cfg:          cfg,
		pollInterval: pollInterval,
	}
}

func (g *VideoGenerator) Generate(ctx context.Context, req model.MediaRequest) (model.MediaResult, error) {
	if g.cfg.ReplicateAPIToken == "" {
		return g.pollinations(req.Prompt)
	}
	return g.replicate(ctx, req.Prompt)
}

func (g *VideoGenerator) pollinations(prompt string) (model.MediaResult, error) {
	query := url.Values{}
	query.Set("width", strconv.Itoa(g.cfg.ImageWidth))
	query.Set("height", strconv.Itoa(g.cfg.ImageHeight))
	query.Set("model", "flux")
	query.Set("nologo", "true")
	query.Set("enhance", "true")
	videoURL, err := promptURL(g.cfg.PollinationsBaseURL, prompt, query)
	if err != nil {
		return model.MediaResult{}, err
	}
	return model.MediaResult{URL: videoURL}, nil
}

func (g *VideoGenerator) replicate(ctx context.Context, prompt string) (model.MediaResult, error) {
	predictionsURL, err := url.JoinPath(g.cfg.ReplicateBaseURL, "/v1/predictions")
	if err != nil {
		return model.MediaResult{}, fmt.Errorf("invalid replicate base url: %w", err)
	}
	body, err := json.Marshal(
		predictionRequest{
			Version: g.cfg.ReplicateVideoVersion,
			Input: predictionInput{
				Prompt:            prompt,
				NumFrames:         24,
				NumInferenceSteps: 50,
			},
		},
	)
	if err != nil {
		return model.MediaResult{}, err
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	current, err := g.call(withoutRetry(ctx), http.MethodPost, predictionsURL, body)
	if err != nil {
		return model.MediaResult{}, err
	}
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for !isTerminal(current.Status) {
		select {
		case <-ctx.Done():
			return model.MediaResult{}, fmt.Errorf("video prediction %s is still %s: %w", current.ID, current.Status, ctx.Err())
		case <-ticker.C:
		}
		pollURL, err := url.JoinPath(predictionsURL, current.ID)
		if err != nil {
			return model.MediaResult{}, err
		}
		if current, err = g.call(ctx, http.MethodGet, pollURL, nil); err != nil {
			return model.MediaResult{}, err
		}
		logger.Debug("replicate prediction polled", "id", current.ID, "status", current.Status)
	}

	if current.Status != predictionSucceeded {
		return model.MediaResult{}, fmt.Errorf("video prediction %s %s: %v", current.ID, current.Status, current.Error)
	}
	videoURL, err := firstOutput(current.Output)
	if err != nil {
		return model.MediaResult{}, err
	}
	return model.MediaResult{URL: videoURL}, nil
}

func (g *VideoGenerator) call(ctx context.Context, method, endpoint string, body []byte) (prediction, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, rawBody)
	if err != nil {
		return prediction{}, err
	}
	httpReq.Header.Set("Authorization", "Token "+g.cfg.ReplicateAPIToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return prediction{}, fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return prediction{}, fmt.Errorf("replicate request failed: %w", err)
	}
	var result prediction
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return prediction{}, fmt.Errorf("failed to decode replicate prediction: %w", err)
	}
	return result, nil
}

func isTerminal(status string) bool {
	switch status {
	case predictionSucceeded, predictionFailed, predictionCanceled:
		return true
	default:
		return false
	}
}

// firstOutput accepts both a single URL and a list of URLs.
func firstOutput(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0] != "" {
		return list[0], nil
	}
	return "", fmt.Errorf("video prediction returned no output")
}
