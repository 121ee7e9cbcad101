package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

type recordTrackParams struct {
	Mode     string `json:"mode"`
	Duration int    `json:"duration"`
	Tags     string `json:"tags"`
	License  string `json:"license"`
}

type recordTrackRequest struct {
	Method string            `json:"method"`
	Params recordTrackParams `json:"params"`
}

type recordTrackResponse struct {
	Status int `json:"status"`
	Data   struct {
		Tasks []struct {
			DownloadLink string `json:"download_link"`
		} `json:"tasks"`
	} `json:"data"`
}

// MusicGenerator records a Mubert track. Any failure yields the demo track instead of an error.
type MusicGenerator struct {
	client      *retryablehttp.Client
	endpoint    string
	license     string
	fallbackURL string
}

func NewMusicGenerator(client *retryablehttp.Client, cfg config.Media) *MusicGenerator {
	return &MusicGenerator{
		client:      client,
		endpoint:    cfg.MubertEndpoint,
		license:     cfg.MubertLicense,
		fallbackURL: cfg.MusicFallbackURL,
	}
}

func (g *MusicGenerator) Generate(ctx context.Context, req model.MediaRequest) (model.MediaResult, error) {
	link, err := g.recordTrack(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return model.MediaResult{}, ctx.Err()
		}
		logger.Warn("music generation failed, using demo track", "error", err)
		return model.MediaResult{URL: g.fallbackURL, IsDemo: true}, nil
	}
	return model.MediaResult{URL: link}, nil
}

func (g *MusicGenerator) recordTrack(ctx context.Context, req model.MediaRequest) (string, error) {
	body, err := json.Marshal(
		recordTrackRequest{
			Method: "RecordTrack",
			Params: recordTrackParams{
				Mode:     "track",
				Duration: req.Duration,
				Tags:     fmt.Sprintf("%s,%s", req.Genre, req.Mood),
				License:  g.license,
			},
		},
	)
	if err != nil {
		return "", err
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var result recordTrackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode mubert response: %w", err)
	}
	if result.Status != 1 || len(result.Data.Tasks) == 0 || result.Data.Tasks[0].DownloadLink == "" {
		return "", errors.New("mubert returned no track")
	}
	return result.Data.Tasks[0].DownloadLink, nil
}
