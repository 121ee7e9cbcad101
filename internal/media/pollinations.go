package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/model"
)

// ImageGenerator renders images through the Pollinations prompt endpoint.
type ImageGenerator struct {
	client  *retryablehttp.Client
	baseURL string
	width   int
	height  int
}

func NewImageGenerator(client *retryablehttp.Client, cfg config.Media) *ImageGenerator {
	return &ImageGenerator{
		client:  client,
		baseURL: cfg.PollinationsBaseURL,
		width:   cfg.ImageWidth,
		height:  cfg.ImageHeight,
	}
}

// Generate requests the image and returns the URL it was finally served from.
func (g *ImageGenerator) Generate(ctx context.Context, req model.MediaRequest) (model.MediaResult, error) {
	query := url.Values{}
	query.Set("width", strconv.Itoa(g.width))
	query.Set("height", strconv.Itoa(g.height))
	query.Set("nologo", "true")
	imageURL, err := promptURL(g.baseURL, req.Prompt, query)
	if err != nil {
		return model.MediaResult{}, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return model.MediaResult{}, err
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return model.MediaResult{}, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return model.MediaResult{}, fmt.Errorf("image request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.Request != nil && resp.Request.URL != nil {
		imageURL = resp.Request.URL.String()
	}
	return model.MediaResult{URL: imageURL}, nil
}
