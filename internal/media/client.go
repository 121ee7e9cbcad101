package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/epic-tech-ai/config"
	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
)

// retryLogger adapts the application logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	log *log.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.log.Error(msg, keysAndValues...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.log.Warn(msg, keysAndValues...)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.log.Debug(msg, keysAndValues...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.log.Debug(msg, keysAndValues...)
}

func NewHTTPClient(cfg config.Media) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = retryLogger{log: logger.With("component", "media")}
	client.CheckRetry = checkRetry
	return client
}

type noRetryKey struct{}

// withoutRetry marks requests that must be sent at most once, e.g. ones that start paid work.
func withoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// promptURL builds "<base>/prompt/<escaped prompt>?<query>".
func promptURL(baseURL, prompt string, query url.Values) (string, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return "", fmt.Errorf("invalid media base url: %w", err)
	}
	return strings.TrimRight(baseURL, "/") + "/prompt/" + url.PathEscape(prompt) + "?" + query.Encode(), nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
}
