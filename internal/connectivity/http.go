package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// bodyPreview bounds how much of a response body is logged
const bodyPreview = 100

// getHTTP issues a GET. Any response counts as reachable; the status is
// reported but not judged.
func (c *Checker) getHTTP(ctx context.Context, target Target, result *Result) {
	start := c.now()
	if !c.resolve(ctx, target.Host, result) {
		return
	}

	path := target.Path
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := fmt.Sprintf("%s://%s%s", target.Protocol, target.Address(), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return
	}

	resp, err := c.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		result.ErrorCode = errorCode(err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreview+1))
	preview := string(body)
	if len(body) > bodyPreview {
		preview = string(body[:bodyPreview]) + "...(truncated)"
	}
	c.logger.Debug("HTTP %s answered %d: %s", url, resp.StatusCode, preview)

	result.Success = true
	result.HTTPStatus = resp.StatusCode
	result.LatencyMs = c.elapsed(start)
}
