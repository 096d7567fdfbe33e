package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deal-sniper/internal/domain/deal"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; DealSniper/1.0; +https://github.com/deal-sniper)"

// httpClient 為 api 與 scraped fetcher 共用的 GET 流程。
type httpClient struct {
	client *http.Client
}

func newHTTPClient(client *http.Client) httpClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return httpClient{client: client}
}

// get 依來源設定發出 GET；metadata 中以 "header." 開頭的鍵會成為 request header。
func (c httpClient) get(ctx context.Context, source deal.Source, accept string) ([]byte, error) {
	target := sourceURL(source)
	if target == "" {
		return nil, fmt.Errorf("source %s has no endpoint", source.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", source.MetaOr("user_agent", defaultUserAgent))
	req.Header.Set("Accept", accept)
	for k, v := range source.Metadata {
		if name, ok := strings.CutPrefix(k, "header."); ok && name != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d: %s", source.Name, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// sourceURL 優先使用 endpoint，否則使用 base_url。
func sourceURL(source deal.Source) string {
	if source.Endpoint != "" {
		return source.Endpoint
	}
	return source.BaseURL
}

func truncateBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
