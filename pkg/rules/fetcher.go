package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Fetcher 定义规则组资源的获取接口
type Fetcher interface {
	Fetch(ctx context.Context) (Groups, error)
}

// HTTPClient 通过 HTTP GET 获取规则组
type HTTPClient struct {
	url    string
	client *resty.Client
	logger *zap.Logger
}

// NewHTTPClient 创建一个新的 HTTPClient 实例
func NewHTTPClient(url string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		url:    url,
		client: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		logger: logger,
	}
}

// Fetch 获取并解析规则组
func (c *HTTPClient) Fetch(ctx context.Context) (Groups, error) {
	c.logger.Info("Fetching rule groups", zap.String("url", c.url))
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return Groups{}, fmt.Errorf("failed to fetch rule groups from %s: %w", c.url, err)
	}
	if resp.IsError() {
		return Groups{}, fmt.Errorf("failed to fetch rule groups from %s: %s", c.url, resp.Status())
	}
	return decode(resp.Body())
}

// FileSource 从本地 JSON 文件读取规则组
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource 创建一个新的 FileSource 实例
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, logger: logger}
}

// Fetch 读取并解析规则组文件
func (s *FileSource) Fetch(ctx context.Context) (Groups, error) {
	s.logger.Info("Reading rule groups", zap.String("path", s.path))
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Groups{}, fmt.Errorf("failed to read rule groups: %w", err)
	}
	return decode(data)
}

// NewFetcher 根据配置选择规则组来源，URL 优先；都未配置时返回 nil
func NewFetcher(url, path string, timeout time.Duration, logger *zap.Logger) Fetcher {
	switch {
	case url != "":
		return NewHTTPClient(url, timeout, logger)
	case path != "":
		return NewFileSource(path, logger)
	}
	return nil
}

func decode(data []byte) (Groups, error) {
	var g Groups
	if err := json.Unmarshal(data, &g); err != nil {
		return Groups{}, fmt.Errorf("failed to decode rule groups: %w", err)
	}
	if g.Data == nil {
		g.Data = map[string]string{}
	}
	return g, nil
}
