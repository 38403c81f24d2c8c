package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RemoteBackend 调用独立部署的转换 worker（docling / markitdown / zerox / marker）
type RemoteBackend struct {
	lib           string
	url           string
	store         storage.Store
	httpClient    *http.Client
	healthTimeout time.Duration
	pollInterval  time.Duration
}

func NewRemoteBackend(lib, url string, store storage.Store, healthTimeout time.Duration) *RemoteBackend {
	return &RemoteBackend{
		lib:           lib,
		url:           strings.TrimRight(url, "/"),
		store:         store,
		httpClient:    &http.Client{},
		healthTimeout: healthTimeout,
		pollInterval:  time.Second,
	}
}

// Ready 每秒探测一次 /health/readiness，超时返回 ErrWorkerUnavailable
func (b *RemoteBackend) Ready(ctx context.Context) error {
	deadline := time.Now().Add(b.healthTimeout)
	var lastErr error
	for {
		lastErr = b.probe(ctx)
		if lastErr == nil {
			zap.S().Infof("%s worker 已就绪: %s", b.lib, b.url)
			return nil
		}
		if time.Now().Add(b.pollInterval).After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
	return errors.Wrapf(ErrWorkerUnavailable, "%s worker %s 在 %s 内未就绪: %v", b.lib, b.url, b.healthTimeout, lastErr)
}

func (b *RemoteBackend) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+"/health/readiness", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("readiness 返回 %d", resp.StatusCode)
	}
	return nil
}

// payload 只有 docling 使用图片描述提示词；markitdown 没有模型时不带 model
func (b *RemoteBackend) payload(ctx context.Context, req *Request) (*model.ConvertWorkerRequest, error) {
	p := &model.ConvertWorkerRequest{
		File:     b.store.URI(req.Document.Path),
		Filename: req.Document.Name,
		Lib:      b.lib,
		Model:    req.Model,
	}
	if b.lib == config.LibDocling {
		p.ImgPrompt = req.ImgPrompt
	}
	if _, local := b.store.(*storage.LocalStore); local {
		content, err := storage.ReadAll(ctx, b.store, req.Document.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "读取文档失败 %s", req.Document.Path)
		}
		p.Content = content
	}
	return p, nil
}

func (b *RemoteBackend) Convert(ctx context.Context, req *Request) (string, error) {
	p, err := b.payload(ctx, req)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "请求序列化失败")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/convert", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrapf(err, "%s worker 请求失败", b.lib)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "读取 worker 响应失败")
	}

	var out model.ConvertWorkerResponse
	if jerr := json.Unmarshal(data, &out); jerr != nil && resp.StatusCode == http.StatusOK {
		return "", errors.Wrap(jerr, "解析 worker 响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return "", errors.Errorf("%s worker 返回 %d: %s", b.lib, resp.StatusCode, msg)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	zap.S().Debugf("%s 转换 %s 完成，worker 耗时 %.2fs", b.lib, req.Document.Name, out.ElapsedSeconds)
	return out.Markdown, nil
}
