package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/convert"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"
	"meet-your-new-client/pkg/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConversionsFile 运行目录下的转换清单
const ConversionsFile = "conversions.json"

type ConvertService struct {
	cfg       *config.GlobalConfig
	store     storage.Store
	backend   convert.Backend
	cache     *convert.CacheManager
	processor *convert.ContentProcessor
	runDir    string
}

func NewConvertService(cfg *config.GlobalConfig, store storage.Store, backend convert.Backend, runDir string) *ConvertService {
	c := cfg.Convert
	return &ConvertService{
		cfg:       cfg,
		store:     store,
		backend:   backend,
		cache:     convert.NewCacheManager(cfg.Paths.CacheDir, c.ReadCache, c.WriteCache, c.RetryCachedFailures),
		processor: convert.NewContentProcessor(),
		runDir:    runDir,
	}
}

// modelName 实际使用的转换模型，gemini 使用自己的配置
func (s *ConvertService) modelName() string {
	if s.cfg.Convert.Lib == config.LibGemini && s.cfg.Convert.Gemini != nil {
		return s.cfg.Convert.Gemini.Model
	}
	return s.cfg.Convert.Model
}

// Run 转换全部选中的文档。单个文档失败只记录，worker 不可用等基础设施错误直接返回
func (s *ConvertService) Run(ctx context.Context) (*model.ConversionManifest, error) {
	lib := s.cfg.Convert.Lib
	modelName := s.modelName()
	manifest := &model.ConversionManifest{Lib: lib, Model: modelName, Conversions: []model.ConvertedText{}}

	docs, err := convert.DiscoverDocuments(ctx, s.store, s.cfg.Paths.ReportsDir, s.cfg.Convert.Suffix)
	if err != nil {
		return nil, errors.Wrapf(err, "查找报告失败 %s", s.cfg.Paths.ReportsDir)
	}
	docs = convert.SelectDocuments(docs, s.cfg.Convert.TargetFiles, s.cfg.Convert.SampleFirstN)
	if len(docs) == 0 {
		return manifest, s.writeManifest(manifest)
	}
	zap.S().Infof("使用 %s (model=%s) 转换 %d 个文档", lib, s.cfg.Convert.ModelOrNone(), len(docs))

	results := make([]model.ConvertedText, len(docs))
	pending := make([]int, 0, len(docs))
	for i, doc := range docs {
		if cached, ok := s.cache.Get(doc, lib, modelName); ok {
			cached.ID = uuid.NewString()
			results[i] = *cached
			continue
		}
		pending = append(pending, i)
	}
	if hits := len(docs) - len(pending); hits > 0 {
		zap.S().Infof("转换缓存命中 %d 个，待转换 %d 个", hits, len(pending))
	}

	if len(pending) > 0 {
		if r, ok := s.backend.(convert.Readier); ok {
			if err := r.Ready(ctx); err != nil {
				return nil, err
			}
		}
	}

	start := time.Now()
	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Convert.MaxContainers)
	for _, idx := range pending {
		idx := idx
		g.Go(func() error {
			results[idx] = s.convertOne(gctx, docs[idx], modelName)
			mu.Lock()
			done++
			zap.S().Debugf("[%d/%d] %s: %s", done, len(pending), docs[idx].Name, results[idx].Status)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	markdownDir := s.cfg.Paths.Resolve(s.runDir, s.cfg.Paths.MarkdownDir)
	if err := os.MkdirAll(markdownDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "创建 markdown 目录失败")
	}
	failures := 0
	for i := range results {
		r := &results[i]
		if !r.Succeeded() {
			failures++
			zap.S().Warnf("%s 转换失败: %s", r.Document.Name, r.Error)
		}
		path := convert.MarkdownPath(markdownDir, r.Document.Name)
		r.MarkdownFile = filepath.Base(path)
		if err := os.WriteFile(path, []byte(r.FileContent()), 0o644); err != nil {
			return nil, errors.Wrapf(err, "写入 markdown 失败 %s", path)
		}
		if err := s.cache.Put(r); err != nil {
			zap.S().Warnf("写入转换缓存失败 %s: %v", r.Document.Name, err)
		}
	}
	manifest.Conversions = results

	if len(pending) > 0 {
		zap.S().Infof("转换完成: %d 个文档, 失败 %d 个, 耗时 %s, 平均 %.2f s/doc",
			len(docs), failures, elapsed.Round(time.Millisecond), elapsed.Seconds()/float64(len(pending)))
	} else {
		zap.S().Infof("转换完成: %d 个文档全部来自缓存, 失败 %d 个", len(docs), failures)
	}
	return manifest, s.writeManifest(manifest)
}

func (s *ConvertService) convertOne(ctx context.Context, doc model.Document, modelName string) model.ConvertedText {
	result := model.ConvertedText{
		ID:       uuid.NewString(),
		Document: doc,
		Lib:      s.cfg.Convert.Lib,
		Model:    modelName,
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Convert.Timeout)
	defer cancel()

	start := time.Now()
	markdown, err := s.backend.Convert(ctx, &convert.Request{
		Document:    doc,
		Lib:         s.cfg.Convert.Lib,
		Model:       modelName,
		ImgPrompt:   s.cfg.Convert.ImgPrompt,
		Temperature: s.cfg.Convert.Temperature,
	})
	if err == nil {
		markdown, err = s.processor.Process(markdown)
	}
	result.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Errorf("超过 %s 未完成", s.cfg.Convert.Timeout)
		}
		result.Status = model.ConversionFailure
		result.Error = err.Error()
		return result
	}
	result.Status = model.ConversionSuccess
	result.Markdown = markdown
	return result
}

func (s *ConvertService) writeManifest(manifest *model.ConversionManifest) error {
	return util.WriteJSON(filepath.Join(s.runDir, ConversionsFile), manifest)
}

// LoadManifest 读取运行目录中的转换清单，不存在时返回 nil
func LoadManifest(runDir string) (*model.ConversionManifest, error) {
	var m model.ConversionManifest
	if err := util.ReadJSON(filepath.Join(runDir, ConversionsFile), &m); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
