package convert

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const noModel = "no_model"

// CacheManager 以 markdown 文件缓存转换结果，失败结果同样缓存
type CacheManager struct {
	dir                 string
	read                bool
	write               bool
	retryCachedFailures bool
}

func NewCacheManager(dir string, read, write, retryCachedFailures bool) *CacheManager {
	return &CacheManager{dir: dir, read: read, write: write, retryCachedFailures: retryCachedFailures}
}

// CacheKey md5(<文件名>_<mtime>_<lib>_<model>)
func CacheKey(doc model.Document, lib, modelName string) string {
	if modelName == "" {
		modelName = noModel
	}
	mtime := strconv.FormatFloat(float64(doc.ModTime.UnixNano())/1e9, 'f', -1, 64)
	return util.MD5Hex(doc.Name + "_" + mtime + "_" + lib + "_" + modelName)
}

func (c *CacheManager) path(key string) string {
	return filepath.Join(c.dir, key+".md")
}

// Get 命中时返回缓存的结果；retry_cached_failures 打开时失败结果按未命中处理
func (c *CacheManager) Get(doc model.Document, lib, modelName string) (*model.ConvertedText, bool) {
	if !c.read {
		return nil, false
	}
	key := CacheKey(doc, lib, modelName)
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			zap.S().Warnf("读取转换缓存失败 %s: %v", key, err)
		}
		return nil, false
	}
	content := string(data)
	result := &model.ConvertedText{
		Document: doc,
		Lib:      lib,
		Model:    modelName,
		Cached:   true,
	}
	if model.IsFailureMarkdown(content) {
		if c.retryCachedFailures {
			zap.S().Debugf("缓存中 %s 为失败结果，重新转换", doc.Name)
			return nil, false
		}
		result.Status = model.ConversionFailure
		result.Error = strings.TrimPrefix(content, model.FailureMarkdown(doc.Name, ""))
		return result, true
	}
	result.Status = model.ConversionSuccess
	result.Markdown = content
	return result, true
}

// Put 写入缓存，write_cache 关闭时什么都不做
func (c *CacheManager) Put(result *model.ConvertedText) error {
	if !c.write || result.Cached {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "创建缓存目录失败")
	}
	key := CacheKey(result.Document, result.Lib, result.Model)
	return os.WriteFile(c.path(key), []byte(result.FileContent()), 0o644)
}
