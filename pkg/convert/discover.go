package convert

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"

	"go.uber.org/zap"
)

var defaultSuffixes = []string{".pdf", ".pptx"}

// DiscoverDocuments 递归查找报告，suffix 为空时查找 .pdf 和 .pptx
func DiscoverDocuments(ctx context.Context, store storage.Store, reportsDir, suffix string) ([]model.Document, error) {
	objects, err := store.List(ctx, reportsDir)
	if err != nil {
		return nil, err
	}
	suffixes := defaultSuffixes
	if suffix != "" {
		suffixes = []string{strings.ToLower(suffix)}
	}
	docs := make([]model.Document, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(filepath.ToSlash(obj.Path))
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !hasSuffix(name, suffixes) {
			continue
		}
		docs = append(docs, model.Document{
			Name:    name,
			Path:    obj.Path,
			Format:  model.FormatOf(name),
			Size:    obj.Size,
			ModTime: obj.ModTime,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// SelectDocuments target_files 优先，其次取前 sampleFirstN 个
func SelectDocuments(docs []model.Document, targetFiles []string, sampleFirstN int) []model.Document {
	if len(docs) == 0 {
		zap.S().Warn("没有找到需要转换的文档")
		return nil
	}
	if len(targetFiles) > 0 {
		wanted := make(map[string]struct{}, len(targetFiles))
		for _, f := range targetFiles {
			wanted[path.Base(filepath.ToSlash(f))] = struct{}{}
		}
		out := make([]model.Document, 0, len(targetFiles))
		for _, d := range docs {
			if _, ok := wanted[d.Name]; ok {
				out = append(out, d)
				delete(wanted, d.Name)
			}
		}
		for name := range wanted {
			zap.S().Warnf("target_files 中的 %s 不存在", name)
		}
		return out
	}
	if sampleFirstN > 0 && sampleFirstN < len(docs) {
		return docs[:sampleFirstN]
	}
	return docs
}

// MarkdownPath 转换结果保存位置 <markdownDir>/<stem>_from_<ext>.md
func MarkdownPath(markdownDir, name string) string {
	return filepath.Join(markdownDir, model.MarkdownFilename(name))
}

func hasSuffix(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
