package model

import (
	"path/filepath"
	"strings"
)

const markdownInfix = "_from_"

// MarkdownFilename <stem>_from_<ext>.md
func MarkdownFilename(docName string) string {
	ext := filepath.Ext(docName)
	stem := strings.TrimSuffix(docName, ext)
	return stem + markdownInfix + strings.TrimPrefix(strings.ToLower(ext), ".") + ".md"
}

// MatchesReport 判断 markdown 文件是否由该报告转换而来
func MatchesReport(markdownFile, reportName string) bool {
	return strings.HasPrefix(markdownFile, reportName+markdownInfix) && strings.HasSuffix(markdownFile, ".md")
}

// SourceFormatOf 从 markdown 文件名取出源格式，无法识别时返回空
func SourceFormatOf(markdownFile string) string {
	name := strings.TrimSuffix(filepath.Base(markdownFile), ".md")
	idx := strings.LastIndex(name, markdownInfix)
	if idx < 0 {
		return ""
	}
	return name[idx+len(markdownInfix):]
}
