package model

import (
	"path"
	"strings"
	"time"
)

type DocumentFormat string

const (
	FormatPDF   DocumentFormat = "pdf"
	FormatPPTX  DocumentFormat = "pptx"
	FormatOther DocumentFormat = "other"
)

// Document 待转换的源文档，发现后不再修改
type Document struct {
	Name    string         `json:"name"`     // 文件名
	Path    string         `json:"path"`     // 存储中的路径（本地路径或对象名）
	Format  DocumentFormat `json:"format"`   // pdf / pptx / other
	Size    int64          `json:"size"`     // 字节数
	ModTime time.Time      `json:"mod_time"` // 最后修改时间，参与缓存键
}

// FormatOf 根据扩展名判断格式
func FormatOf(name string) DocumentFormat {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".pptx":
		return FormatPPTX
	default:
		return FormatOther
	}
}

// Stem 去掉扩展名的文件名，问题通过它关联到文档
func (d Document) Stem() string {
	return strings.TrimSuffix(d.Name, path.Ext(d.Name))
}

// Ext 不带点的小写扩展名
func (d Document) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(d.Name)), ".")
}
