package model

import (
	"fmt"
	"strings"
)

type ConversionStatus string

const (
	ConversionSuccess ConversionStatus = "success"
	ConversionFailure ConversionStatus = "failure"
)

// ConversionErrorPrefix 失败结果写入 markdown 文件时的前缀，缓存和回答阶段都依赖它
const ConversionErrorPrefix = "Error converting"

// ConvertedText 一个文档经某个转换库得到的文本，保存在 conversions.json
type ConvertedText struct {
	ID              string           `json:"id"` // UUID
	Document        Document         `json:"document"`
	Lib             string           `json:"lib"`
	Model           string           `json:"model"`
	Markdown        string           `json:"-"`
	Status          ConversionStatus `json:"status"`
	Error           string           `json:"error,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
	Cached          bool             `json:"cached"`
	MarkdownFile    string           `json:"markdown_file"` // 运行目录下 markdown 文件名
}

// TableName 指定表名
func (ConvertedText) TableName() string {
	return "conversions"
}

func (c *ConvertedText) Succeeded() bool {
	return c.Status == ConversionSuccess
}

// FileContent 写入磁盘的内容，失败时写入错误说明
func (c *ConvertedText) FileContent() string {
	if c.Succeeded() {
		return c.Markdown
	}
	return FailureMarkdown(c.Document.Name, c.Error)
}

// FailureMarkdown 失败结果的 markdown 内容
func FailureMarkdown(name, reason string) string {
	return fmt.Sprintf("%s %s: %s", ConversionErrorPrefix, name, reason)
}

// IsFailureMarkdown 判断 markdown 内容是否是转换失败的记录
func IsFailureMarkdown(content string) bool {
	return strings.HasPrefix(content, ConversionErrorPrefix)
}

// ConversionManifest 一次转换阶段的全部结果
type ConversionManifest struct {
	Lib         string          `json:"lib"`
	Model       string          `json:"model"`
	Conversions []ConvertedText `json:"conversions"`
}

// ByMarkdownFile 按 markdown 文件名索引
func (m *ConversionManifest) ByMarkdownFile() map[string]ConvertedText {
	out := make(map[string]ConvertedText, len(m.Conversions))
	for _, c := range m.Conversions {
		out[c.MarkdownFile] = c
	}
	return out
}
