package convert

import (
	"html"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	fenceRegex      = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```\\s*$")
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
	trailingSpace   = regexp.MustCompile(`[ \t]+\n`)
	// docling 输出的页码注释，与内容无关
	pageMarkerRegex = regexp.MustCompile(`<!--\s*page\s*\d*\s*-->`)
)

var refusalPhrases = []string{
	"i'm sorry, but i can't",
	"i am sorry, but i cannot",
	"i cannot assist with",
	"i can't help with",
	"i'm unable to",
}

var ErrEmptyOutput = errors.New("转换结果为空")

// ContentProcessor 清洗各转换库返回的 markdown
type ContentProcessor struct{}

func NewContentProcessor() *ContentProcessor {
	return &ContentProcessor{}
}

// Process 统一换行、去掉代码围栏和多余空行；结果为空时返回 ErrEmptyOutput
func (p *ContentProcessor) Process(raw string) (string, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = StripCodeFence(text)
	text = pageMarkerRegex.ReplaceAllString(text, "")
	text = p.unescapeEntities(text)
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

// unescapeEntities 只解码实体，不解析 HTML 标签，表格里的 <br> 保持原样
func (p *ContentProcessor) unescapeEntities(text string) string {
	if !strings.Contains(text, "&") {
		return text
	}
	return html.UnescapeString(text)
}

// StripCodeFence 模型有时把整页包在 ```markdown ... ``` 里
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fenceRegex.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return text
}

// IsRefusal 判断模型是否拒绝处理
func IsRefusal(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > 200 {
		head = head[:200]
	}
	for _, p := range refusalPhrases {
		if strings.Contains(head, p) {
			return true
		}
	}
	return false
}
