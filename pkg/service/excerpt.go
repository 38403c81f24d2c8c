package service

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const excerptSeparator = "\n\n"

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "what": {}, "was": {}, "were": {}, "which": {}, "with": {},
	"how": {}, "many": {}, "much": {}, "does": {}, "did": {}, "are": {}, "this": {}, "that": {},
	"from": {}, "according": {}, "report": {}, "into": {}, "its": {}, "their": {}, "who": {},
}

type section struct {
	index int
	text  string
	size  int
	score int
}

// splitSections 按顶层标题切分 markdown，标题之前的内容单独成段
func splitSections(markdown string) []string {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	starts := []int{0}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		start := lineStart(src, h.Lines().At(0).Start)
		if start > starts[len(starts)-1] {
			starts = append(starts, start)
		}
	}
	sections := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if s := strings.TrimSpace(markdown[start:end]); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) < 3 && !isNumber(w) {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// ExcerptReport 报告不超过 maxChars 时原样返回；否则按与问题的词重叠挑选完整章节，保持原文顺序
func ExcerptReport(report, question string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(report) <= maxChars {
		return report, false
	}
	qTerms := terms(question)
	parts := splitSections(report)
	if len(parts) == 0 {
		return string([]rune(report)[:maxChars]), true
	}
	sections := make([]section, 0, len(parts))
	for i, p := range parts {
		lower := strings.ToLower(p)
		score := 0
		for t := range qTerms {
			if c := strings.Count(lower, t); c > 0 {
				score += 10 + min(c, 5)
			}
		}
		sections = append(sections, section{index: i, text: p, size: utf8.RuneCountInString(p), score: score})
	}
	ranked := append([]section(nil), sections...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	sepSize := utf8.RuneCountInString(excerptSeparator)
	used := 0
	selected := make([]section, 0)
	for _, s := range ranked {
		need := s.size
		if len(selected) > 0 {
			need += sepSize
		}
		if used+need > maxChars {
			continue
		}
		selected = append(selected, s)
		used += need
	}
	if len(selected) == 0 {
		// 单个章节就超过上限，只能截断得分最高的章节
		return string([]rune(ranked[0].text)[:maxChars]), true
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].index < selected[j].index })
	out := make([]string, 0, len(selected))
	for _, s := range selected {
		out = append(out, s.text)
	}
	return strings.Join(out, excerptSeparator), true
}
