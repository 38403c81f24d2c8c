package util

import (
	"strings"

	"github.com/pkg/errors"
)

// FormatPrompt 按 {name} 占位符渲染提示词，{{ 和 }} 输出字面量大括号。
// 替换进来的值不会再次解析，报告内容里的大括号原样保留。
func FormatPrompt(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", errors.Errorf("提示词第 %d 个字符处的 '{' 没有闭合", i)
			}
			name := tmpl[i+1 : i+1+end]
			if strings.ContainsAny(name, "{") {
				return "", errors.Errorf("提示词第 %d 个字符处的占位符非法", i)
			}
			value, ok := values[name]
			if !ok {
				return "", errors.Errorf("提示词中的占位符 {%s} 没有对应的值", name)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", errors.Errorf("提示词第 %d 个字符处出现单独的 '}'", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
