package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Override 命令行中的一个 key=value 覆盖项
type Override struct {
	Key   string
	Value interface{}
	Raw   string
}

// String 还原为 key=value 形式，用于写入运行目录
func (o Override) String() string {
	return o.Key + "=" + o.Raw
}

// ParseOverrides 解析形如 convert.lib=docling 的参数
func ParseOverrides(args []string) ([]Override, error) {
	overrides := make([]Override, 0, len(args))
	for _, arg := range args {
		idx := strings.Index(arg, "=")
		if idx <= 0 {
			return nil, errors.Errorf("覆盖参数格式错误 %q，应为 key=value", arg)
		}
		key := strings.ToLower(strings.TrimSpace(arg[:idx]))
		raw := strings.TrimSpace(arg[idx+1:])
		if key == "" {
			return nil, errors.Errorf("覆盖参数 key 不能为空: %q", arg)
		}
		section := strings.SplitN(key, ".", 2)[0]
		if !knownSection(section) {
			return nil, errors.Errorf("未知的配置节 %q (参数 %q)", section, arg)
		}
		overrides = append(overrides, Override{Key: key, Value: ParseValue(raw), Raw: raw})
	}
	return overrides, nil
}

// ParseValue 把覆盖值转换为 bool/int/float/列表/字符串
func ParseValue(raw string) interface{} {
	switch strings.ToLower(raw) {
	case "true", "false":
		return cast.ToBool(raw)
	case "null", "~":
		return nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		items := make([]string, 0)
		if inner == "" {
			return items
		}
		for _, item := range strings.Split(inner, ",") {
			items = append(items, strings.Trim(strings.TrimSpace(item), `"'`))
		}
		return items
	}
	// 十进制，010 不按八进制解析
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := cast.ToFloat64E(raw); err == nil {
		return f
	}
	return strings.Trim(raw, `"'`)
}

// SortOverrides 按 key 排序，保证运行键稳定
func SortOverrides(overrides []Override) []Override {
	out := append([]Override(nil), overrides...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func knownSection(name string) bool {
	for _, s := range Sections {
		if s == name {
			return true
		}
	}
	return false
}
