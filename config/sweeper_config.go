package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type SweeperConfig struct {
	Params        map[string]interface{} `json:"params" yaml:"params"`                 // 点分 key -> 逗号分隔的取值
	SkipCompleted bool                   `json:"skip_completed" yaml:"skip_completed"` // 跳过注册表中已完成的组合
}

// SweepParam 一个扫描维度
type SweepParam struct {
	Key    string
	Values []string
}

func (s *SweeperConfig) Validate() []error {
	var errs = make([]error, 0)
	params, err := s.Flatten()
	if err != nil {
		errs = append(errs, err)
		return errs
	}
	for _, p := range params {
		if !knownSection(strings.SplitN(p.Key, ".", 2)[0]) {
			errs = append(errs, errors.Errorf("sweeper.params 未知的配置节: %q", p.Key))
		}
		if len(p.Values) == 0 {
			errs = append(errs, errors.Errorf("sweeper.params.%s 没有取值", p.Key))
		}
	}
	return errs
}

// Flatten 把 viper 拆开的嵌套 map 还原为点分 key，按 key 排序
func (s *SweeperConfig) Flatten() ([]SweepParam, error) {
	flat := make(map[string][]string)
	if err := flattenInto(flat, "", s.Params); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]SweepParam, 0, len(keys))
	for _, k := range keys {
		out = append(out, SweepParam{Key: k, Values: flat[k]})
	}
	return out, nil
}

func flattenInto(dst map[string][]string, prefix string, m map[string]interface{}) error {
	for k, v := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case map[string]interface{}:
			if err := flattenInto(dst, key, val); err != nil {
				return err
			}
		case map[interface{}]interface{}:
			if err := flattenInto(dst, key, cast.ToStringMap(val)); err != nil {
				return err
			}
		case []interface{}:
			values := make([]string, 0, len(val))
			for _, item := range val {
				values = append(values, cast.ToString(item))
			}
			dst[key] = values
		case []string:
			dst[key] = append([]string(nil), val...)
		default:
			str, err := cast.ToStringE(val)
			if err != nil {
				return errors.Errorf("sweeper.params.%s 取值类型不支持: %T", key, v)
			}
			dst[key] = SplitValues(str)
		}
	}
	return nil
}

// SplitValues 按逗号拆分，保留 [a,b] 这种列表写法不拆
func SplitValues(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return []string{raw}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func NewDefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Params:        map[string]interface{}{},
		SkipCompleted: true,
	}
}
