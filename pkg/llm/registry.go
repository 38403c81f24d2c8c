package llm

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// litellm 配置文件中的 model_list
type modelList struct {
	ModelList []struct {
		ModelName     string `yaml:"model_name"`
		LitellmParams struct {
			Model string `yaml:"model"`
		} `yaml:"litellm_params"`
	} `yaml:"model_list"`
}

// Registry 短模型名到 provider 完整模型名的映射
type Registry struct {
	path   string
	models map[string]string
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取模型列表失败 %s", path)
	}
	var list modelList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrapf(err, "解析模型列表失败 %s", path)
	}
	r := &Registry{path: path, models: make(map[string]string, len(list.ModelList))}
	for _, m := range list.ModelList {
		if m.ModelName == "" || m.LitellmParams.Model == "" {
			continue
		}
		// 同名取第一个
		if _, ok := r.models[m.ModelName]; !ok {
			r.models[m.ModelName] = m.LitellmParams.Model
		}
	}
	return r, nil
}

func NewRegistry(models map[string]string) *Registry {
	return &Registry{path: "<memory>", models: models}
}

// Resolve 返回完整模型名，未登记的短名称报错
func (r *Registry) Resolve(name string) (string, error) {
	if full, ok := r.models[name]; ok {
		return full, nil
	}
	return "", errors.Wrapf(ErrBadRequest, "model_name %s 不在 %s 中", name, r.path)
}

// SplitProvider 把 vertex_ai/gemini-2.5-flash 拆成 provider 和模型名，没有前缀时 provider 为空
func SplitProvider(full string) (string, string) {
	idx := strings.Index(full, "/")
	if idx < 0 {
		return "", full
	}
	return full[:idx], full[idx+1:]
}
