package config

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

type PathsConfig struct {
	ReportsDir           string   `json:"reports_dir" yaml:"reports_dir"`                       // 报告源目录（本地目录或对象前缀）
	QuestionsFile        string   `json:"questions_file" yaml:"questions_file"`                 // 问题 JSON 文件
	CacheDir             string   `json:"cache_dir" yaml:"cache_dir"`                           // markdown 转换缓存目录
	OutputRoot           string   `json:"output_root" yaml:"output_root"`                       // 运行目录的父目录
	RunDir               string   `json:"run_dir" yaml:"run_dir"`                               // 显式指定运行目录
	MarkdownDir          string   `json:"markdown_dir" yaml:"markdown_dir"`                     // 相对运行目录
	AnswersFile          string   `json:"answers_file" yaml:"answers_file"`                     // 相对运行目录
	EvaluatedAnswersFile string   `json:"evaluated_answers_file" yaml:"evaluated_answers_file"` // 相对运行目录
	ResultsDir           string   `json:"results_dir" yaml:"results_dir"`                       // 相对运行目录
	AggregateDirs        []string `json:"aggregate_dirs" yaml:"aggregate_dirs"`                 // 额外需要汇总的运行目录
}

func (p *PathsConfig) Validate() []error {
	var errs = make([]error, 0)
	if p.OutputRoot == "" && p.RunDir == "" {
		errs = append(errs, errors.Errorf("paths.output_root 与 paths.run_dir 不能同时为空"))
	}
	for _, kv := range [][2]string{
		{"paths.markdown_dir", p.MarkdownDir},
		{"paths.answers_file", p.AnswersFile},
		{"paths.evaluated_answers_file", p.EvaluatedAnswersFile},
		{"paths.results_dir", p.ResultsDir},
	} {
		if kv[1] == "" {
			errs = append(errs, errors.Errorf("%s 不能为空", kv[0]))
		}
	}
	return errs
}

func NewDefaultPathsConfig() *PathsConfig {
	return &PathsConfig{
		ReportsDir:           "data/reports",
		QuestionsFile:        "data/questions.json",
		CacheDir:             "cache/markdown",
		OutputRoot:           "outputs",
		MarkdownDir:          "markdown",
		AnswersFile:          "answers.json",
		EvaluatedAnswersFile: "evaluated_answers.json",
		ResultsDir:           "results",
		AggregateDirs:        []string{},
	}
}

// DefaultRunDir 按 <output_root>/<日期>/<时间> 生成运行目录
func (p *PathsConfig) DefaultRunDir(now time.Time) string {
	if p.RunDir != "" {
		return p.RunDir
	}
	return filepath.Join(p.OutputRoot, now.Format("2006-01-02"), now.Format("15-04-05"))
}

// Resolve 把相对路径解析到运行目录下
func (p *PathsConfig) Resolve(runDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(runDir, path)
}
