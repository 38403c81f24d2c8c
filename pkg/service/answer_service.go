package service

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/llm"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type AnswerService struct {
	cfg       *config.GlobalConfig
	completer llm.Completer
	runDir    string
}

func NewAnswerService(cfg *config.GlobalConfig, completer llm.Completer, runDir string) *AnswerService {
	return &AnswerService{cfg: cfg, completer: completer, runDir: runDir}
}

// LoadQuestions 读取并校验问题文件
func LoadQuestions(path string) ([]model.Question, error) {
	var questions []model.Question
	if err := util.ReadJSON(path, &questions); err != nil {
		return nil, errors.Wrapf(err, "读取问题文件失败 %s", path)
	}
	if err := model.ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

type convertedReport struct {
	file            string
	content         string
	conversionError bool
}

// loadReports 读取运行目录中全部转换结果，按文件名排序
func (s *AnswerService) loadReports(manifest *model.ConversionManifest) ([]convertedReport, error) {
	dir := s.cfg.Paths.Resolve(s.runDir, s.cfg.Paths.MarkdownDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 markdown 目录失败 %s", dir)
	}
	var byFile map[string]model.ConvertedText
	if manifest != nil {
		byFile = manifest.ByMarkdownFile()
	}
	reports := make([]convertedReport, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "读取 %s 失败", e.Name())
		}
		r := convertedReport{file: e.Name(), content: string(data)}
		if c, ok := byFile[e.Name()]; ok && !c.Succeeded() {
			r.conversionError = true
		}
		if model.IsFailureMarkdown(r.content) {
			r.conversionError = true
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].file < reports[j].file })
	return reports, nil
}

// Run 针对每个问题和每份匹配的报告调用回答模型，结果写入 answers.json
func (s *AnswerService) Run(ctx context.Context) ([]model.QuestionAnswer, error) {
	questions, err := LoadQuestions(s.cfg.Paths.QuestionsFile)
	if err != nil {
		return nil, err
	}
	manifest, err := LoadManifest(s.runDir)
	if err != nil {
		return nil, err
	}
	lib := s.cfg.Convert.Lib
	if manifest != nil && manifest.Lib != "" {
		lib = manifest.Lib
	}
	reports, err := s.loadReports(manifest)
	if err != nil {
		return nil, err
	}

	type slot struct{ q, r int }
	results := make([]model.QuestionAnswer, len(questions))
	reqs := make([]*llm.Request, 0)
	slots := make([]slot, 0)
	ac := s.cfg.Answer
	for qi, q := range questions {
		results[qi] = model.QuestionAnswer{Question: q, ReportAnswers: []model.ReportAnswer{}}
		for _, r := range reports {
			if !model.MatchesReport(r.file, q.ReportName) {
				continue
			}
			ra := model.ReportAnswer{ReportFilename: r.file, Lib: lib, Model: ac.Model}
			if r.conversionError {
				ra.ConversionError = true
				ra.Answer = model.AnswerConversionError
				results[qi].ReportAnswers = append(results[qi].ReportAnswers, ra)
				continue
			}
			content, excerpted := ExcerptReport(r.content, q.Question, ac.MaxReportChars)
			if excerpted {
				zap.S().Debugf("%s 超过 %d 字符，问题 %s 只使用相关章节", r.file, ac.MaxReportChars, q.QuestionID)
			}
			prompt, err := util.FormatPrompt(ac.Prompt, map[string]string{
				"question":       q.Question,
				"report_content": content,
			})
			if err != nil {
				return nil, errors.Wrap(err, "answer.prompt 渲染失败")
			}
			ra.Excerpted = excerpted
			ra.PromptSHA256 = util.SHA256Hex(prompt)
			ra.PromptChars = len([]rune(prompt))
			if ac.SavePrompts {
				ra.Prompt = prompt
			}
			results[qi].ReportAnswers = append(results[qi].ReportAnswers, ra)
			slots = append(slots, slot{q: qi, r: len(results[qi].ReportAnswers) - 1})
			reqs = append(reqs, llm.NewRequest(ac.Model, prompt,
				llm.WithTemperature(ac.Temperature),
				llm.WithTimeout(s.cfg.LLM.Timeout)))
		}
		if len(results[qi].ReportAnswers) == 0 {
			zap.S().Warnf("问题 %s 没有匹配的报告 %s", q.QuestionID, q.ReportName)
		}
	}

	zap.S().Infof("回答 %d 个问题，需要调用模型 %d 次", len(questions), len(reqs))
	batch := llm.BatchComplete(ctx, s.completer, reqs, s.cfg.LLM.Workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	failed := 0
	for i, res := range batch {
		ra := &results[slots[i].q].ReportAnswers[slots[i].r]
		if res.Err != nil {
			failed++
			ra.Error = res.Err.Error()
			zap.S().Warnf("问题 %s 回答失败 (%s): %v", results[slots[i].q].QuestionID, ra.ReportFilename, res.Err)
			continue
		}
		ra.Answer = strings.TrimSpace(res.Response.Content)
		ra.Cached = res.Response.Cached
		ra.LatencyMs = res.Response.Latency.Milliseconds()
	}
	if failed > 0 {
		zap.S().Warnf("%d 个回答失败", failed)
	}

	path := s.cfg.Paths.Resolve(s.runDir, s.cfg.Paths.AnswersFile)
	if err := util.WriteJSON(path, results); err != nil {
		return nil, err
	}
	zap.S().Infof("答案已写入 %s", path)
	return results, nil
}
