package service

import (
	"context"
	"encoding/json"
	"strings"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/llm"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	judgeToolName        = "answer"
	evaluationErrorLabel = "EVALUATION_ERROR"
)

var judgeTool = llm.NewToolBuilder(judgeToolName, "Record the judgment of the answer").
	Param("reasoning", "string", "Step-by-step reasoning comparing the answer with the ground truth", true).
	Param("correct", "boolean", "Whether the answer is correct", true).
	Build()

type JudgeService struct {
	cfg       *config.GlobalConfig
	completer llm.Completer
	runDir    string
}

func NewJudgeService(cfg *config.GlobalConfig, completer llm.Completer, runDir string) *JudgeService {
	return &JudgeService{cfg: cfg, completer: completer, runDir: runDir}
}

// LoadAnswers 读取回答阶段的结果
func LoadAnswers(path string) ([]model.QuestionAnswer, error) {
	var answers []model.QuestionAnswer
	if err := util.ReadJSON(path, &answers); err != nil {
		return nil, errors.Wrapf(err, "读取答案文件失败 %s", path)
	}
	return answers, nil
}

// Run 对每个答案给出一个判定，结果写入 evaluated_answers.json
func (s *JudgeService) Run(ctx context.Context) ([]model.QuestionAnswer, error) {
	answers, err := LoadAnswers(s.cfg.Paths.Resolve(s.runDir, s.cfg.Paths.AnswersFile))
	if err != nil {
		return nil, err
	}
	jc := s.cfg.Judge

	type slot struct{ q, r int }
	reqs := make([]*llm.Request, 0)
	slots := make([]slot, 0)
	for qi := range answers {
		qa := &answers[qi]
		for ri := range qa.ReportAnswers {
			ra := &qa.ReportAnswers[ri]
			switch {
			case ra.ConversionError:
				ra.Evaluation = &model.Evaluation{Status: model.EvaluationConversionError, Reasoning: "report conversion failed", JudgeModel: jc.Model}
				continue
			case ra.Error != "":
				ra.Evaluation = &model.Evaluation{Status: model.EvaluationAnswerError, Reasoning: "no answer: " + ra.Error, JudgeModel: jc.Model}
				continue
			}
			prompt, err := util.FormatPrompt(jc.Prompt, map[string]string{
				"question":     qa.Question.Question,
				"ground_truth": qa.GroundTruth,
				"answer":       ra.Answer,
			})
			if err != nil {
				return nil, errors.Wrap(err, "judge.prompt 渲染失败")
			}
			reqs = append(reqs, llm.NewRequest(jc.Model, prompt,
				llm.WithTemperature(jc.Temperature),
				llm.WithTools(judgeTool),
				llm.WithToolChoice(judgeToolName),
				llm.WithTimeout(s.cfg.LLM.Timeout)))
			slots = append(slots, slot{q: qi, r: ri})
		}
	}

	zap.S().Infof("评判 %d 个答案", len(reqs))
	batch := llm.BatchComplete(ctx, s.completer, reqs, s.cfg.LLM.Workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	correct, failed := 0, 0
	for i, res := range batch {
		ra := &answers[slots[i].q].ReportAnswers[slots[i].r]
		eval := &model.Evaluation{JudgeModel: jc.Model}
		if res.Err != nil {
			eval.Status = model.EvaluationError
			eval.Reasoning = evaluationErrorLabel + ": " + res.Err.Error()
		} else {
			eval.Cached = res.Response.Cached
			eval.LatencyMs = res.Response.Latency.Milliseconds()
			reasoning, ok, err := ParseJudgment(res.Response)
			if err != nil {
				eval.Status = model.EvaluationError
				eval.Reasoning = evaluationErrorLabel + ": " + err.Error()
			} else {
				eval.Status = model.EvaluationOK
				eval.Reasoning = reasoning
				eval.Correct = &ok
			}
		}
		if eval.Status == model.EvaluationError {
			failed++
			zap.S().Warnf("问题 %s 评判失败 (%s): %s", answers[slots[i].q].QuestionID, ra.ReportFilename, eval.Reasoning)
		} else if eval.IsCorrect() {
			correct++
		}
		ra.Evaluation = eval
	}
	zap.S().Infof("评判完成: 正确 %d, 失败 %d, 共 %d", correct, failed, len(reqs))

	path := s.cfg.Paths.Resolve(s.runDir, s.cfg.Paths.EvaluatedAnswersFile)
	if err := util.WriteJSON(path, answers); err != nil {
		return nil, err
	}
	zap.S().Infof("评判结果已写入 %s", path)
	return answers, nil
}

type judgment struct {
	Reasoning string          `json:"reasoning"`
	Correct   json.RawMessage `json:"correct"`
}

// ParseJudgment 优先解析 answer 工具调用的参数，没有工具调用时从正文中找 JSON
func ParseJudgment(resp *llm.Response) (string, bool, error) {
	var raw string
	for _, tc := range resp.ToolCalls {
		if tc.Name == judgeToolName || raw == "" {
			raw = tc.Arguments
		}
	}
	if raw == "" {
		raw = extractJSONObject(resp.Content)
	}
	if strings.TrimSpace(raw) == "" {
		return "", false, errors.New("响应中没有判定结果")
	}
	j, err := decodeJudgment(raw)
	if err != nil {
		return "", false, err
	}
	if len(j.Correct) == 0 || string(j.Correct) == "null" {
		return "", false, errors.New("判定结果缺少 correct")
	}
	var v interface{}
	if err := json.Unmarshal(j.Correct, &v); err != nil {
		return "", false, errors.Wrap(err, "correct 字段非法")
	}
	ok, err := cast.ToBoolE(v)
	if err != nil {
		return "", false, errors.Wrapf(err, "correct 字段非法 %s", string(j.Correct))
	}
	return j.Reasoning, ok, nil
}

// decodeJudgment 模型偶尔漏掉结尾的 }
func decodeJudgment(raw string) (*judgment, error) {
	raw = strings.TrimSpace(raw)
	var j judgment
	err := json.Unmarshal([]byte(raw), &j)
	if err != nil && !strings.HasSuffix(raw, "}") {
		if err2 := json.Unmarshal([]byte(raw+"}"), &j); err2 == nil {
			return &j, nil
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "解析判定参数失败 %q", raw)
	}
	return &j, nil
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end < start {
		return content[start:]
	}
	return content[start : end+1]
}
