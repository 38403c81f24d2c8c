package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/convert"
	"meet-your-new-client/pkg/db"
	"meet-your-new-client/pkg/llm"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/registry"
	"meet-your-new-client/pkg/storage"
	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	llm.ProgressWriter = io.Discard
}

var testQuestions = []model.Question{
	{ReportName: "report_A", QuestionID: "q1", Question: "What was Q3 revenue?", GroundTruth: "$4.2M", SlideNumber: 3, LayoutElement: "table"},
	{ReportName: "report_B", QuestionID: "q2", Question: "Who is the market leader?", GroundTruth: "Acme", SlideNumber: 5, LayoutElement: "chart"},
	{ReportName: "report_C", QuestionID: "q3", Question: "How many stores?", GroundTruth: "12", LayoutElement: "text"},
}

// fakeBackend pptx 一律失败，pdf 返回固定内容
type fakeBackend struct {
	calls      atomic.Int32
	readyCalls atomic.Int32
	readyErr   error
}

func (b *fakeBackend) Convert(_ context.Context, req *convert.Request) (string, error) {
	b.calls.Add(1)
	if req.Document.Format == model.FormatPPTX {
		return "", errors.New("unsupported layout")
	}
	return "# Financials\r\n\r\n\r\nQ3 revenue was $4.2M.\r\n", nil
}

func (b *fakeBackend) Ready(context.Context) error {
	b.readyCalls.Add(1)
	return b.readyErr
}

// benchCompleter 回答请求在报告中找到 $4.2M 时作答；评判请求比较答案和标准答案
type benchCompleter struct {
	calls     atomic.Int32
	answerErr error
	judgeErr  error
}

func (c *benchCompleter) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	c.calls.Add(1)
	prompt := req.Messages[len(req.Messages)-1].Content
	if len(req.Tools) > 0 {
		if c.judgeErr != nil {
			return nil, c.judgeErr
		}
		if strings.Contains(prompt, "Ground truth: $4.2M\nAnswer: $4.2M") {
			// 缺少结尾的 }
			return &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"same figure","correct":true`}}}, nil
		}
		return &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"different","correct":false}`}}}, nil
	}
	if c.answerErr != nil {
		return nil, c.answerErr
	}
	if strings.Contains(prompt, "$4.2M") {
		return &llm.Response{Content: " $4.2M\n"}, nil
	}
	return &llm.Response{Content: "NOT FOUND"}, nil
}

func writeReports(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range []string{"report_A.pdf", "report_B.pptx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
}

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	root := t.TempDir()
	writeReports(t, filepath.Join(root, "reports"))
	questions := filepath.Join(root, "questions.json")
	require.NoError(t, util.WriteJSON(questions, testQuestions))

	cfg := config.NewDefaultGlobalConfig()
	cfg.Paths.ReportsDir = filepath.Join(root, "reports")
	cfg.Paths.QuestionsFile = questions
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Paths.OutputRoot = filepath.Join(root, "outputs")
	cfg.Results.DuckDB.DBPath = ""
	cfg.Log.Level = "error"
	return cfg
}

func newTestPipeline(cfg *config.GlobalConfig, backend convert.Backend, completer llm.Completer) *Pipeline {
	p := NewPipeline(cfg, nil, registry.NewLocalRegistry(registry.LocalDir(cfg.Paths.OutputRoot)))
	p.NewBackend = func(context.Context, *config.ConvertConfig, storage.Store) (convert.Backend, error) {
		return backend, nil
	}
	p.NewCompleter = func(context.Context, *config.LLMConfig, ...string) (llm.Completer, func() error, error) {
		return completer, nil, nil
	}
	return p
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	backend := &fakeBackend{}
	completer := &benchCompleter{}
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run1")

	rec, err := newTestPipeline(cfg, backend, completer).Run(context.Background(), runDir)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, rec.Status)
	assert.EqualValues(t, 2, backend.calls.Load())
	assert.EqualValues(t, 1, backend.readyCalls.Load())
	// 一次回答加一次评判，转换失败的报告不调用模型
	assert.EqualValues(t, 2, completer.calls.Load())

	manifest, err := LoadManifest(runDir)
	require.NoError(t, err)
	require.Len(t, manifest.Conversions, 2)
	byFile := manifest.ByMarkdownFile()
	a := byFile["report_A_from_pdf.md"]
	assert.True(t, a.Succeeded())
	b := byFile["report_B_from_pptx.md"]
	assert.Equal(t, model.ConversionFailure, b.Status)
	assert.Equal(t, "unsupported layout", b.Error)

	md, err := os.ReadFile(filepath.Join(runDir, "markdown", "report_A_from_pdf.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Financials\n\nQ3 revenue was $4.2M.", string(md))
	md, err = os.ReadFile(filepath.Join(runDir, "markdown", "report_B_from_pptx.md"))
	require.NoError(t, err)
	assert.Equal(t, "Error converting report_B.pptx: unsupported layout", string(md))

	evaluated, err := LoadAnswers(filepath.Join(runDir, "evaluated_answers.json"))
	require.NoError(t, err)
	require.Len(t, evaluated, 3)

	require.Len(t, evaluated[0].ReportAnswers, 1)
	ra := evaluated[0].ReportAnswers[0]
	assert.Equal(t, "$4.2M", ra.Answer)
	assert.Equal(t, "markitdown", ra.Lib)
	assert.NotEmpty(t, ra.PromptSHA256)
	assert.False(t, ra.Excerpted)
	assert.Empty(t, ra.Prompt)
	require.NotNil(t, ra.Evaluation)
	assert.Equal(t, model.EvaluationOK, ra.Evaluation.Status)
	assert.True(t, ra.Evaluation.IsCorrect())
	assert.Equal(t, "same figure", ra.Evaluation.Reasoning)

	require.Len(t, evaluated[1].ReportAnswers, 1)
	rb := evaluated[1].ReportAnswers[0]
	assert.True(t, rb.ConversionError)
	assert.Equal(t, model.AnswerConversionError, rb.Answer)
	assert.Equal(t, model.EvaluationConversionError, rb.Evaluation.Status)
	assert.Nil(t, rb.Evaluation.Correct)

	assert.Empty(t, evaluated[2].ReportAnswers)

	for _, name := range []string{"config.yaml", "overrides.yaml", "answers.json", "run.log",
		"results/accuracy_by_config.csv", "results/accuracy_by_format.csv", "results/conversion_stats.csv", "results/summary.md"} {
		assert.FileExists(t, filepath.Join(runDir, name))
	}
	runCfg, err := loadRunConfig(runDir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Convert.Lib, runCfg.Convert.Lib)
	assert.Equal(t, cfg.Convert.Timeout, runCfg.Convert.Timeout)

	reg := registry.NewLocalRegistry(registry.LocalDir(cfg.Paths.OutputRoot))
	_, done, err := registry.Completed(context.Background(), reg, rec.Key)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPipelineWarmCacheMakesNoCalls(t *testing.T) {
	cfg := testConfig(t)
	cfg.Convert.ReadCache = true
	cfg.Convert.WriteCache = true
	fileCache, err := llm.NewFileCache(filepath.Join(cfg.Paths.CacheDir, "llm"))
	require.NoError(t, err)
	inner := &benchCompleter{}
	cached := llm.NewCachedCompleter(inner, fileCache)

	first := &fakeBackend{}
	_, err = newTestPipeline(cfg, first, cached).Run(context.Background(), filepath.Join(cfg.Paths.OutputRoot, "run1"))
	require.NoError(t, err)
	require.EqualValues(t, 2, first.calls.Load())
	require.EqualValues(t, 2, inner.calls.Load())

	second := &fakeBackend{readyErr: convert.ErrWorkerUnavailable}
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run2")
	_, err = newTestPipeline(cfg, second, cached).Run(context.Background(), runDir)
	require.NoError(t, err)
	assert.EqualValues(t, 0, second.calls.Load())
	assert.EqualValues(t, 0, second.readyCalls.Load())
	assert.EqualValues(t, 2, inner.calls.Load())

	evaluated, err := LoadAnswers(filepath.Join(runDir, "evaluated_answers.json"))
	require.NoError(t, err)
	ra := evaluated[0].ReportAnswers[0]
	assert.True(t, ra.Cached)
	assert.True(t, ra.Evaluation.Cached)
	assert.True(t, ra.Evaluation.IsCorrect())
	assert.True(t, evaluated[1].ReportAnswers[0].ConversionError)
}

func TestConvertWorkerUnavailableIsFatal(t *testing.T) {
	cfg := testConfig(t)
	backend := &fakeBackend{readyErr: errors.Wrap(convert.ErrWorkerUnavailable, "timeout")}
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run1")
	rec, err := newTestPipeline(cfg, backend, &benchCompleter{}).Run(context.Background(), runDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, convert.ErrWorkerUnavailable))
	assert.Equal(t, model.RunFailed, rec.Status)
	assert.EqualValues(t, 0, backend.calls.Load())
}

func TestUnknownModelFailsRunBeforeAnswering(t *testing.T) {
	cfg := testConfig(t)
	modelsFile := filepath.Join(t.TempDir(), "litellm_config.yaml")
	require.NoError(t, os.WriteFile(modelsFile, []byte("model_list:\n  - model_name: gpt-4.1\n    litellm_params:\n      model: openai/gpt-4.1\n"), 0o644))
	cfg.LLM.ModelsFile = modelsFile
	cfg.LLM.Cache.Driver = config.CacheDriverNone
	cfg.Answer.Model = "gpt-4.1-typo"
	cfg.Judge.Model = "gpt-4.1"

	p := newTestPipeline(cfg, &fakeBackend{}, nil)
	p.NewCompleter = defaultCompleterFactory
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run")
	rec, err := p.Run(context.Background(), runDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrBadRequest))
	assert.Equal(t, model.RunFailed, rec.Status)
	assert.NoFileExists(t, filepath.Join(runDir, "answers.json"))
}

func TestPipelinePassesStageModels(t *testing.T) {
	cfg := testConfig(t)
	var got []string
	p := newTestPipeline(cfg, &fakeBackend{}, &benchCompleter{})
	p.NewCompleter = func(_ context.Context, _ *config.LLMConfig, models ...string) (llm.Completer, func() error, error) {
		got = models
		return &benchCompleter{}, nil, nil
	}
	_, err := p.Run(context.Background(), filepath.Join(cfg.Paths.OutputRoot, "run"))
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.Answer.Model, cfg.Judge.Model}, got)
}

func TestAnswerAndJudgeFailuresAreRecorded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps.Aggregate = false
	completer := &benchCompleter{answerErr: errors.New("upstream exploded")}
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run1")
	_, err := newTestPipeline(cfg, &fakeBackend{}, completer).Run(context.Background(), runDir)
	require.NoError(t, err)

	evaluated, err := LoadAnswers(filepath.Join(runDir, "evaluated_answers.json"))
	require.NoError(t, err)
	ra := evaluated[0].ReportAnswers[0]
	assert.Empty(t, ra.Answer)
	assert.Contains(t, ra.Error, "upstream exploded")
	assert.Equal(t, model.EvaluationAnswerError, ra.Evaluation.Status)
	// 只调用了回答模型
	assert.EqualValues(t, 1, completer.calls.Load())

	cfg.Steps.Convert = false
	cfg.Steps.Answer = false
	judgeFail := &benchCompleter{judgeErr: errors.New("judge down")}
	first := &benchCompleter{}
	_, err = NewAnswerService(cfg, first, runDir).Run(context.Background())
	require.NoError(t, err)
	answers, err := NewJudgeService(cfg, judgeFail, runDir).Run(context.Background())
	require.NoError(t, err)
	for _, qa := range answers {
		for _, ra := range qa.ReportAnswers {
			require.NotNil(t, ra.Evaluation)
		}
	}
	ev := answers[0].ReportAnswers[0].Evaluation
	assert.Equal(t, model.EvaluationError, ev.Status)
	assert.True(t, strings.HasPrefix(ev.Reasoning, "EVALUATION_ERROR: "))
	assert.Nil(t, ev.Correct)
}

func TestAnswerSavePromptsAndExcerpt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps.Judge = false
	cfg.Steps.Aggregate = false
	cfg.Answer.SavePrompts = true
	cfg.Answer.MaxReportChars = 30
	cfg.Answer.Prompt = "{{literal}} Q: {question}\n{report_content}"
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run1")
	_, err := newTestPipeline(cfg, &fakeBackend{}, &benchCompleter{}).Run(context.Background(), runDir)
	require.NoError(t, err)

	answers, err := LoadAnswers(filepath.Join(runDir, "answers.json"))
	require.NoError(t, err)
	ra := answers[0].ReportAnswers[0]
	assert.True(t, ra.Excerpted)
	assert.True(t, strings.HasPrefix(ra.Prompt, "{literal} Q: What was Q3 revenue?\n"))
	assert.Equal(t, util.SHA256Hex(ra.Prompt), ra.PromptSHA256)
	assert.Nil(t, ra.Evaluation)
}

func TestExcerptReport(t *testing.T) {
	report := "Q3 revenue was $4.2M according to the table."
	out, excerpted := ExcerptReport(report, "What was Q3 revenue?", len(report))
	assert.False(t, excerpted)
	assert.Equal(t, report, out)

	long := strings.Join([]string{
		"Intro text about the company.",
		"# Market\n\nThe market grew " + strings.Repeat("fast ", 20),
		"# Revenue\n\nQ3 revenue was $4.2M.",
		"## Stores\n\nThere are 12 stores " + strings.Repeat("open ", 20),
	}, "\n\n")
	out, excerpted = ExcerptReport(long, "What was Q3 revenue?", 80)
	assert.True(t, excerpted)
	assert.Contains(t, out, "# Revenue\n\nQ3 revenue was $4.2M.")
	assert.NotContains(t, out, "fast fast")
	assert.LessOrEqual(t, len([]rune(out)), 80)

	// 选中的章节保持原文顺序
	out, _ = ExcerptReport(long, "revenue and intro company", 70)
	assert.Equal(t, "Intro text about the company.\n\n# Revenue\n\nQ3 revenue was $4.2M.", out)

	huge := strings.Repeat("x", 100)
	out, excerpted = ExcerptReport(huge, "anything", 10)
	assert.True(t, excerpted)
	assert.Len(t, out, 10)
}

func TestParseJudgment(t *testing.T) {
	cases := []struct {
		name      string
		resp      *llm.Response
		reasoning string
		correct   bool
		wantErr   bool
	}{
		{"tool call", &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"ok","correct":true}`}}}, "ok", true, false},
		{"missing brace", &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"no","correct":false`}}}, "no", false, false},
		{"string bool", &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"s","correct":"true"}`}}}, "s", true, false},
		{"content fallback", &llm.Response{Content: "Sure:\n```json\n{\"reasoning\": \"c\", \"correct\": true}\n```"}, "c", true, false},
		{"no verdict", &llm.Response{Content: "I think it is right"}, "", false, true},
		{"missing correct", &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":"x"}`}}}, "", false, true},
		{"garbage", &llm.Response{ToolCalls: []llm.ToolCall{{Name: "answer", Arguments: `{"reasoning":`}}}, "", false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reasoning, correct, err := ParseJudgment(c.resp)
			if c.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.reasoning, reasoning)
			assert.Equal(t, c.correct, correct)
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSummarize(t *testing.T) {
	key := func(lib string) model.AnswerRow {
		return model.AnswerRow{Lib: lib, ConvertModel: "no_model", AnswerModel: "m", JudgeModel: "j"}
	}
	row := func(lib, format, status string, correct *bool) model.AnswerRow {
		r := key(lib)
		r.SourceFormat = format
		r.Status = status
		r.Correct = correct
		return r
	}
	rows := []model.AnswerRow{
		row("docling", "pdf", "ok", boolPtr(true)),
		row("docling", "pptx", "ok", boolPtr(true)),
		row("zerox", "pdf", "ok", boolPtr(true)),
		row("zerox", "pptx", "conversion_error", nil),
		row("zerox", "pdf", "error", nil),
		row("zerox", "pdf", "answer_error", nil),
	}
	byConfig := Summarize(rows, nil)
	require.Len(t, byConfig, 2)
	assert.Equal(t, "docling", byConfig[0].Lib)
	assert.Equal(t, 1.0, byConfig[0].StrictAccuracy)
	assert.Equal(t, 0.0, byConfig[0].InfoLoss)

	z := byConfig[1]
	assert.Equal(t, "zerox", z.Lib)
	assert.Equal(t, 4, z.Answers)
	assert.Equal(t, 1, z.Judged)
	assert.Equal(t, 1, z.Correct)
	assert.Equal(t, 1, z.ConversionErrors)
	assert.Equal(t, 1, z.AnswerErrors)
	assert.Equal(t, 1, z.JudgeErrors)
	assert.Equal(t, 1.0, z.Accuracy)
	assert.Equal(t, 0.25, z.StrictAccuracy)
	assert.Equal(t, 0.75, z.InfoLoss)

	byFormat := Summarize(rows, func(r *model.AnswerRow) string { return r.SourceFormat })
	require.Len(t, byFormat, 4)
	assert.Equal(t, "pdf", byFormat[0].Group)
	assert.Equal(t, "pptx", byFormat[3].Group)
	assert.Equal(t, "zerox", byFormat[3].Lib)
	assert.Equal(t, 1.0, byFormat[3].InfoLoss)
}

func TestExpandSweep(t *testing.T) {
	overrides, err := config.ParseOverrides([]string{"convert.lib=zerox", "judge.model=j1,j2", "convert.target_files=[a.pdf,b.pdf]"})
	require.NoError(t, err)
	params := []config.SweepParam{
		{Key: "answer.model", Values: []string{"a", "b"}},
		{Key: "convert.lib", Values: []string{"docling", "marker"}},
	}
	combos := ExpandSweep(params, overrides)
	require.Len(t, combos, 4)
	render := func(c []config.Override) string {
		parts := make([]string, 0, len(c))
		for _, o := range c {
			parts = append(parts, o.String())
		}
		return strings.Join(parts, " ")
	}
	assert.Equal(t, "convert.lib=zerox convert.target_files=[a.pdf,b.pdf] answer.model=a judge.model=j1", render(combos[0]))
	assert.Equal(t, "convert.lib=zerox convert.target_files=[a.pdf,b.pdf] answer.model=a judge.model=j2", render(combos[1]))
	assert.Equal(t, "convert.lib=zerox convert.target_files=[a.pdf,b.pdf] answer.model=b judge.model=j2", render(combos[3]))

	single := ExpandSweep(nil, nil)
	require.Len(t, single, 1)
	assert.Empty(t, single[0])
}

func TestSweepService(t *testing.T) {
	root := t.TempDir()
	writeReports(t, filepath.Join(root, "reports"))
	questions := filepath.Join(root, "questions.json")
	require.NoError(t, util.WriteJSON(questions, testQuestions))
	cfgPath := filepath.Join(root, "config.yaml")
	yamlText := "paths:\n" +
		"  reports_dir: " + filepath.Join(root, "reports") + "\n" +
		"  questions_file: " + questions + "\n" +
		"  cache_dir: " + filepath.Join(root, "cache") + "\n" +
		"  output_root: " + filepath.Join(root, "outputs") + "\n" +
		"results:\n  duckdb:\n    db_path: \"\"\n" +
		"log:\n  level: error\n" +
		"sweeper:\n  skip_completed: true\n  params:\n    answer.model: gpt-4.1-mini,gpt-4o\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlText), 0o644))

	completer := &benchCompleter{}
	backend := &fakeBackend{}
	prepare := func(p *Pipeline) {
		p.NewBackend = func(context.Context, *config.ConvertConfig, storage.Store) (convert.Backend, error) {
			return backend, nil
		}
		p.NewCompleter = func(context.Context, *config.LLMConfig, ...string) (llm.Completer, func() error, error) {
			return completer, nil, nil
		}
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sweep := NewSweepService(cfgPath, nil)
	sweep.Prepare = prepare
	sweep.now = func() time.Time { return now }

	records, err := sweep.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, model.RunCompleted, r.Status)
	}
	sweepDir := SweepDir(filepath.Join(root, "outputs"), now)
	assert.DirExists(t, filepath.Join(sweepDir, "0"))
	assert.DirExists(t, filepath.Join(sweepDir, "1"))
	csv, err := os.ReadFile(filepath.Join(sweepDir, "results", "accuracy_by_config.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "gpt-4.1-mini")
	assert.Contains(t, string(csv), "gpt-4o")

	again := NewSweepService(cfgPath, nil)
	again.Prepare = prepare
	again.now = func() time.Time { return now.Add(time.Minute) }
	calls := completer.calls.Load()
	records, err = again.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, r := range records {
		assert.Equal(t, model.RunSkipped, r.Status)
		assert.Equal(t, filepath.Join(sweepDir, strconv.Itoa(i)), r.RunDir)
	}
	assert.Equal(t, calls, completer.calls.Load())

	againDir := SweepDir(filepath.Join(root, "outputs"), now.Add(time.Minute))
	assert.NoDirExists(t, filepath.Join(againDir, "0"))
	csv, err = os.ReadFile(filepath.Join(againDir, "results", "accuracy_by_config.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "gpt-4.1-mini")
	assert.Contains(t, string(csv), "gpt-4o")
}

func TestSweepDistinguishesReportsDirs(t *testing.T) {
	root := t.TempDir()
	dirA := filepath.Join(root, "reportsA")
	dirB := filepath.Join(root, "reportsB")
	writeReports(t, dirA)
	writeReports(t, dirB)
	questions := filepath.Join(root, "questions.json")
	require.NoError(t, util.WriteJSON(questions, testQuestions))
	cfgPath := filepath.Join(root, "config.yaml")
	yamlText := "paths:\n" +
		"  reports_dir: " + dirA + "\n" +
		"  questions_file: " + questions + "\n" +
		"  cache_dir: " + filepath.Join(root, "cache") + "\n" +
		"  output_root: " + filepath.Join(root, "outputs") + "\n" +
		"results:\n  duckdb:\n    db_path: \"\"\n" +
		"log:\n  level: error\n" +
		"sweeper:\n  skip_completed: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlText), 0o644))

	overrides, err := config.ParseOverrides([]string{"paths.reports_dir=" + dirA + "," + dirB})
	require.NoError(t, err)
	backend := &fakeBackend{}
	sweep := NewSweepService(cfgPath, overrides)
	sweep.Prepare = func(p *Pipeline) {
		p.NewBackend = func(context.Context, *config.ConvertConfig, storage.Store) (convert.Backend, error) {
			return backend, nil
		}
		p.NewCompleter = func(context.Context, *config.LLMConfig, ...string) (llm.Completer, func() error, error) {
			return &benchCompleter{}, nil, nil
		}
	}
	records, err := sweep.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, model.RunCompleted, r.Status)
	}
	assert.NotEqual(t, records[0].Key, records[1].Key)
	for _, r := range records {
		assert.FileExists(t, filepath.Join(r.RunDir, "answers.json"))
	}
}

func TestRunKeyIgnoresExecutionSettings(t *testing.T) {
	cfg := testConfig(t)
	base, err := RunKey(cfg)
	require.NoError(t, err)

	cfg.LLM.Workers = 64
	cfg.Convert.MaxContainers = 2
	cfg.Convert.Timeout = time.Minute
	cfg.Convert.Workers = map[string]string{"docling": "http://elsewhere"}
	cfg.Paths.OutputRoot = "/tmp/other"
	cfg.Steps.Aggregate = false
	cfg.Log.Level = "debug"
	same, err := RunKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, base, same)

	for _, mutate := range []func(c *config.GlobalConfig){
		func(c *config.GlobalConfig) { c.Paths.ReportsDir = "/other/reports" },
		func(c *config.GlobalConfig) { c.LLM.BaseURL = "http://other-proxy" },
		func(c *config.GlobalConfig) { c.LLM.ModelsFile = "other.yaml" },
		func(c *config.GlobalConfig) { c.Storage.Driver = config.StorageDriverGCS },
		func(c *config.GlobalConfig) { c.Answer.Model = "other-model" },
	} {
		c := testConfig(t)
		c.Paths.ReportsDir = cfg.Paths.ReportsDir
		c.Paths.QuestionsFile = cfg.Paths.QuestionsFile
		key, err := RunKey(c)
		require.NoError(t, err)
		require.Equal(t, base, key)
		mutate(c)
		key, err = RunKey(c)
		require.NoError(t, err)
		assert.NotEqual(t, base, key)
	}
}

func TestAggregateWritesDuckDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.Results.DuckDB.DBPath = "results.duckdb"
	runDir := filepath.Join(cfg.Paths.OutputRoot, "run1")
	_, err := newTestPipeline(cfg, &fakeBackend{}, &benchCompleter{}).Run(context.Background(), runDir)
	require.NoError(t, err)

	summary, err := NewAggregateService(cfg).Run(context.Background(), runDir, []string{cfg.Paths.OutputRoot})
	require.NoError(t, err)
	assert.Equal(t, []string{runDir}, summary.Runs)
	require.Len(t, summary.ConversionStats, 1)
	assert.Equal(t, 2, summary.ConversionStats[0].Documents)
	assert.Equal(t, 0.5, summary.ConversionStats[0].FailureRate)

	conn, err := db.OpenDuckDB(context.Background(), filepath.Join(runDir, "results.duckdb"))
	require.NoError(t, err)
	defer conn.Close()
	var n int
	require.NoError(t, conn.QueryRow("SELECT count(*) FROM answers").Scan(&n))
	assert.Equal(t, 2, n)
	var strict float64
	require.NoError(t, conn.QueryRow("SELECT strict_accuracy FROM accuracy_by_config").Scan(&strict))
	assert.Equal(t, 0.5, strict)
}
