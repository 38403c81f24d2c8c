package service

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/db"
	"meet-your-new-client/pkg/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	statusUnjudged = "unjudged"
	summaryFile    = "summary.md"
)

// Summary 汇总结果
type Summary struct {
	Runs            []string
	Answers         []model.AnswerRow
	ByConfig        []model.AccuracyRow
	ByFormat        []model.AccuracyRow
	ByLayout        []model.AccuracyRow
	ConversionStats []model.ConversionStatRow
}

type AggregateService struct {
	cfg *config.GlobalConfig
}

func NewAggregateService(cfg *config.GlobalConfig) *AggregateService {
	return &AggregateService{cfg: cfg}
}

// Run 汇总 dirs 下的全部运行目录，结果写到 outDir 的 results 目录和 duckdb
func (s *AggregateService) Run(ctx context.Context, outDir string, dirs []string) (*Summary, error) {
	start := time.Now()
	runs, err := s.FindRunDirs(dirs)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Runs: runs}
	convStats := make(map[[2]string]*convAcc)
	for _, run := range runs {
		rows, manifest, err := s.loadRun(run)
		if err != nil {
			zap.S().Warnf("跳过运行目录 %s: %v", run, err)
			continue
		}
		summary.Answers = append(summary.Answers, rows...)
		if manifest != nil {
			accumulateConversions(convStats, manifest)
		}
	}
	if len(summary.Answers) == 0 {
		zap.S().Warnf("%v 中没有可汇总的答案", dirs)
	}

	summary.ByConfig = Summarize(summary.Answers, nil)
	summary.ByFormat = Summarize(summary.Answers, func(r *model.AnswerRow) string { return r.SourceFormat })
	summary.ByLayout = Summarize(summary.Answers, func(r *model.AnswerRow) string { return r.LayoutElement })
	summary.ConversionStats = conversionStats(convStats)

	tables := summary.Tables()
	resultsDir := s.cfg.Paths.Resolve(outDir, s.cfg.Paths.ResultsDir)
	if err := writeTables(resultsDir, tables); err != nil {
		return nil, err
	}
	if s.cfg.Results != nil && s.cfg.Results.DuckDB != nil && s.cfg.Results.DuckDB.DBPath != "" {
		if err := s.writeDuckDB(ctx, s.cfg.Paths.Resolve(outDir, s.cfg.Results.DuckDB.DBPath), tables); err != nil {
			return nil, err
		}
	}
	if s.cfg.Results != nil && s.cfg.Results.MySQL != nil && s.cfg.Results.MySQL.DSN != "" {
		if err := s.publish(ctx, summary); err != nil {
			return nil, err
		}
	}
	zap.S().Infof("汇总完成: %d 个运行目录, %d 条答案, 耗时 %s", len(runs), len(summary.Answers), time.Since(start).Round(time.Millisecond))
	return summary, nil
}

// FindRunDirs 递归查找包含答案文件的目录
func (s *AggregateService) FindRunDirs(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	runs := make([]string, 0)
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			if os.IsNotExist(err) {
				zap.S().Warnf("汇总目录不存在 %s", root)
				continue
			}
			return nil, err
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if !s.isRunDir(path) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if _, ok := seen[abs]; !ok {
				seen[abs] = struct{}{}
				runs = append(runs, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "扫描目录失败 %s", root)
		}
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *AggregateService) isRunDir(dir string) bool {
	for _, name := range []string{s.cfg.Paths.EvaluatedAnswersFile, s.cfg.Paths.AnswersFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// loadRunConfig 读取运行目录中保存的配置，不存在时返回 nil
func loadRunConfig(dir string) (*config.GlobalConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cfg := config.NewDefaultGlobalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "解析 %s 失败", RunConfigFile)
	}
	return cfg, nil
}

func (s *AggregateService) loadRun(dir string) ([]model.AnswerRow, *model.ConversionManifest, error) {
	runCfg, err := loadRunConfig(dir)
	if err != nil {
		return nil, nil, err
	}
	paths := s.cfg.Paths
	if runCfg != nil {
		paths = runCfg.Paths
	}
	file := filepath.Join(dir, paths.EvaluatedAnswersFile)
	if _, err := os.Stat(file); err != nil {
		file = filepath.Join(dir, paths.AnswersFile)
	}
	answers, err := LoadAnswers(file)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, nil, err
	}

	var key model.ConfigKey
	if runCfg != nil {
		key = model.ConfigKey{
			Lib:          runCfg.Convert.Lib,
			ConvertModel: runCfg.Convert.ModelOrNone(),
			AnswerModel:  runCfg.Answer.Model,
			JudgeModel:   runCfg.Judge.Model,
		}
	} else if manifest != nil {
		key.Lib = manifest.Lib
		key.ConvertModel = manifest.Model
	}
	if key.ConvertModel == "" {
		key.ConvertModel = "no_model"
	}
	return FlattenAnswers(dir, key, answers), manifest, nil
}

// FlattenAnswers 每个 (问题, 报告) 展开为一行，配置缺失的字段从答案中补齐
func FlattenAnswers(run string, key model.ConfigKey, answers []model.QuestionAnswer) []model.AnswerRow {
	rows := make([]model.AnswerRow, 0, len(answers))
	for _, qa := range answers {
		for _, ra := range qa.ReportAnswers {
			row := model.AnswerRow{
				Run:           run,
				Lib:           key.Lib,
				ConvertModel:  key.ConvertModel,
				AnswerModel:   key.AnswerModel,
				JudgeModel:    key.JudgeModel,
				QuestionID:    qa.QuestionID,
				ReportName:    qa.ReportName,
				SourceFormat:  ra.SourceFormat(),
				LayoutElement: qa.LayoutElement,
			}
			if row.Lib == "" {
				row.Lib = ra.Lib
			}
			if row.AnswerModel == "" {
				row.AnswerModel = ra.Model
			}
			switch {
			case ra.Evaluation != nil:
				row.Status = string(ra.Evaluation.Status)
				row.Correct = ra.Evaluation.Correct
				if row.JudgeModel == "" {
					row.JudgeModel = ra.Evaluation.JudgeModel
				}
			case ra.ConversionError:
				row.Status = string(model.EvaluationConversionError)
			case ra.Error != "":
				row.Status = string(model.EvaluationAnswerError)
			default:
				row.Status = statusUnjudged
			}
			rows = append(rows, row)
		}
	}
	return rows
}

type groupKey struct {
	model.ConfigKey
	group string
}

// Summarize 按配置（groupFn 不为空时再按分组维度）统计准确率
func Summarize(rows []model.AnswerRow, groupFn func(*model.AnswerRow) string) []model.AccuracyRow {
	acc := make(map[groupKey]*model.AccuracyRow)
	for i := range rows {
		r := &rows[i]
		k := groupKey{ConfigKey: model.ConfigKey{Lib: r.Lib, ConvertModel: r.ConvertModel, AnswerModel: r.AnswerModel, JudgeModel: r.JudgeModel}}
		if groupFn != nil {
			k.group = groupFn(r)
		}
		a, ok := acc[k]
		if !ok {
			a = &model.AccuracyRow{ConfigKey: k.ConfigKey, Group: k.group}
			acc[k] = a
		}
		a.Answers++
		switch model.EvaluationStatus(r.Status) {
		case model.EvaluationOK:
			a.Judged++
			if r.Correct != nil && *r.Correct {
				a.Correct++
			}
		case model.EvaluationConversionError:
			a.ConversionErrors++
		case model.EvaluationAnswerError:
			a.AnswerErrors++
		case model.EvaluationError:
			a.JudgeErrors++
		}
	}

	out := make([]model.AccuracyRow, 0, len(acc))
	best := make(map[string]float64)
	for _, a := range acc {
		if a.Judged > 0 {
			a.Accuracy = float64(a.Correct) / float64(a.Judged)
		}
		if a.Answers > 0 {
			a.StrictAccuracy = float64(a.Correct) / float64(a.Answers)
		}
		if a.StrictAccuracy > best[a.Group] {
			best[a.Group] = a.StrictAccuracy
		}
		out = append(out, *a)
	}
	for i := range out {
		out[i].InfoLoss = best[out[i].Group] - out[i].StrictAccuracy
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.StrictAccuracy != b.StrictAccuracy {
			return a.StrictAccuracy > b.StrictAccuracy
		}
		if a.Lib != b.Lib {
			return a.Lib < b.Lib
		}
		if a.ConvertModel != b.ConvertModel {
			return a.ConvertModel < b.ConvertModel
		}
		if a.AnswerModel != b.AnswerModel {
			return a.AnswerModel < b.AnswerModel
		}
		return a.JudgeModel < b.JudgeModel
	})
	return out
}

type convAcc struct {
	row     model.ConversionStatRow
	seconds float64
	timed   int
}

func accumulateConversions(stats map[[2]string]*convAcc, manifest *model.ConversionManifest) {
	for _, c := range manifest.Conversions {
		m := c.Model
		if m == "" {
			m = "no_model"
		}
		k := [2]string{c.Lib, m}
		a, ok := stats[k]
		if !ok {
			a = &convAcc{row: model.ConversionStatRow{Lib: c.Lib, Model: m}}
			stats[k] = a
		}
		a.row.Documents++
		if !c.Succeeded() {
			a.row.Failures++
		}
		if c.Cached {
			a.row.CachedCount++
		} else {
			a.seconds += c.DurationSeconds
			a.timed++
		}
	}
}

func conversionStats(stats map[[2]string]*convAcc) []model.ConversionStatRow {
	out := make([]model.ConversionStatRow, 0, len(stats))
	for _, a := range stats {
		r := a.row
		if r.Documents > 0 {
			r.FailureRate = float64(r.Failures) / float64(r.Documents)
		}
		if a.timed > 0 {
			r.MeanSeconds = a.seconds / float64(a.timed)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lib != out[j].Lib {
			return out[i].Lib < out[j].Lib
		}
		return out[i].Model < out[j].Model
	})
	return out
}

var configColumns = []Column{
	{"lib", "VARCHAR"}, {"convert_model", "VARCHAR"}, {"answer_model", "VARCHAR"}, {"judge_model", "VARCHAR"},
}

func accuracyTable(name, groupCol string, rows []model.AccuracyRow) *Table {
	cols := append([]Column(nil), configColumns...)
	if groupCol != "" {
		cols = append(cols, Column{groupCol, "VARCHAR"})
	}
	cols = append(cols,
		Column{"answers", "INTEGER"}, Column{"judged", "INTEGER"}, Column{"correct", "INTEGER"},
		Column{"conversion_errors", "INTEGER"}, Column{"answer_errors", "INTEGER"}, Column{"judge_errors", "INTEGER"},
		Column{"accuracy", "DOUBLE"}, Column{"strict_accuracy", "DOUBLE"}, Column{"info_loss", "DOUBLE"},
	)
	t := &Table{Name: name, Columns: cols}
	for _, r := range rows {
		row := []interface{}{r.Lib, r.ConvertModel, r.AnswerModel, r.JudgeModel}
		if groupCol != "" {
			row = append(row, r.Group)
		}
		row = append(row, r.Answers, r.Judged, r.Correct, r.ConversionErrors, r.AnswerErrors, r.JudgeErrors,
			r.Accuracy, r.StrictAccuracy, r.InfoLoss)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Tables 全部汇总表，顺序即输出顺序
func (s *Summary) Tables() []*Table {
	answers := &Table{Name: model.AnswerRow{}.TableName(), Columns: []Column{
		{"run", "VARCHAR"}, {"lib", "VARCHAR"}, {"convert_model", "VARCHAR"}, {"answer_model", "VARCHAR"},
		{"judge_model", "VARCHAR"}, {"question_id", "VARCHAR"}, {"report_name", "VARCHAR"},
		{"source_format", "VARCHAR"}, {"layout_element", "VARCHAR"}, {"status", "VARCHAR"}, {"correct", "BOOLEAN"},
	}}
	for _, r := range s.Answers {
		var correct interface{}
		if r.Correct != nil {
			correct = *r.Correct
		}
		answers.Rows = append(answers.Rows, []interface{}{r.Run, r.Lib, r.ConvertModel, r.AnswerModel, r.JudgeModel,
			r.QuestionID, r.ReportName, r.SourceFormat, r.LayoutElement, r.Status, correct})
	}

	stats := &Table{Name: model.ConversionStatRow{}.TableName(), Columns: []Column{
		{"lib", "VARCHAR"}, {"model", "VARCHAR"}, {"documents", "INTEGER"}, {"failures", "INTEGER"},
		{"failure_rate", "DOUBLE"}, {"mean_seconds", "DOUBLE"}, {"cached", "INTEGER"},
	}}
	for _, r := range s.ConversionStats {
		stats.Rows = append(stats.Rows, []interface{}{r.Lib, r.Model, r.Documents, r.Failures, r.FailureRate, r.MeanSeconds, r.CachedCount})
	}

	return []*Table{
		accuracyTable("accuracy_by_config", "", s.ByConfig),
		accuracyTable("accuracy_by_format", "source_format", s.ByFormat),
		accuracyTable("accuracy_by_layout", "layout_element", s.ByLayout),
		stats,
		answers,
	}
}

func writeTables(dir string, tables []*Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "创建结果目录失败 %s", dir)
	}
	answersTable := model.AnswerRow{}.TableName()
	var md strings.Builder
	md.WriteString("# Results\n\n")
	for _, t := range tables {
		if err := t.WriteCSV(dir); err != nil {
			return err
		}
		if t.Name == answersTable {
			continue
		}
		md.WriteString(t.Markdown())
		md.WriteString("\n")
	}
	if err := os.WriteFile(filepath.Join(dir, summaryFile), []byte(md.String()), 0o644); err != nil {
		return errors.Wrap(err, "写入汇总 markdown 失败")
	}
	zap.S().Infof("汇总表已写入 %s", dir)
	return nil
}

// writeDuckDB 每次重建全部表
func (s *AggregateService) writeDuckDB(ctx context.Context, path string, tables []*Table) error {
	conn, err := db.OpenDuckDB(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "打开 duckdb 失败 %s", path)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := createAndInsert(ctx, tx, t); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "写入 duckdb 表 %s 失败", t.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "提交 duckdb 事务失败")
	}
	zap.S().Infof("汇总表已写入 duckdb %s", path)
	return nil
}

func createAndInsert(ctx context.Context, tx *sql.Tx, t *Table) error {
	// 删除旧表，避免表结构变更
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
		return errors.Wrap(err, "删除旧表失败")
	}
	defs := make([]string, 0, len(t.Columns))
	marks := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, c.Name+" "+c.Type)
		marks = append(marks, "?")
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+t.Name+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return errors.Wrap(err, "创建表失败")
	}
	if len(t.Rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+t.Name+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return errors.Wrap(err, "插入数据失败")
		}
	}
	return nil
}

// publish 把准确率汇总追加到 MySQL/TiDB，每次运行一个批次
func (s *AggregateService) publish(ctx context.Context, summary *Summary) error {
	mc := s.cfg.Results.MySQL
	if err := db.InitTiDB(mc); err != nil {
		return errors.Wrap(err, "MySQL 数据库连接错误")
	}
	table := mc.TablePrefix + "summaries"
	gdb := db.GetTiDB().WithContext(ctx)
	if err := gdb.Table(table).AutoMigrate(&model.SummaryPublish{}); err != nil {
		return errors.Wrapf(err, "创建表 %s 失败", table)
	}
	batchID := uuid.NewString()
	rows := make([]model.SummaryPublish, 0, len(summary.ByConfig)+len(summary.ByFormat)+len(summary.ByLayout))
	for name, group := range map[string][]model.AccuracyRow{
		"accuracy_by_config": summary.ByConfig,
		"accuracy_by_format": summary.ByFormat,
		"accuracy_by_layout": summary.ByLayout,
	} {
		for _, r := range group {
			rows = append(rows, model.SummaryPublish{BatchID: batchID, Table: name, AccuracyRow: r})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := gdb.Table(table).CreateInBatches(rows, 100).Error; err != nil {
		return errors.Wrapf(err, "写入 %s 失败", table)
	}
	zap.S().Infof("已发布 %d 行汇总到 %s (batch=%s)", len(rows), table, batchID)
	return nil
}
