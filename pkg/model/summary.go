package model

// AnswerRow 汇总时展开的一条答案记录
type AnswerRow struct {
	Run           string `json:"run" gorm:"column:run;type:varchar(512)"`
	Lib           string `json:"lib" gorm:"column:lib;type:varchar(64)"`
	ConvertModel  string `json:"convert_model" gorm:"column:convert_model;type:varchar(128)"`
	AnswerModel   string `json:"answer_model" gorm:"column:answer_model;type:varchar(128)"`
	JudgeModel    string `json:"judge_model" gorm:"column:judge_model;type:varchar(128)"`
	QuestionID    string `json:"question_id" gorm:"column:question_id;type:varchar(128)"`
	ReportName    string `json:"report_name" gorm:"column:report_name;type:varchar(256)"`
	SourceFormat  string `json:"source_format" gorm:"column:source_format;type:varchar(16)"`
	LayoutElement string `json:"layout_element" gorm:"column:layout_element;type:varchar(64)"`
	Status        string `json:"status" gorm:"column:status;type:varchar(32)"`
	Correct       *bool  `json:"correct" gorm:"column:correct"`
}

// TableName 指定表名
func (AnswerRow) TableName() string {
	return "answers"
}

// ConfigKey 同一组转换库和模型的结果在一起统计
type ConfigKey struct {
	Lib          string `json:"lib" gorm:"column:lib;type:varchar(64)"`
	ConvertModel string `json:"convert_model" gorm:"column:convert_model;type:varchar(128)"`
	AnswerModel  string `json:"answer_model" gorm:"column:answer_model;type:varchar(128)"`
	JudgeModel   string `json:"judge_model" gorm:"column:judge_model;type:varchar(128)"`
}

// AccuracyRow 按配置（及可选分组维度）统计的准确率
type AccuracyRow struct {
	ConfigKey

	Group            string  `json:"group,omitempty" gorm:"column:group_value;type:varchar(64)"` // source_format 或 layout_element
	Answers          int     `json:"answers" gorm:"column:answers"`
	Judged           int     `json:"judged" gorm:"column:judged"`
	Correct          int     `json:"correct" gorm:"column:correct"`
	ConversionErrors int     `json:"conversion_errors" gorm:"column:conversion_errors"`
	AnswerErrors     int     `json:"answer_errors" gorm:"column:answer_errors"`
	JudgeErrors      int     `json:"judge_errors" gorm:"column:judge_errors"`
	Accuracy         float64 `json:"accuracy" gorm:"column:accuracy"`               // correct / judged
	StrictAccuracy   float64 `json:"strict_accuracy" gorm:"column:strict_accuracy"` // correct / answers
	InfoLoss         float64 `json:"info_loss" gorm:"column:info_loss"`             // 表内最高 strict_accuracy 与本行之差
}

// ConversionStatRow 每个转换库的转换统计
type ConversionStatRow struct {
	Lib         string  `json:"lib" gorm:"column:lib;type:varchar(64)"`
	Model       string  `json:"model" gorm:"column:model;type:varchar(128)"`
	Documents   int     `json:"documents" gorm:"column:documents"`
	Failures    int     `json:"failures" gorm:"column:failures"`
	FailureRate float64 `json:"failure_rate" gorm:"column:failure_rate"`
	MeanSeconds float64 `json:"mean_seconds" gorm:"column:mean_seconds"`
	CachedCount int     `json:"cached" gorm:"column:cached"`
}

// TableName 指定表名
func (ConversionStatRow) TableName() string {
	return "conversion_stats"
}

// SummaryPublish 发布到 MySQL 的一行汇总，带运行批次
type SummaryPublish struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	BatchID string `gorm:"column:batch_id;type:varchar(64);index"`
	Table   string `gorm:"column:summary_table;type:varchar(64)"`
	AccuracyRow
}
