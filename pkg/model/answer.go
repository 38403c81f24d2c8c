package model

// AnswerConversionError 转换失败的报告不调用模型，答案记为该值
const AnswerConversionError = "CONVERSION_ERROR"

// ReportAnswer 模型基于一份转换后报告给出的答案
type ReportAnswer struct {
	ReportFilename  string      `json:"report_filename"`
	Lib             string      `json:"lib"`
	Answer          string      `json:"answer"`
	Model           string      `json:"model"`
	ConversionError bool        `json:"conversion_error"`
	Error           string      `json:"error,omitempty"` // 模型调用失败，答案缺失
	PromptSHA256    string      `json:"prompt_sha256,omitempty"`
	PromptChars     int         `json:"prompt_chars,omitempty"`
	Excerpted       bool        `json:"excerpted"` // 报告超出上限，只使用了相关章节
	Prompt          string      `json:"prompt,omitempty"`
	LatencyMs       int64       `json:"latency_ms"`
	Cached          bool        `json:"cached"`
	Evaluation      *Evaluation `json:"evaluation"`
}

// SourceFormat 从 <stem>_from_<ext>.md 中取出源格式
func (r *ReportAnswer) SourceFormat() string {
	return SourceFormatOf(r.ReportFilename)
}

// QuestionAnswer 问题及其在各份报告上的答案
type QuestionAnswer struct {
	Question
	ReportAnswers []ReportAnswer `json:"report_answers"`
}
