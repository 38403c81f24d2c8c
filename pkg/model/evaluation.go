package model

type EvaluationStatus string

const (
	EvaluationOK              EvaluationStatus = "ok"
	EvaluationConversionError EvaluationStatus = "conversion_error"
	EvaluationAnswerError     EvaluationStatus = "answer_error"
	EvaluationError           EvaluationStatus = "error"
)

// Evaluation 裁判模型对一个答案的判定；只有 status=ok 时 correct 才有值
type Evaluation struct {
	Status     EvaluationStatus `json:"status"`
	Reasoning  string           `json:"reasoning"`
	Correct    *bool            `json:"correct"`
	JudgeModel string           `json:"judge_model"`
	LatencyMs  int64            `json:"latency_ms"`
	Cached     bool             `json:"cached"`
}

func (e *Evaluation) IsCorrect() bool {
	return e != nil && e.Status == EvaluationOK && e.Correct != nil && *e.Correct
}
