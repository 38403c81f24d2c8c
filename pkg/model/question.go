package model

import "github.com/pkg/errors"

// Question 基准中的一个事实性问题
type Question struct {
	ReportName    string `json:"report_name"`    // 关联的文档名（不含扩展名）
	QuestionID    string `json:"question_id"`    // 唯一 ID
	Question      string `json:"question"`       // 问题
	GroundTruth   string `json:"ground_truth"`   // 标准答案
	SlideNumber   int    `json:"slide_number"`   // 答案所在页
	LayoutElement string `json:"layout_element"` // 答案所在版面元素，如 table / chart / text
}

func (q *Question) Validate() error {
	if q.ReportName == "" {
		return errors.Errorf("问题 %q 的 report_name 不能为空", q.QuestionID)
	}
	if q.QuestionID == "" {
		return errors.Errorf("report %q 存在 question_id 为空的问题", q.ReportName)
	}
	return nil
}

// ValidateQuestions 校验全部问题，question_id 必须唯一
func ValidateQuestions(questions []Question) error {
	seen := make(map[string]struct{}, len(questions))
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return errors.Wrapf(err, "第 %d 个问题", i+1)
		}
		if _, ok := seen[questions[i].QuestionID]; ok {
			return errors.Errorf("question_id 重复: %q", questions[i].QuestionID)
		}
		seen[questions[i].QuestionID] = struct{}{}
	}
	return nil
}
