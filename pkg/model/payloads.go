package model

// 远程转换 worker 的请求与响应

// ConvertWorkerRequest POST 到转换 worker 的请求体
type ConvertWorkerRequest struct {
	File      string `json:"file"` // 文档在存储中的路径
	Filename  string `json:"filename"`
	Lib       string `json:"lib"`
	Model     string `json:"model,omitempty"`
	ImgPrompt string `json:"img_prompt,omitempty"`
	Content   []byte `json:"content,omitempty"` // 本地文档直接随请求上传
}

// ConvertWorkerResponse 转换 worker 的响应体
type ConvertWorkerResponse struct {
	Markdown       string  `json:"markdown"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
}
