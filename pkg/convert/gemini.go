package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"

	"cloud.google.com/go/vertexai/genai"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pageSeparator = "\n\n---\n\n"

const translatorSystemPrompt = "You are a document parser and markdown translator. Your task is to parse the content of a PDF document and translate it into markdown format. Accuracy, detail, and information preservation are of utmost importance."

const translatorUserPrompt = `You will be provided with a single page of a market research report.

Translate the page into markdown:

Text: Keep all text content as markdown text.
Lists: Keep lists as markdown lists with their original structure.
Images and charts: Replace each image with a detailed description. For charts, transcribe every label, value, legend entry and axis.
Tables: Convert tables into markdown tables. Normalize merged cells by copying the parent cell content into every child cell.
Headers and footers: Drop publisher names, logos, addresses and page numbers.

Return only the markdown for this page.`

// PageTranslator 把单页 PDF 翻译成 markdown
type PageTranslator interface {
	TranslatePage(ctx context.Context, page []byte) (string, error)
}

// PageSplitter 把 PDF 拆成单页文件，按页码顺序返回路径
type PageSplitter func(inFile, outDir string) ([]string, error)

// GeminiBackend 逐页调用 Gemini 转换 PDF，不依赖远程 worker
type GeminiBackend struct {
	store       storage.Store
	translator  PageTranslator
	split       PageSplitter
	pageWorkers int
	closer      func() error
}

func NewGeminiBackend(ctx context.Context, cfg *config.GeminiConfig, temperature float64, store storage.Store) (*GeminiBackend, error) {
	if cfg == nil {
		return nil, errors.New("缺少 convert.gemini 配置")
	}
	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Vertex AI 客户端失败")
	}
	m := client.GenerativeModel(cfg.Model)
	m.SetTemperature(float32(temperature))
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(translatorSystemPrompt)}}
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	b := NewGeminiBackendWith(store, &genaiTranslator{model: m}, SplitPDF, cfg.PageWorkers)
	b.closer = client.Close
	return b, nil
}

func NewGeminiBackendWith(store storage.Store, translator PageTranslator, split PageSplitter, pageWorkers int) *GeminiBackend {
	if pageWorkers <= 0 {
		pageWorkers = 1
	}
	return &GeminiBackend{
		store:       store,
		translator:  translator,
		split:       split,
		pageWorkers: pageWorkers,
	}
}

func (b *GeminiBackend) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

func (b *GeminiBackend) Convert(ctx context.Context, req *Request) (string, error) {
	if req.Document.Format != model.FormatPDF {
		return "", errors.Errorf("gemini 只支持 PDF，%s 的格式为 %s", req.Document.Name, req.Document.Format)
	}
	tempDir, err := os.MkdirTemp("", "gemini-convert-*")
	if err != nil {
		return "", errors.Wrap(err, "创建临时目录失败")
	}
	defer os.RemoveAll(tempDir)

	content, err := storage.ReadAll(ctx, b.store, req.Document.Path)
	if err != nil {
		return "", errors.Wrapf(err, "读取文档失败 %s", req.Document.Path)
	}
	source := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(source, content, 0o644); err != nil {
		return "", errors.Wrap(err, "写入临时文件失败")
	}
	pages, err := b.split(source, tempDir)
	if err != nil {
		return "", errors.Wrap(err, "拆分 PDF 失败")
	}
	zap.S().Debugf("%s 共 %d 页", req.Document.Name, len(pages))

	results := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.pageWorkers)
	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			data, err := os.ReadFile(page)
			if err != nil {
				return errors.Wrapf(err, "第 %d 页", i+1)
			}
			md, err := b.translator.TranslatePage(gctx, data)
			if err != nil {
				return errors.Wrapf(err, "第 %d 页", i+1)
			}
			md = StripCodeFence(md)
			if IsRefusal(md) {
				return errors.Errorf("第 %d 页模型拒绝回答", i+1)
			}
			results[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, pageSeparator), nil
}

// SplitPDF 用 pdfcpu 拆成单页，文件名为 <base>_<n>.pdf
func SplitPDF(inFile, outDir string) ([]string, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	pageCount, err := api.PageCountFile(inFile)
	if err != nil {
		return nil, errors.Wrap(err, "读取页数失败")
	}
	if err := api.SplitFile(inFile, outDir, 1, conf); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(inFile), filepath.Ext(inFile))
	pages := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		pages = append(pages, filepath.Join(outDir, fmt.Sprintf("%s_%d.pdf", base, i)))
	}
	return pages, nil
}

type genaiTranslator struct {
	model *genai.GenerativeModel
}

func (t *genaiTranslator) TranslatePage(ctx context.Context, page []byte) (string, error) {
	resp, err := t.model.GenerateContent(ctx, genai.Blob{MIMEType: "application/pdf", Data: page}, genai.Text(translatorUserPrompt))
	if err != nil {
		return "", errors.Wrap(err, "调用 gemini 失败")
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}
