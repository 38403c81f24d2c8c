package convert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/storage"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("content of "+n), 0o644))
	}
}

func TestDiscoverAndSelect(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.pptx", "a.pdf", "sub/c.PDF", "notes.txt", ".hidden.pdf", "~$lock.pptx")
	store := storage.NewLocalStore()

	docs, err := DiscoverDocuments(context.Background(), store, dir, "")
	require.NoError(t, err)
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a.pdf", "b.pptx", "c.PDF"}, names)
	assert.Equal(t, model.FormatPPTX, docs[1].Format)
	assert.Equal(t, model.FormatPDF, docs[2].Format)

	pptxOnly, err := DiscoverDocuments(context.Background(), store, dir, ".pptx")
	require.NoError(t, err)
	require.Len(t, pptxOnly, 1)
	assert.Equal(t, "b.pptx", pptxOnly[0].Name)

	assert.Len(t, SelectDocuments(docs, nil, 2), 2)
	assert.Len(t, SelectDocuments(docs, nil, 0), 3)
	assert.Len(t, SelectDocuments(docs, nil, 10), 3)
	selected := SelectDocuments(docs, []string{"c.PDF", "missing.pdf"}, 1)
	require.Len(t, selected, 1)
	assert.Equal(t, "c.PDF", selected[0].Name)
	assert.Nil(t, SelectDocuments(nil, nil, 0))
}

func TestMarkdownPath(t *testing.T) {
	assert.Equal(t, filepath.Join("md", "report_A_from_pdf.md"), MarkdownPath("md", "report_A.pdf"))
	assert.Equal(t, filepath.Join("md", "deck_from_pptx.md"), MarkdownPath("md", "deck.PPTX"))
}

func TestCacheKey(t *testing.T) {
	doc := model.Document{Name: "a.pdf", ModTime: time.Unix(1700000000, 500000000)}
	assert.Equal(t, CacheKey(doc, "docling", ""), CacheKey(doc, "docling", "no_model"))
	assert.NotEqual(t, CacheKey(doc, "docling", ""), CacheKey(doc, "marker", ""))
	assert.NotEqual(t, CacheKey(doc, "docling", "gpt-4o"), CacheKey(doc, "docling", ""))
	later := doc
	later.ModTime = doc.ModTime.Add(time.Second)
	assert.NotEqual(t, CacheKey(doc, "docling", ""), CacheKey(later, "docling", ""))
}

func TestCacheManager(t *testing.T) {
	dir := t.TempDir()
	doc := model.Document{Name: "a.pdf", ModTime: time.Unix(1700000000, 0)}

	cm := NewCacheManager(dir, true, true, false)
	_, ok := cm.Get(doc, "markitdown", "")
	assert.False(t, ok)

	require.NoError(t, cm.Put(&model.ConvertedText{Document: doc, Lib: "markitdown", Status: model.ConversionSuccess, Markdown: "# Title"}))
	got, ok := cm.Get(doc, "markitdown", "")
	require.True(t, ok)
	assert.True(t, got.Cached)
	assert.True(t, got.Succeeded())
	assert.Equal(t, "# Title", got.Markdown)

	failed := model.Document{Name: "b.pptx", ModTime: time.Unix(1700000000, 0)}
	require.NoError(t, cm.Put(&model.ConvertedText{Document: failed, Lib: "zerox", Model: "gpt-4o", Status: model.ConversionFailure, Error: "boom"}))
	got, ok = cm.Get(failed, "zerox", "gpt-4o")
	require.True(t, ok)
	assert.False(t, got.Succeeded())
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, "Error converting b.pptx: boom", got.FileContent())

	retry := NewCacheManager(dir, true, true, true)
	_, ok = retry.Get(failed, "zerox", "gpt-4o")
	assert.False(t, ok)
	_, ok = retry.Get(doc, "markitdown", "")
	assert.True(t, ok)

	noRead := NewCacheManager(dir, false, false, false)
	_, ok = noRead.Get(doc, "markitdown", "")
	assert.False(t, ok)

	other := model.Document{Name: "c.pdf", ModTime: time.Unix(1, 0)}
	require.NoError(t, noRead.Put(&model.ConvertedText{Document: other, Lib: "markitdown", Status: model.ConversionSuccess, Markdown: "x"}))
	_, ok = cm.Get(other, "markitdown", "")
	assert.False(t, ok)
}

func TestContentProcessor(t *testing.T) {
	p := NewContentProcessor()
	out, err := p.Process("```markdown\r\n# Title  \r\n\r\n\r\n\r\nrevenue &amp; costs\r\n```")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nrevenue & costs", out)

	out, err = p.Process("| a | b<br>c |\n<!-- page 3 -->\ntext")
	require.NoError(t, err)
	assert.Equal(t, "| a | b<br>c |\n\ntext", out)

	_, err = p.Process(" \n\t\n")
	assert.ErrorIs(t, err, ErrEmptyOutput)

	assert.True(t, IsRefusal("I'm sorry, but I can't help with that request."))
	assert.False(t, IsRefusal("# Revenue\nQ3 revenue was $4.2M"))
}

func newWorker(t *testing.T, ready *atomic.Bool, handler func(req model.ConvertWorkerRequest) (int, model.ConvertWorkerResponse)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health/readiness", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/convert", func(w http.ResponseWriter, r *http.Request) {
		var req model.ConvertWorkerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		code, resp := handler(req)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteBackendConvert(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "report_A.pdf")
	store := storage.NewLocalStore()
	doc := model.Document{Name: "report_A.pdf", Path: filepath.Join(dir, "report_A.pdf"), Format: model.FormatPDF}

	var got model.ConvertWorkerRequest
	srv := newWorker(t, nil, func(req model.ConvertWorkerRequest) (int, model.ConvertWorkerResponse) {
		got = req
		return http.StatusOK, model.ConvertWorkerResponse{Markdown: "Q3 revenue was $4.2M", ElapsedSeconds: 1.5}
	})

	b := NewRemoteBackend(config.LibDocling, srv.URL+"/", store, time.Second)
	require.NoError(t, b.Ready(context.Background()))
	md, err := b.Convert(context.Background(), &Request{Document: doc, Lib: config.LibDocling, Model: "gpt-4o", ImgPrompt: "describe"})
	require.NoError(t, err)
	assert.Equal(t, "Q3 revenue was $4.2M", md)
	assert.Equal(t, "docling", got.Lib)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, "describe", got.ImgPrompt)
	assert.Equal(t, []byte("content of report_A.pdf"), got.Content)

	mk := NewRemoteBackend(config.LibMarkitdown, srv.URL, store, time.Second)
	_, err = mk.Convert(context.Background(), &Request{Document: doc, Lib: config.LibMarkitdown, ImgPrompt: "describe"})
	require.NoError(t, err)
	assert.Empty(t, got.ImgPrompt)
	assert.Empty(t, got.Model)
}

func TestRemoteBackendErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "report_B.pptx")
	doc := model.Document{Name: "report_B.pptx", Path: filepath.Join(dir, "report_B.pptx"), Format: model.FormatPPTX}

	srv := newWorker(t, nil, func(req model.ConvertWorkerRequest) (int, model.ConvertWorkerResponse) {
		if strings.HasSuffix(req.Filename, ".pptx") && req.Lib == "zerox" {
			return http.StatusInternalServerError, model.ConvertWorkerResponse{Error: "libreoffice crashed"}
		}
		return http.StatusOK, model.ConvertWorkerResponse{Error: "unsupported"}
	})
	b := NewRemoteBackend(config.LibZerox, srv.URL, storage.NewLocalStore(), time.Second)
	_, err := b.Convert(context.Background(), &Request{Document: doc, Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "libreoffice crashed")

	m := NewRemoteBackend(config.LibMarker, srv.URL, storage.NewLocalStore(), time.Second)
	_, err = m.Convert(context.Background(), &Request{Document: doc, Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestRemoteBackendReadyTimeout(t *testing.T) {
	var ready atomic.Bool
	srv := newWorker(t, &ready, nil)
	b := NewRemoteBackend(config.LibMarker, srv.URL, storage.NewLocalStore(), 50*time.Millisecond)
	b.pollInterval = 10 * time.Millisecond
	err := b.Ready(context.Background())
	assert.True(t, errors.Is(err, ErrWorkerUnavailable))

	ready.Store(true)
	assert.NoError(t, b.Ready(context.Background()))
}

func TestNewBackend(t *testing.T) {
	cfg := config.NewDefaultConvertConfig()
	_, err := NewBackend(context.Background(), cfg, storage.NewLocalStore())
	assert.True(t, errors.Is(err, ErrWorkerUnavailable))

	cfg.Workers[config.LibMarkitdown] = "http://127.0.0.1:8002"
	b, err := NewBackend(context.Background(), cfg, storage.NewLocalStore())
	require.NoError(t, err)
	assert.IsType(t, &RemoteBackend{}, b)

	cfg.Lib = "pandoc"
	_, err = NewBackend(context.Background(), cfg, storage.NewLocalStore())
	assert.True(t, errors.Is(err, ErrUnknownLib))
}

type fakeTranslator struct {
	calls atomic.Int32
	reply func(page []byte) (string, error)
}

func (f *fakeTranslator) TranslatePage(_ context.Context, page []byte) (string, error) {
	f.calls.Add(1)
	return f.reply(page)
}

// fakeSplit 把每一行当作一页
func fakeSplit(inFile, outDir string) ([]string, error) {
	data, err := os.ReadFile(inFile)
	if err != nil {
		return nil, err
	}
	var pages []string
	for i, line := range strings.Split(string(data), "\n") {
		p := filepath.Join(outDir, "page_"+string(rune('a'+i))+".pdf")
		if err := os.WriteFile(p, []byte(line), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func TestGeminiBackend(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(p, []byte("one\ntwo\nthree"), 0o644))
	doc := model.Document{Name: "report.pdf", Path: p, Format: model.FormatPDF}

	tr := &fakeTranslator{reply: func(page []byte) (string, error) {
		return "```markdown\n# " + string(page) + "\n```", nil
	}}
	b := NewGeminiBackendWith(storage.NewLocalStore(), tr, fakeSplit, 2)
	md, err := b.Convert(context.Background(), &Request{Document: doc})
	require.NoError(t, err)
	assert.Equal(t, "# one\n\n---\n\n# two\n\n---\n\n# three", md)
	assert.EqualValues(t, 3, tr.calls.Load())

	pptx := doc
	pptx.Format = model.FormatPPTX
	_, err = b.Convert(context.Background(), &Request{Document: pptx})
	assert.Error(t, err)

	refusing := &fakeTranslator{reply: func(page []byte) (string, error) {
		if string(page) == "two" {
			return "I'm sorry, but I can't process this page.", nil
		}
		return string(page), nil
	}}
	_, err = NewGeminiBackendWith(storage.NewLocalStore(), refusing, fakeSplit, 1).Convert(context.Background(), &Request{Document: doc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "第 2 页")
}
