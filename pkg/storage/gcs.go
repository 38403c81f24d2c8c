package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"meet-your-new-client/config"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
)

// GCSStore 报告存放在 GCS bucket 中，路径都是相对 bucket 的对象名
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSStore(ctx context.Context, cfg *config.GCSConfig) (*GCSStore, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.New("GCS bucket 不能为空")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "创建 GCS 客户端失败")
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *GCSStore) objectName(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.prefix == "" || strings.HasPrefix(path, s.prefix+"/") {
		return path
	}
	return s.prefix + "/" + path
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	query := &gcs.Query{Prefix: s.objectName(prefix)}
	if err := query.SetAttrSelection([]string{"Name", "Size", "Updated"}); err != nil {
		return nil, err
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var objects []Object
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "列出 gs://%s/%s 失败", s.bucket, query.Prefix)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, Object{Path: attrs.Name, Size: attrs.Size, ModTime: attrs.Updated})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	zap.S().Debugf("gs://%s/%s 下共 %d 个对象", s.bucket, query.Prefix, len(objects))
	return objects, nil
}

func (s *GCSStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(path)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, errors.Wrapf(ErrNotExist, "gs://%s/%s", s.bucket, s.objectName(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "读取 gs://%s/%s 失败", s.bucket, s.objectName(path))
	}
	return r, nil
}

func (s *GCSStore) URI(path string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.objectName(path))
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
