package registry

import (
	"context"

	"meet-your-new-client/config"
	"meet-your-new-client/pkg/model"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreRegistry 文档 ID 为配置键
type FirestoreRegistry struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRegistry(ctx context.Context, cfg *config.FirestoreConfig) (*FirestoreRegistry, error) {
	if cfg == nil || cfg.ProjectID == "" {
		return nil, errors.New("registry.firestore.project_id 不能为空")
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "创建 firestore 客户端失败")
	}
	return &FirestoreRegistry{client: client, collection: cfg.Collection}, nil
}

func (r *FirestoreRegistry) Get(ctx context.Context, key string) (*model.RunRecord, error) {
	snap, err := r.client.Collection(r.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "读取运行记录失败 %s", key)
	}
	var rec model.RunRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, errors.Wrapf(err, "解析运行记录失败 %s", key)
	}
	return &rec, nil
}

func (r *FirestoreRegistry) Save(ctx context.Context, rec *model.RunRecord) error {
	if _, err := r.client.Collection(r.collection).Doc(rec.Key).Set(ctx, rec); err != nil {
		return errors.Wrapf(err, "保存运行记录失败 %s", rec.Key)
	}
	return nil
}

func (r *FirestoreRegistry) Close() error {
	return r.client.Close()
}
