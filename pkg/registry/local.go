package registry

import (
	"context"
	"os"
	"path/filepath"

	"meet-your-new-client/pkg/model"
	"meet-your-new-client/pkg/util"

	"github.com/pkg/errors"
)

const localDirName = ".registry"

func LocalDir(outputRoot string) string {
	return filepath.Join(outputRoot, localDirName)
}

// LocalRegistry 每个键一个 JSON 文件
type LocalRegistry struct {
	dir string
}

func NewLocalRegistry(dir string) *LocalRegistry {
	return &LocalRegistry{dir: dir}
}

func (r *LocalRegistry) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

func (r *LocalRegistry) Get(_ context.Context, key string) (*model.RunRecord, error) {
	var rec model.RunRecord
	if err := util.ReadJSON(r.path(key), &rec); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "读取运行记录失败 %s", key)
	}
	return &rec, nil
}

func (r *LocalRegistry) Save(_ context.Context, rec *model.RunRecord) error {
	if rec.Key == "" {
		return errors.New("运行记录缺少 key")
	}
	return util.WriteJSON(r.path(rec.Key), rec)
}

func (r *LocalRegistry) Close() error {
	return nil
}
