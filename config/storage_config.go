package config

import "github.com/pkg/errors"

const (
	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

type StorageConfig struct {
	Driver string     `json:"driver" yaml:"driver"`
	GCS    *GCSConfig `json:"gcs" yaml:"gcs"`
}

type GCSConfig struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

func (s *StorageConfig) Validate() []error {
	var errs = make([]error, 0)
	switch s.Driver {
	case StorageDriverLocal:
	case StorageDriverGCS:
		if s.GCS == nil || s.GCS.Bucket == "" {
			errs = append(errs, errors.Errorf("storage.gcs.bucket 不能为空"))
		}
	default:
		errs = append(errs, errors.Errorf("storage.driver 不支持: %q", s.Driver))
	}
	return errs
}

func NewDefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Driver: StorageDriverLocal,
		GCS:    &GCSConfig{},
	}
}
