package config

import "github.com/pkg/errors"

const (
	RegistryDriverLocal     = "local"
	RegistryDriverFirestore = "firestore"
)

type RegistryConfig struct {
	Driver    string           `json:"driver" yaml:"driver"`
	Firestore *FirestoreConfig `json:"firestore" yaml:"firestore"`
}

type FirestoreConfig struct {
	ProjectID  string `json:"project_id" yaml:"project_id"`
	Collection string `json:"collection" yaml:"collection"`
}

func (r *RegistryConfig) Validate() []error {
	var errs = make([]error, 0)
	switch r.Driver {
	case RegistryDriverLocal:
	case RegistryDriverFirestore:
		if r.Firestore == nil || r.Firestore.ProjectID == "" || r.Firestore.Collection == "" {
			errs = append(errs, errors.Errorf("registry.firestore.project_id/collection 不能为空"))
		}
	default:
		errs = append(errs, errors.Errorf("registry.driver 不支持: %q", r.Driver))
	}
	return errs
}

func NewDefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		Driver:    RegistryDriverLocal,
		Firestore: &FirestoreConfig{Collection: "runs"},
	}
}
