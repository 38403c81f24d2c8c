package config

type StepsConfig struct {
	Convert   bool `json:"convert" yaml:"convert"`
	Answer    bool `json:"answer" yaml:"answer"`
	Judge     bool `json:"judge" yaml:"judge"`
	Aggregate bool `json:"aggregate" yaml:"aggregate"`
}

func (s *StepsConfig) Validate() []error {
	return nil
}

func NewDefaultStepsConfig() *StepsConfig {
	return &StepsConfig{
		Convert:   true,
		Answer:    true,
		Judge:     true,
		Aggregate: true,
	}
}
