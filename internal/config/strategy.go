package config

// StrategyConfig defines per-task model selections and fallbacks.
type StrategyConfig struct {
	DefaultModel   string            `mapstructure:"default_model"`
	DesignerModel  string            `mapstructure:"designer_model"`
	EvaluatorModel string            `mapstructure:"evaluator_model"`
	CodeGenModel   string            `mapstructure:"codegen_model"`
	Overrides      map[string]string `mapstructure:"overrides"` // arbitrary task->model id
	Fallbacks      []string          `mapstructure:"fallbacks"` // ordered fallback model ids
	MaxExpensive   int               `mapstructure:"max_expensive"` // limit expensive model uses per session (0=unlimited)
}
