package logging

import "go.uber.org/zap"

// New builds a logger for the given environment and installs it as the
// zap global so packages can log through zap.S().
func New(env string) (*zap.Logger, error) {
	logger, err := setLogger(env)
	if err != nil {
		return nil, err
	}
	_ = zap.ReplaceGlobals(logger)
	return logger, nil
}

func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}
