package logging

import "go.uber.org/zap"

// New builds the process logger. Development encoding in dev, JSON otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
