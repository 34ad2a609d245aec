package logging

import "go.uber.org/zap"

// Logger is the package-wide logger used when a component is not given its own.
// It defaults to a production zap logger; call SetLogger to replace it.
var Logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	Logger = l
}

// SetLogger replaces the package-wide logger. A nil logger silences output.
// Not safe to call concurrently with components that are logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
}

// Named returns a child of Logger scoped to a component name
func Named(component string) *zap.Logger {
	return Logger.Named(component)
}
