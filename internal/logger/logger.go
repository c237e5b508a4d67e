package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New собирает логгер процесса: в prod - JSON, в остальных окружениях - консоль.
// Возвращаемый уровень можно менять на ходу.
func New(env, level string) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevel()
	if err := SetLevel(atom, level); err != nil {
		return nil, atom, err
	}

	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build(zap.Fields(zap.String("service", "tg_shop")))
	if err != nil {
		return nil, atom, err
	}
	return log, atom, nil
}

func SetLevel(atom zap.AtomicLevel, level string) error {
	return atom.UnmarshalText([]byte(strings.ToLower(level)))
}
