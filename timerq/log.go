package timerq

import (
	"time"

	"github.com/godyy/glog"
	"go.uber.org/zap"
)

// createStdLogger 创建面向标准输出的 logger，与未显式传入 WithLogger 选项
// 时的默认行为一致.
func createStdLogger(level glog.Level) glog.Logger {
	return glog.NewLogger(&glog.Config{
		Level:        level,
		EnableCaller: true,
		CallerSkip:   0,
		Development:  true,
		Cores:        []glog.CoreConfig{glog.NewStdCoreConfig()},
	}).Named("timerq")
}

func lfdPanic(v interface{}) zap.Field {
	return zap.Any("panic", v)
}

func lfdTimerId(id uint64) zap.Field {
	return zap.Uint64("timerId", id)
}

func lfdDelay(delay time.Duration) zap.Field {
	return zap.Duration("delay", delay)
}

func lfdPriority(priority int) zap.Field {
	return zap.Int("priority", priority)
}
