package timerq

import (
	"time"

	"github.com/godyy/glog"
	"github.com/godyy/gtimerq/clock"
)

// optionSet 选项集合.
type optionSet struct {
	clk                clock.Clock   // 时间来源.
	logger             glog.Logger   // 日志工具.
	exceptMsgMinPeriod time.Duration // 回调 panic 日志最小间隔.
}

// Option 选项.
type Option func(*optionSet)

// WithLogger 日志工具选项.
func WithLogger(logger glog.Logger) Option {
	return func(opts *optionSet) {
		opts.logger = logger.Named("timerq")
	}
}

// WithClock 时间来源选项，主要供测试注入模拟时钟.
func WithClock(clk clock.Clock) Option {
	return func(opts *optionSet) {
		opts.clk = clk
	}
}

// WithExceptMsgMinPeriod 回调 panic 日志最小间隔选项，默认 5 分钟.
func WithExceptMsgMinPeriod(period time.Duration) Option {
	return func(opts *optionSet) {
		opts.exceptMsgMinPeriod = period
	}
}

func applyOptions(options []Option) *optionSet {
	opts := &optionSet{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}
