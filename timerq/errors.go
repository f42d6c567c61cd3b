package timerq

import "errors"

// ErrQueueClosed 队列已关闭.
var ErrQueueClosed = errors.New("timerq: queue closed")

// ErrTimerDestroyed 定时器已销毁仍被使用.
var ErrTimerDestroyed = errors.New("timerq: timer destroyed")

// ErrNoNotifier CreateTimerFunc 的回调函数为 nil.
var ErrNoNotifier = errors.New("timerq: notifier is nil")
