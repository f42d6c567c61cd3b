package arena

import "errors"

// ErrBindFailed 绑定分组失败. 调用方应当将其视为致命的分配失败.
var ErrBindFailed = errors.New("arena: bind group failed")

// ErrRackExhausted 内部错误：rack 已耗尽却仍被当作当前 rack 使用.
var ErrRackExhausted = errors.New("arena: rack exhausted")
