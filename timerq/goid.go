package timerq

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID 解析当前 goroutine 的运行时编号. Go 不对外暴露
// goroutine id，但 runtime.Stack 的第一行总是形如
// "goroutine 123 [running]:"，解析它足以让 Cancel 区分
// "我就是正在执行这个定时器回调的那个 goroutine"（自取消，非阻塞）与
// "另一个 goroutine 正在执行该回调"（跨 goroutine 取消，需要阻塞等待）.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]

	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
