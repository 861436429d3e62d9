/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Buffer Pool - RTP 读缓冲复用
 * 每个转发的 track 每秒读几十到几百个包，复用缓冲以降低 GC 压力
 */
package utils

import (
	"sync"
)

// RTPBufferSize covers a full UDP MTU plus headroom for extensions
const RTPBufferSize = 1600

// 超过此容量的切片不放回池
const maxPooledBufferSize = 4096

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, RTPBufferSize)
		return &b
	},
}

// GetBuffer returns a slice of exactly length bytes, reused when possible
func GetBuffer(length int) []byte {
	bp := bufferPool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < length {
		// 池中的缓冲不够大，放回后一次性分配
		bufferPool.Put(bp)
		return make([]byte, length)
	}
	return buf[:length]
}

// PutBuffer hands buf back to the pool. The caller must not touch it afterwards.
func PutBuffer(buf []byte) {
	if cap(buf) < RTPBufferSize || cap(buf) > maxPooledBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	bufferPool.Put(&buf)
}
