package fusion

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// CacheKey 由影响结果的请求参数确定性地导出缓存键
// 各段带长度前缀，避免不同参数拼接后碰撞；k 应为已截断的值
func CacheKey(query string, k int, includeMemories bool, identity string) string {
	h := sha256.New()
	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	writeField("fusion.v1")
	writeField(strings.TrimSpace(query))
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], uint64(k))
	h.Write(kb[:])
	if includeMemories {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeField(strings.TrimSpace(identity))

	return hex.EncodeToString(h.Sum(nil))
}
