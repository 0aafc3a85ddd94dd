package methods

import (
	"crypto/md5"
	"encoding/hex"
)

// ETag 响应体的 md5，带引号
func ETag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
