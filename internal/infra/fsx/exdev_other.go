//go:build !unix

package fsx

// 非 unix 平台不区分跨盘错误，原样返回。
func isEXDEV(error) bool { return false }
