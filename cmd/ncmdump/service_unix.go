//go:build !windows

package main

import (
	"net"
	"os"
)

func listenIPC(addr string) (net.Listener, error) {
	// 清理可能存在的旧套接字文件
	if _, err := os.Stat(addr); err == nil {
		os.Remove(addr)
	}
	return net.Listen("unix", addr)
}

func defaultListenAddress(pipeName string) string {
	if pipeName != "" {
		return pipeName
	}
	return "/tmp/ncmdump_service.sock"
}
