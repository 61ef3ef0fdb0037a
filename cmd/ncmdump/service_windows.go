//go:build windows

package main

import (
	"net"

	"github.com/Microsoft/go-winio"
)

func listenIPC(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}

func defaultListenAddress(pipeName string) string {
	if pipeName != "" {
		return pipeName
	}
	return `\\.\pipe\ncmdump_service`
}
