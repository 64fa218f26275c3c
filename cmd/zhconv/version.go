package main

import (
	"runtime/debug"

	"github.com/yleoer/zhconv/pkg/engine"
)

// version 返回主模块版本，本地构建时为 "dev"
func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func buildDate() string {
	if engine.BuildTimestamp == "" {
		return "unknown"
	}
	return engine.BuildTimestamp
}
