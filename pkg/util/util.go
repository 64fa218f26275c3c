package util

import (
	"os"
	"path/filepath"
	"strings"
)

// SanitizeFileName 清理文件名，移除或替换不适用于文件路径的字符
func SanitizeFileName(name string) string {
	// 替换所有斜杠为下划线
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")

	// 移除其他不安全的文件名字符 (Windows/Linux通用不推荐的字符)
	invalidChars := []string{":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		name = strings.ReplaceAll(name, char, "")
	}
	name = strings.TrimSpace(name)
	name = strings.Join(strings.Fields(name), " ")
	return name
}

// IsDirectory 辅助函数，检查路径是否为目录
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsRelevantTextFile 判断收件箱中的文件是否需要转换。
// 隐藏的临时文件、编辑器备份和未写完的 .part 文件会被忽略
func IsRelevantTextFile(filePath string) bool {
	name := filepath.Base(filePath)
	if name == "" || name == "." {
		return false
	}
	switch {
	case strings.HasPrefix(name, ".#"), strings.HasPrefix(name, "~$"):
		return false
	case strings.HasSuffix(name, "~"):
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".tmp", ".swp", ".crdownload":
		return false
	default:
		return true
	}
}
