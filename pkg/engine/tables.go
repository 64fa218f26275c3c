package engine

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tableExt = ".txt"

// loadTables 读取 MediaWiki 转换表。每个变体一份 "<变体>.txt"，每行 "原文<TAB>译文"，
// 以 # 开头的行为注释。地区变体在繁简基础表之上叠加自己的表
func loadTables(dir string) (map[Variant]*table, string, error) {
	if dir == "" {
		return nil, "", errors.New("mediawiki tables dir is not configured")
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, "", fmt.Errorf("mediawiki tables dir %s: %w", dir, err)
	} else if !info.IsDir() {
		return nil, "", fmt.Errorf("mediawiki tables dir %s is not a directory", dir)
	}

	hash := sha1.New()
	raw := make(map[Variant]*table)
	for _, v := range Variants {
		if v == Zh {
			continue
		}
		path := filepath.Join(dir, string(v)+tableExt)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read table %s: %w", path, err)
		}
		hash.Write([]byte(v))
		hash.Write(data)
		t, err := parseTable(data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse table %s: %w", path, err)
		}
		raw[v] = t
	}

	tables := make(map[Variant]*table)
	for _, v := range Variants {
		if v == Zh {
			continue
		}
		t := newTable()
		if base := baseVariant(v); base != v {
			t.merge(raw[base])
		}
		t.merge(raw[v])
		tables[v] = t
	}
	return tables, hex.EncodeToString(hash.Sum(nil))[:12], nil
}

func baseVariant(v Variant) Variant {
	if v.IsHans() {
		return ZhHans
	}
	return ZhHant
}

func parseTable(data []byte) (*table, error) {
	t := newTable()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		from, to, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		t.add(strings.TrimSpace(from), strings.TrimSpace(to))
	}
	return t, scanner.Err()
}
