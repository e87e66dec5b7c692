package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// statusCodesByText http.StatusText 的反向索引，键为小写文本
var statusCodesByText = sync.OnceValue(func() map[string]int {
	m := make(map[string]int)
	for code := 100; code < 600; code++ {
		if text := http.StatusText(code); text != "" {
			m[strings.ToLower(text)] = code
		}
	}
	return m
})

// statusLabel 计算 status_code 标签
//
// handler panic 且尚未写出响应时返回 defaultStatus；未写出状态码视为 200。
func statusLabel(status int, faulted, written bool, defaultStatus string) string {
	if faulted && !written {
		return defaultStatus
	}
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}

// coerceStatus 把 "500"、" 404 " 或 "Not Found" 这类取值转换为数字形式
func coerceStatus(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if code, err := strconv.Atoi(trimmed); err == nil {
		return strconv.Itoa(code), true
	}
	if code, ok := statusCodesByText()[strings.ToLower(trimmed)]; ok {
		return strconv.Itoa(code), true
	}
	return s, false
}
