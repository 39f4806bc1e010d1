// Package export 将提取结果导出为 JSON 或下载器命令行。
package export

import (
	"fmt"
	"io"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"prproxy/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultOutput 下载命令默认输出名
const DefaultOutput = "output"

// WriteJSON 以缩进 JSON 数组写出全部结果
func WriteJSON(w io.Writer, logs []model.ExtractionLog) error {
	if logs == nil {
		logs = []model.ExtractionLog{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(logs); err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	return nil
}

// KeyArgs 生成 --key kid:k 参数串
func KeyArgs(keys []model.KeyResult) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("--key %s:%s", k.KeyID, k.Key))
	}
	return strings.Join(parts, " ")
}

// DownloadCommand 为清单与密钥拼出下载器命令；请求头按名称排序，值中的双引号换成单引号
func DownloadCommand(exe string, m model.ManifestRecord, keys []model.KeyResult, output string) string {
	if output == "" {
		output = DefaultOutput
	}

	names := make([]string, 0, len(m.Headers))
	for name := range m.Headers {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := []string{exe, `-u "` + m.URL + `"`}
	for _, name := range names {
		v := strings.ReplaceAll(m.Headers[name], `"`, `'`)
		parts = append(parts, `-H "`+name+": "+v+`"`)
	}
	if ka := KeyArgs(keys); ka != "" {
		parts = append(parts, ka)
	}
	parts = append(parts, `-o "`+output+`"`)
	return strings.Join(parts, " ")
}

// Commands 为一条结果的每个清单生成命令
func Commands(exe string, log model.ExtractionLog) []string {
	out := make([]string, 0, len(log.Manifests))
	for _, m := range log.Manifests {
		out = append(out, DownloadCommand(exe, m, log.Keys, DefaultOutput))
	}
	return out
}
