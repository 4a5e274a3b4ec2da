package xjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMarshal 序列化失败
var ErrMarshal = errors.New("xjson: marshal failed")

const indent = "  "

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshal, err)
	}
	return buf.Bytes(), nil
}

// PrettyE 将 v 序列化为带缩进的 JSON 字符串，不含结尾换行
func PrettyE(v any) (string, error) {
	data, err := encode(v)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(data, []byte("\n"))), nil
}

// Pretty 同 PrettyE，失败时返回 "<marshal error: ...>"
func Pretty(v any) string {
	s, err := PrettyE(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return s
}

// Write 将 v 格式化后写入 w，以换行结尾
//
// 序列化失败时不写入任何内容。
func Write(w io.Writer, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
