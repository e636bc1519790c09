package artifact

import (
	"errors"
	"fmt"
)

// SupportedTypes 支持的 artifact 类型。
var SupportedTypes = []string{
	"string",
	"number",
	"uri",
	"ip",
	"lat_lang",
}

// validKeys 入站 artifact payload 允许出现的字段。
var validKeys = map[string]struct{}{
	"type":  {},
	"name":  {},
	"value": {},
}

var (
	// ErrEmptyField fingerprint 的 type/value 不能为空
	ErrEmptyField = errors.New("artifact type and value must be non-empty")
)

// Fingerprint 标识一次调查的对象：(type, value) 组合。
// 作为去重 key 使用，字段精确匹配（区分大小写，不做归一化）。
// 构造后不可变。
type Fingerprint struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NewFingerprint 构造 fingerprint，校验两个字段非空。
func NewFingerprint(artifactType, value string) (Fingerprint, error) {
	if artifactType == "" || value == "" {
		return Fingerprint{}, ErrEmptyField
	}
	return Fingerprint{Type: artifactType, Value: value}, nil
}

// Equal 两个 fingerprint 相等当且仅当两个字段都精确相等。
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Type == other.Type && f.Value == other.Value
}

// IsZero 是否为零值（未设置）。
func (f Fingerprint) IsZero() bool {
	return f.Type == "" && f.Value == ""
}

func (f Fingerprint) String() string {
	return f.Type + "/" + f.Value
}

// ValidateProperties 校验入站 artifact payload：
// 字段名只能是 type/name/value，type 必须是支持的类型。
func ValidateProperties(props map[string]string) error {
	for key := range props {
		if _, ok := validKeys[key]; !ok {
			return fmt.Errorf("unsupported artifact property %q", key)
		}
	}

	typ, ok := props["type"]
	if !ok {
		return fmt.Errorf("artifact property \"type\" is required")
	}
	if !TypeSupported(typ) {
		return fmt.Errorf("unsupported artifact type %q", typ)
	}
	if props["value"] == "" {
		return fmt.Errorf("artifact property \"value\" is required")
	}
	return nil
}

// TypeSupported 是否为支持的 artifact 类型。
func TypeSupported(artifactType string) bool {
	for _, t := range SupportedTypes {
		if t == artifactType {
			return true
		}
	}
	return false
}
