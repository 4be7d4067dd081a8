package fusion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedMetadata 字段值无法规范化（非有限数、非标量等），该字段按缺失处理
var ErrMalformedMetadata = errors.New("malformed metadata")

// Kind 标量类型
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNumber
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "absent"
	}
}

// Value 元数据字段的标量值 {Number, Bool, String, Absent}
// 零值为 Absent；0 是合法的 Number，不等于缺失
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
}

// Absent 缺失值
func Absent() Value { return Value{} }

// Bool 布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String 字符串值
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number 数值；NaN/Inf 返回 Absent
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Float 返回数值，非 Number 时 ok=false
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean 返回布尔值，非 Bool 时 ok=false
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Str 返回字符串，非 String 时 ok=false
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Any 转为 JSON 友好的 Go 值，Absent 为 nil
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.str
	default:
		return nil
	}
}

// Text 用于拼接文本和作为实体 ID；整数不带小数点
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.str
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON 读回缓存或外部 JSON 时走同一套强制转换
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cv, err := Coerce(raw)
	if err != nil {
		return err
	}
	*v = cv
	return nil
}

// Coerce 按统一策略把原始元数据值转换为 Value：
//   - 数字字符串 -> Number；"true"/"false"（忽略大小写）-> Bool
//   - nil、空串 -> Absent（无错误）
//   - NaN、±Inf、非标量 -> Absent + ErrMalformedMetadata
//
// 不做猜测：无法确定的值一律 Absent，绝不用 0 代替缺失。
func Coerce(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Absent(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return coerceString(x)
	case json.Number:
		return coerceString(x.String())
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	default:
		return Absent(), fmt.Errorf("%w: unsupported type %T", ErrMalformedMetadata, raw)
	}
}

func finite(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Absent(), fmt.Errorf("%w: non-finite number", ErrMalformedMetadata)
	}
	return Number(f), nil
}

func coerceString(s string) (Value, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return Absent(), nil
	}
	switch strings.ToLower(t) {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null", "none", "nan":
		return Absent(), nil
	}
	if looksNumeric(t) {
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return finite(f)
		}
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return Absent(), fmt.Errorf("%w: number out of range %q", ErrMalformedMetadata, t)
		}
	}
	return String(s), nil
}

// looksNumeric 只接受十进制写法，排除 "Inf"、"0x1p3"、"1_000" 这类 ParseFloat 也认的形式
func looksNumeric(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-':
			if i != 0 && s[i-1] != 'e' && s[i-1] != 'E' {
				return false
			}
		case r == '.' || r == 'e' || r == 'E':
		default:
			return false
		}
	}
	return digits > 0
}
