package fusion

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MergeStats 合并过程中被丢弃的字段数（诊断用）
type MergeStats struct {
	MalformedFields int
	Unattached      int
}

// MergeRecords 单次遍历片段，按实体 ID 合并为记录
//   - idFields 依次尝试，取第一个能解析为非空字符串或数值的字段
//   - 同名字段后出现的非空值覆盖先出现的值；Absent 从不覆盖
//   - 记录顺序为实体首次出现的顺序
//   - 没有实体 ID 的片段不产生记录，只保留在 raw_chunks
func MergeRecords(chunks []Chunk, idFields []string) ([]EntityRecord, MergeStats) {
	var stats MergeStats
	records := make([]EntityRecord, 0)
	index := make(map[string]int)

	for _, c := range chunks {
		idField, id, ok := entityID(c.Metadata, idFields)
		if !ok {
			stats.Unattached++
			continue
		}

		pos, seen := index[id]
		if !seen {
			pos = len(records)
			index[id] = pos
			records = append(records, EntityRecord{
				EntityID: id,
				Fields:   make(map[string]Value),
			})
		}
		rec := &records[pos]
		rec.ContributingChunks++

		// 按键排序遍历，保证诊断计数与日志稳定
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if k == idField {
				continue
			}
			v, err := Coerce(c.Metadata[k])
			if err != nil {
				stats.MalformedFields++
				continue
			}
			if v.IsAbsent() {
				continue
			}
			rec.Fields[k] = v
		}
		rec.Fields[idField] = String(id)
	}

	return records, stats
}

// entityID 提取实体 ID；字符串去空白后原样使用（"007" 与 "7" 是不同实体），
// 原生数值按规范文本格式化，整数走 FormatInt 保证 2^53 以上不丢精度。布尔值不能作为 ID
func entityID(meta map[string]any, idFields []string) (string, string, bool) {
	for _, f := range idFields {
		raw, ok := meta[f]
		if !ok {
			continue
		}
		if id, ok := idText(raw); ok {
			return f, id, true
		}
	}
	return "", "", false
}

func idText(raw any) (string, bool) {
	var id string
	switch x := raw.(type) {
	case string:
		id = strings.TrimSpace(x)
		switch strings.ToLower(id) {
		case "null", "none", "nan":
			return "", false
		}
	case json.Number:
		id = strings.TrimSpace(x.String())
	case Value:
		switch x.Kind() {
		case KindString:
			return idText(x.str)
		case KindNumber:
			return idText(x.num)
		}
		return "", false
	case int:
		id = strconv.FormatInt(int64(x), 10)
	case int8:
		id = strconv.FormatInt(int64(x), 10)
	case int16:
		id = strconv.FormatInt(int64(x), 10)
	case int32:
		id = strconv.FormatInt(int64(x), 10)
	case int64:
		id = strconv.FormatInt(x, 10)
	case uint:
		id = strconv.FormatUint(uint64(x), 10)
	case uint8:
		id = strconv.FormatUint(uint64(x), 10)
	case uint16:
		id = strconv.FormatUint(uint64(x), 10)
	case uint32:
		id = strconv.FormatUint(uint64(x), 10)
	case uint64:
		id = strconv.FormatUint(x, 10)
	case float32:
		return idText(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		// 整值浮点（如 JSON 解码出的 1001.0）与 "1001" 视为同一实体
		id = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return "", false
	}
	return id, id != ""
}
