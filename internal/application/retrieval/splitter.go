package retrieval

import "strings"

// 一行客户记录（ellctl ingest 生成的 "Key: value" 多行文本）通常不超过一个切片，
// 这样切片元信息只对应一个实体
const (
	defaultChunkSizeRunes    = 1200
	defaultChunkOverlapRunes = 120
)

// splitText 按行装箱切分：整行尽量不拆，相邻切片以尾部若干整行重叠；
// 单行超过 maxRunes 时退化为按 rune 滑窗
func splitText(s string, maxRunes, overlapRunes int) []string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	if maxRunes <= 0 || runeLen(raw) <= maxRunes {
		return []string{raw}
	}
	overlapRunes = max(0, min(overlapRunes, maxRunes-1))

	var (
		out    []string
		cur    []string
		curLen int // strings.Join(cur, "\n") 的 rune 数
		fresh  int // 上次输出后新加入的行数
	)
	emit := func() {
		if fresh == 0 {
			return
		}
		out = append(out, strings.Join(cur, "\n"))
		fresh = 0

		tail, tailLen := len(cur), 0
		for tail > 0 {
			add := runeLen(cur[tail-1])
			if tailLen > 0 {
				add++
			}
			if tailLen+add > overlapRunes {
				break
			}
			tailLen += add
			tail--
		}
		cur = append([]string(nil), cur[tail:]...)
		curLen = tailLen
	}
	reset := func() {
		cur, curLen = nil, 0
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := runeLen(line)
		if n > maxRunes {
			emit()
			reset()
			out = append(out, windowRunes(line, maxRunes, overlapRunes)...)
			continue
		}
		if len(cur) > 0 && curLen+1+n > maxRunes {
			emit()
			if len(cur) > 0 && curLen+1+n > maxRunes {
				reset()
			}
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, line)
		curLen += n
		fresh++
	}
	emit()
	return out
}

// windowRunes 固定窗口滑动切分，步长 maxRunes-overlapRunes
func windowRunes(s string, maxRunes, overlapRunes int) []string {
	runes := []rune(s)
	step := maxRunes - overlapRunes
	if step <= 0 {
		step = maxRunes
	}
	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+maxRunes, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end >= len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
