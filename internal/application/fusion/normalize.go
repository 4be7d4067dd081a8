package fusion

import (
	"math"
	"strings"
)

var (
	floatFields = []string{
		"total_spent",
		"lifetime_value",
		"avg_order_value",
		"churn_risk_score",
		"satisfaction_score",
		"email_open_rate",
		"email_click_rate",
		"sms_response_rate",
		"video_completion_rate",
		"repeat_purchase_rate",
	}

	intFields = []string{
		"total_purchases",
		"converted_campaigns",
		"responded_to_campaigns",
		"clicked_campaigns",
		"referrals_made",
		"app_downloads",
		"store_visits",
		"phone_calls",
		"social_shares",
		"loyalty_points",
		"purchase_frequency_days",
		"days_since_last_purchase",
	}

	yesNoFields = []string{
		"loyalty_member",
		"newsletter_subscriber",
		"push_notifications_enabled",
		"social_media_follower",
	}
)

// CustomerSummary 客户列表展示用的投影
type CustomerSummary struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// NormalizeCustomerFields 返回按客户字段约定规范化后的副本，不修改入参
//   - 金额/比率字段转为 Number（接受 "$1,200.50" 写法）；计数字段截断为整数
//   - 会员/订阅类字段统一为 "Yes"/"No"
//   - customer_id 统一为字符串
//
// 无法转换的值保持原样。
func NormalizeCustomerFields(fields map[string]Value) map[string]Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, f := range floatFields {
		if n, ok := amount(out[f]); ok {
			out[f] = Number(n)
		}
	}
	for _, f := range intFields {
		if n, ok := out[f].Float(); ok {
			out[f] = Number(math.Trunc(n))
		}
	}
	for _, f := range yesNoFields {
		if v, ok := out[f]; ok {
			if yn, ok := yesNo(v, f == "loyalty_member"); ok {
				out[f] = String(yn)
			}
		}
	}
	if v, ok := out["customer_id"]; ok && !v.IsAbsent() {
		out["customer_id"] = String(v.Text())
	}
	return out
}

// amount 解析带货币符号或千分位的金额
func amount(v Value) (float64, bool) {
	if n, ok := v.Float(); ok {
		return n, true
	}
	s, ok := v.Str()
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	cv, err := Coerce(s)
	if err != nil {
		return 0, false
	}
	return cv.Float()
}

// yesNo 布尔、"yes/no/true/false/1/0" 与 1/0 转为 Yes/No
// loose 为 true 时任何非零数也视为 Yes
func yesNo(v Value, loose bool) (string, bool) {
	switch v.Kind() {
	case KindBool:
		b, _ := v.Boolean()
		return yesNoOf(b), true
	case KindString:
		s, _ := v.Str()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1", "y":
			return "Yes", true
		case "false", "no", "0", "n":
			return "No", true
		}
	case KindNumber:
		n, _ := v.Float()
		if n == 0 {
			return "No", true
		}
		if n == 1 || loose {
			return "Yes", true
		}
	}
	return "", false
}

func yesNoOf(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Summarize 由记录生成客户摘要：id、姓名（first + last 或其一）、邮箱
func Summarize(rec EntityRecord) CustomerSummary {
	var s CustomerSummary
	if v := rec.Field("customer_id"); !v.IsAbsent() {
		s.ID = v.Text()
	} else {
		s.ID = rec.EntityID
	}

	first := strings.TrimSpace(rec.Field("first_name").Text())
	last := strings.TrimSpace(rec.Field("last_name").Text())
	switch {
	case first != "" && last != "":
		s.Name = first + " " + last
	case first != "":
		s.Name = first
	default:
		s.Name = last
	}

	s.Email = strings.TrimSpace(rec.Field("email").Text())
	return s
}

// Customers 对所有记录生成摘要，顺序与记录一致
func Customers(records []EntityRecord) []CustomerSummary {
	out := make([]CustomerSummary, 0, len(records))
	for _, r := range records {
		out = append(out, Summarize(r))
	}
	return out
}

// NormalizeRecords 返回字段规范化后的记录副本
func NormalizeRecords(records []EntityRecord) []EntityRecord {
	out := make([]EntityRecord, len(records))
	for i, r := range records {
		out[i] = EntityRecord{
			EntityID:           r.EntityID,
			Fields:             NormalizeCustomerFields(r.Fields),
			ContributingChunks: r.ContributingChunks,
		}
	}
	return out
}
