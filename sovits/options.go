package sovits

import "strings"

// web UI language labels, zh_CN and en_US locales, mapped to API language codes
var languageCodes = map[string]string{
	"中文":                      "all_zh",
	"英文":                      "en",
	"日文":                      "all_ja",
	"粤语":                      "all_yue",
	"韩文":                      "all_ko",
	"中英混合":                    "zh",
	"日英混合":                    "ja",
	"粤英混合":                    "yue",
	"韩英混合":                    "ko",
	"多语种混合":                   "auto",
	"多语种混合(粤语)":               "auto_yue",
	"Chinese":                 "all_zh",
	"English":                 "en",
	"Japanese":                "all_ja",
	"Yue":                     "all_yue",
	"Korean":                  "all_ko",
	"Chinese-English Mixed":   "zh",
	"Japanese-English Mixed":  "ja",
	"Yue-English Mixed":       "yue",
	"Korean-English Mixed":    "ko",
	"Multilingual Mixed":      "auto",
	"Multilingual Mixed(Yue)": "auto_yue",
}

// isLanguageCode reports whether s is a text_lang/prompt_lang value the API accepts.
func isLanguageCode(s string) bool {
	for _, code := range languageCodes {
		if s == code {
			return true
		}
	}
	return false
}

var splitMethods = map[string]string{
	"不切":      "cut0",
	"凑四句一切":   "cut1",
	"凑50字一切":  "cut2",
	"按中文句号。切": "cut3",
	"按英文句号.切": "cut4",
	"按标点符号切":  "cut5",

	"no slice":                     "cut0",
	"slice once every 4 sentences": "cut1",
	"slice per 50 characters":      "cut2",
	"slice by chinese punct":       "cut3",
	"slice by english punct":       "cut4",
	"slice by every punct":         "cut5",
}

// LanguageCode maps a web UI language label to its API code. An exact label
// wins over an API code, so "Yue" is all_yue while "yue" stays yue. Anything
// else is returned trimmed and lowercased.
func LanguageCode(label string) string {
	label = strings.TrimSpace(label)
	if code, ok := languageCodes[label]; ok {
		return code
	}

	key := strings.ToLower(label)
	if isLanguageCode(key) {
		return key
	}
	for l, code := range languageCodes {
		if strings.EqualFold(l, label) {
			return code
		}
	}
	return key
}

// SplitMethod maps a web UI "how to cut" label to its API text_split_method.
// Empty means no splitting.
func SplitMethod(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "cut0"
	}
	if m, ok := splitMethods[key]; ok {
		return m
	}
	return key
}
