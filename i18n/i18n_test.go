package i18n

import "testing"

func TestMatch(t *testing.T) {
	cases := map[string]string{
		"":                          "zh-CN",
		"en":                        "en-US",
		"en-GB,en;q=0.9":            "en-US",
		"id":                        "id-ID",
		"fr-FR,id-ID;q=0.8":         "id-ID",
		"zh-CN,zh;q=0.9,en;q=0.8":   "zh-CN",
		"not a language tag at all": "zh-CN",
	}
	for in, want := range cases {
		if got := Match(in); got != want {
			t.Errorf("Match(%q) = %s, 期望 %s", in, got, want)
		}
	}
}

func TestTranslate(t *testing.T) {
	if err := Init("zh-CN"); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	data := map[string]interface{}{"Detail": "fast_window"}
	if got := TWithLang("en-US", "invalid_parameter", data); got != "Invalid parameter: fast_window" {
		t.Errorf("英文翻译错误: %s", got)
	}
	if got := TWithLang("id-ID", "internal_error"); got != "Kesalahan server internal" {
		t.Errorf("印尼语翻译错误: %s", got)
	}
	if got := T("report_deleted"); got != "回测报告已删除" {
		t.Errorf("默认语言翻译错误: %s", got)
	}
	if got := TWithLang("en-US", "no_such_key"); got != "no_such_key" {
		t.Errorf("未知 key 应原样返回, 得到 %s", got)
	}
}

func TestEveryLocaleHasSameKeys(t *testing.T) {
	if err := Init(""); err != nil {
		t.Fatal(err)
	}
	keys := []string{
		"invalid_parameter", "insufficient_data", "bad_request", "report_not_found",
		"cache_not_found", "internal_error", "storage_disabled", "request_busy",
		"sweep_too_large", "report_deleted", "cache_cleared", "backtest_completed",
	}
	for _, lang := range Supported() {
		for _, key := range keys {
			data := map[string]interface{}{"Detail": "x", "ID": "x", "Key": "x", "Count": 1, "Max": 2, "Symbol": "x", "Return": "1"}
			if got := TWithLang(lang, key, data); got == key {
				t.Errorf("%s 缺少 %s", lang, key)
			}
		}
	}
}
