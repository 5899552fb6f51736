package i18n

import (
	"embed"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// 支持的语言，第一个为兜底语言
var supported = []language.Tag{
	language.MustParse("zh-CN"),
	language.MustParse("en-US"),
	language.MustParse("id-ID"),
}

var (
	bundle         *i18n.Bundle
	matcher        = language.NewMatcher(supported)
	mu             sync.RWMutex
	systemLanguage = "zh-CN"
)

// Init 初始化 i18n 系统
func Init(lang string) error {
	mu.Lock()
	defer mu.Unlock()

	b := i18n.NewBundle(supported[0])
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	for _, tag := range supported {
		filename := fmt.Sprintf("locales/%s.yaml", tag.String())
		if _, err := b.LoadMessageFileFS(localeFS, filename); err != nil {
			return fmt.Errorf("加载翻译文件 %s 失败: %w", filename, err)
		}
	}

	bundle = b
	if lang != "" {
		systemLanguage = Match(lang)
	}
	return nil
}

// Match 把任意语言标识（包括 Accept-Language 头）匹配到支持的语言
func Match(accept string) string {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return supported[0].String()
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx].String()
}

// Supported 支持的语言列表
func Supported() []string {
	out := make([]string, len(supported))
	for i, tag := range supported {
		out[i] = tag.String()
	}
	return out
}

// GetLocalizer 获取指定语言的 Localizer，未初始化时返回 nil
func GetLocalizer(lang string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()

	if bundle == nil {
		return nil
	}
	if lang == "" {
		lang = systemLanguage
	}
	return i18n.NewLocalizer(bundle, lang, systemLanguage)
}

// T 翻译消息（使用系统默认语言）
func T(key string, data ...map[string]interface{}) string {
	return TWithLang(GetSystemLanguage(), key, data...)
}

// TWithLang 翻译消息（指定语言），找不到时返回 key
func TWithLang(lang string, key string, data ...map[string]interface{}) string {
	localizer := GetLocalizer(lang)
	if localizer == nil {
		return key
	}

	var templateData map[string]interface{}
	if len(data) > 0 {
		templateData = data[0]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		return key
	}
	return msg
}

// SetSystemLanguage 设置系统默认语言
func SetSystemLanguage(lang string) {
	mu.Lock()
	defer mu.Unlock()
	systemLanguage = Match(lang)
}

// GetSystemLanguage 获取系统默认语言
func GetSystemLanguage() string {
	mu.RLock()
	defer mu.RUnlock()
	return systemLanguage
}
