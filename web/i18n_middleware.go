package web

import (
	"github.com/gin-gonic/gin"

	tfi18n "tradeforge/i18n"
)

const languageKey = "language"

// I18nMiddleware 解析 ?lang= 或 Accept-Language 头并设置到上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.Query("lang")
		if accept == "" {
			accept = c.GetHeader("Accept-Language")
		}
		lang := tfi18n.GetSystemLanguage()
		if accept != "" {
			lang = tfi18n.Match(accept)
		}
		c.Set(languageKey, lang)
		c.Next()
	}
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang := c.GetString(languageKey); lang != "" {
		return lang
	}
	return tfi18n.GetSystemLanguage()
}

// T 翻译消息（从上下文获取语言）
func T(c *gin.Context, key string, data ...map[string]interface{}) string {
	return tfi18n.TWithLang(GetLanguage(c), key, data...)
}
