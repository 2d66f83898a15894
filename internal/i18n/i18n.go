package i18n

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type ctxKey struct{}

// Translator 持有消息目录和语言协商器，可并发使用
type Translator struct {
	cat      catalog.Catalog
	matcher  language.Matcher
	fallback language.Tag
}

func New(defaultLocale string) (*Translator, error) {
	b, err := newCatalog()
	if err != nil {
		return nil, err
	}
	fallback := English
	if tag, err := language.Parse(defaultLocale); err == nil {
		for _, s := range Supported {
			if base, _ := tag.Base(); base == mustBase(s) {
				fallback = s
			}
		}
	}
	return &Translator{
		cat:      b,
		matcher:  language.NewMatcher(Supported),
		fallback: fallback,
	}, nil
}

func mustBase(t language.Tag) language.Base {
	b, _ := t.Base()
	return b
}

// Negotiate 解析 Accept-Language，返回支持列表中的最佳匹配
func (t *Translator) Negotiate(acceptLanguage string) language.Tag {
	acceptLanguage = strings.TrimSpace(acceptLanguage)
	if acceptLanguage == "" {
		return t.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.fallback
	}
	return Supported[idx]
}

// Tag 把用户保存的 locale（如 "es"）映射到支持的语言
func (t *Translator) Tag(locale string) language.Tag {
	return t.Negotiate(locale)
}

func (t *Translator) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(t.cat))
}

// Sprintf 按指定语言格式化 key
func (t *Translator) Sprintf(tag language.Tag, key string, args ...any) string {
	return t.Printer(tag).Sprintf(key, args...)
}

func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func printerFrom(ctx context.Context) *message.Printer {
	if p, ok := ctx.Value(ctxKey{}).(*message.Printer); ok {
		return p
	}
	return nil
}

// T 使用 context 中的 printer 翻译；没有 printer 时使用英文
func (t *Translator) T(ctx context.Context, key string, args ...any) string {
	if p := printerFrom(ctx); p != nil {
		return p.Sprintf(key, args...)
	}
	return t.Sprintf(t.fallback, key, args...)
}

// Middleware 协商请求语言并把 printer 放入 request context
func (t *Translator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.Query("lang")
		if accept == "" {
			accept = c.GetHeader("Accept-Language")
		}
		tag := t.Negotiate(accept)
		c.Request = c.Request.WithContext(WithPrinter(c.Request.Context(), t.Printer(tag)))
		c.Header("Content-Language", tag.String())
		c.Next()
	}
}
