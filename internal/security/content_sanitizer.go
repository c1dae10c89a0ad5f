package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズを行う。
type TextSanitizer interface {
	// StripTags は全てのタグを除去したプレーンテキストを返す。
	// 名前やアプリ名など、マークアップを持たない項目に使う。
	StripTags(s string) string

	// SanitizeRichText は説明文などの自由記述を許可リストでサニタイズする。
	SanitizeRichText(s string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "code")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https", "mailto")
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &textSanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// StripTags はタグを除去し、前後の空白を取り除く。
// bluemondayがエスケープした実体参照は元の文字に戻す。
func (s *textSanitizer) StripTags(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// SanitizeRichText は許可タグ以外を除去する。
func (s *textSanitizer) SanitizeRichText(in string) string {
	return s.rich.Sanitize(in)
}

// SanitizeData はレコードのデータ項目のうち文字列値をサニタイズする。
// ネストしたマップや配列も再帰的に処理し、元のマップは変更しない。
func SanitizeData(s TextSanitizer, data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = sanitizeValue(s, v)
	}
	return out
}

func sanitizeValue(s TextSanitizer, v any) any {
	switch t := v.(type) {
	case string:
		return s.SanitizeRichText(t)
	case map[string]any:
		return SanitizeData(s, t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(s, e)
		}
		return out
	default:
		return v
	}
}
