// Package security はユーザー入力のサニタイズを提供する。
//
// メモ本文は許可リスト方式のHTMLとして、タイトルや連絡先名などの
// プレーンテキスト項目はタグを全て除去して保存する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力のサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize はメモ本文のHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img）のみを通過させる。
	// imgのsrcはhttpsのみ。aにはtarget="_blank"とrel="noopener noreferrer"を付与する。
	Sanitize(rawHTML string) string

	// PlainText は全てのタグを除去し、前後の空白を取り除く。
	PlainText(raw string) string
}

type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })

	return &contentSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.rich.Sanitize(rawHTML)
}

func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}
