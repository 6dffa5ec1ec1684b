// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はスレッドメッセージ本文をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// ContentSanitizerService はメッセージ本文のサニタイズ機能のインターフェースを定義する。
// メッセージ保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeBody はメッセージ本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, strong, em, code）のみを通過させ、
	// script, iframe, style, imgタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeBody(rawBody string) string

	// PreviewText はサニタイズ済みHTMLからプレーンテキストを抽出し、
	// 最大maxRunes文字に切り詰める。通知のプレビュー表示に使用される。
	PreviewText(sanitizedHTML string, maxRunes int) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, strong, em, code
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// メッセージ本文に必要な最小限のインライン整形のみ許可する。
	// script, iframe, style, img等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements("p", "br", "strong", "em", "code")

	// リンクの設定:
	// - href属性を許可、相対URLは不許可
	// - target="_blank"を全リンクに強制付与
	// - rel="noreferrer noopener"を強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// SanitizeBody はメッセージ本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) SanitizeBody(rawBody string) string {
	return s.policy.Sanitize(rawBody)
}

// PreviewText はHTMLからテキストノードのみを取り出して連結し、
// 先頭maxRunes文字を返す。パースできない入力には空文字列を返す。
func (s *contentSanitizer) PreviewText(sanitizedHTML string, maxRunes int) string {
	doc, err := html.Parse(strings.NewReader(sanitizedHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(b.String()), " ")
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = string(runes[:maxRunes])
	}
	return text
}
