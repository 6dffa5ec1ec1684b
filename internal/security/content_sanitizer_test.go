package security

import (
	"strings"
	"testing"
)

// TestSanitizeBody_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitizeBody_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		// want に含まれるべき部分文字列
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>内見の希望日について</p>",
			wantContains: []string{"<p>内見の希望日について</p>"},
		},
		{
			name:         "brタグが許可される",
			input:        "行1<br>行2",
			wantContains: []string{"<br>", "行1", "行2"},
		},
		{
			name:         "aタグが許可される",
			input:        `<a href="https://example.com/listing/42">物件ページ</a>`,
			wantContains: []string{"<a", "href", "https://example.com/listing/42", "物件ページ", "</a>"},
		},
		{
			name:         "strongタグが許可される",
			input:        "<strong>今週末まで</strong>",
			wantContains: []string{"<strong>今週末まで</strong>"},
		},
		{
			name:         "emタグが許可される",
			input:        "<em>要確認</em>",
			wantContains: []string{"<em>要確認</em>"},
		},
		{
			name:         "codeタグが許可される",
			input:        "<code>REF-2031</code>",
			wantContains: []string{"<code>REF-2031</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeBody(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("SanitizeBody(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitizeBody_ForbiddenTags は禁止タグが除去されることを検証する。
func TestSanitizeBody_ForbiddenTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグが除去される",
			input:        `<p>テスト</p><script>alert('xss')</script><p>安全</p>`,
			wantAbsent:   []string{"<script", "</script>", "alert"},
			wantContains: []string{"テスト", "安全"},
		},
		{
			name:         "iframeタグが除去される",
			input:        `<p>テスト</p><iframe src="https://evil.com"></iframe>`,
			wantAbsent:   []string{"<iframe", "</iframe>", "evil.com"},
			wantContains: []string{"テスト"},
		},
		{
			name:         "styleタグが除去される",
			input:        `<p>テスト</p><style>body{display:none}</style>`,
			wantAbsent:   []string{"<style", "</style>", "display:none"},
			wantContains: []string{"テスト"},
		},
		{
			name:         "imgタグが除去される",
			input:        `<p>写真です</p><img src="https://example.com/a.png">`,
			wantAbsent:   []string{"<img"},
			wantContains: []string{"写真です"},
		},
		{
			name:         "許可されていないタグ（div）が除去される",
			input:        `<div><p>テスト</p></div>`,
			wantAbsent:   []string{"<div", "</div>"},
			wantContains: []string{"<p>テスト</p>"},
		},
		{
			name:       "onclickイベント属性が除去される",
			input:      `<p onclick="steal()">テスト</p>`,
			wantAbsent: []string{"onclick", "steal"},
			wantContains: []string{"テスト"},
		},
		{
			name:       "javascriptスキームのリンクが無害化される",
			input:      `<a href="javascript:alert(1)">クリック</a>`,
			wantAbsent: []string{"javascript:"},
			wantContains: []string{"クリック"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeBody(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("SanitizeBody(%q) = %q, expected NOT to contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("SanitizeBody(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitizeBody_LinkHardening はリンクにtarget/rel属性が付与されることを検証する。
func TestSanitizeBody_LinkHardening(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.SanitizeBody(`<a href="https://example.com">リンク</a>`)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("expected target=\"_blank\" in %q", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("expected rel noopener/noreferrer in %q", got)
	}
}

// TestSanitizeBody_EmptyAndIdempotent は空入力と冪等性を検証する。
func TestSanitizeBody_EmptyAndIdempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.SanitizeBody(""); got != "" {
		t.Errorf("SanitizeBody(\"\") = %q, want \"\"", got)
	}

	input := `<p>テスト</p><script>alert(1)</script><strong>太字</strong>`
	once := sanitizer.SanitizeBody(input)
	twice := sanitizer.SanitizeBody(once)
	if once != twice {
		t.Errorf("sanitize is not idempotent: %q != %q", once, twice)
	}
}

// TestPreviewText はサニタイズ済みHTMLからのテキスト抽出を検証する。
func TestPreviewText(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{
			name:     "タグが除去されテキストのみ残る",
			input:    "<p>内見の<strong>希望日</strong>を教えてください</p>",
			maxRunes: 100,
			want:     "内見の希望日を教えてください",
		},
		{
			name:     "複数要素は空白1つで連結される",
			input:    "<p>こんにちは</p>  <p>お世話になります</p>",
			maxRunes: 100,
			want:     "こんにちは お世話になります",
		},
		{
			name:     "maxRunesで切り詰められる",
			input:    "<p>あいうえおかきくけこ</p>",
			maxRunes: 5,
			want:     "あいうえお",
		},
		{
			name:     "空入力は空文字列",
			input:    "",
			maxRunes: 100,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.PreviewText(tt.input, tt.maxRunes)
			if got != tt.want {
				t.Errorf("PreviewText(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
			}
		})
	}
}

// TestContentSanitizerInterface はインターフェース実装を検証する。
func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
