package whatsapp

import (
	"regexp"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*$`)
	bulletRe     = regexp.MustCompile(`(?m)^(\s*)[\*\-+]\s+`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRe     = regexp.MustCompile(`(^|[^*\w])\*([^*\n]+?)\*`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	codeFenceRe  = regexp.MustCompile("(?m)^```[a-zA-Z0-9_-]*$")
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// boldMark stands in for WhatsApp bold while italics are rewritten
const boldMark = "\x00"

// WhatsAppFormatter converts model markdown into WhatsApp markup
type WhatsAppFormatter struct{}

// NewWhatsAppFormatter creates a new WhatsApp message formatter
func NewWhatsAppFormatter() *WhatsAppFormatter {
	return &WhatsAppFormatter{}
}

// Format rewrites headings, lists, emphasis and links. WhatsApp uses
// *bold*, _italic_ and ~strike~.
func (f *WhatsAppFormatter) Format(message string) string {
	result := strings.ReplaceAll(message, "\r\n", "\n")

	result = codeFenceRe.ReplaceAllString(result, "```")
	result = headingRe.ReplaceAllString(result, boldMark+"$1"+boldMark)
	result = bulletRe.ReplaceAllString(result, "$1• ")
	result = boldRe.ReplaceAllStringFunc(result, func(m string) string {
		return boldMark + m[2:len(m)-2] + boldMark
	})
	result = italicRe.ReplaceAllString(result, "${1}_${2}_")
	result = strikeRe.ReplaceAllString(result, "~$1~")
	result = linkRe.ReplaceAllString(result, "$1: $2")
	result = strings.ReplaceAll(result, boldMark, "*")
	result = blankLinesRe.ReplaceAllString(result, "\n\n")

	return strings.TrimSpace(result)
}
