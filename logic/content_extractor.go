package logic

import (
	"fedi_core/shared"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"regexp"
	"sort"
	"strings"
)

// IContentExtractor turns user-entered post text into stored HTML, and finds what the text refers to.
type IContentExtractor interface {
	// Sanitize applies the linebreaks filter, then strips disallowed markup.
	Sanitize(content string) string
	// Extract finds mentions, hashtags and emoji shortcodes outside links and code.
	Extract(content string) *Extraction
}

// Extraction holds deduplicated, sorted findings. Mentions are as written: "bob" or "bob@remote.example".
// Hashtags are normalized; emoji are shortcodes without colons.
type Extraction struct {
	Mentions []string
	Hashtags []string
	Emojis   []string
}

var (
	reParaBreak = regexp.MustCompile(`\n{2,}`)
	reMention   = regexp.MustCompile(`(?:^|[^\w/@])@([\w.-]+(?:@[\w-]+(?:\.[\w-]+)+)?)`)
	reHashtag   = regexp.MustCompile(`(?:^|[^\w&#/])#([\p{L}\p{N}_]+)`)
	reEmoji     = regexp.MustCompile(`:([a-zA-Z0-9_-]+):`)
)

type contentExtractor struct {
	policy *bluemonday.Policy
}

func NewContentExtractor() IContentExtractor {
	return &contentExtractor{bluemonday.UGCPolicy()}
}

func (ce *contentExtractor) Sanitize(content string) string {
	return ce.policy.Sanitize(linebreaks(content))
}

// linebreaks wraps blank-line separated paragraphs in <p> and turns remaining newlines into <br>.
func linebreaks(content string) string {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return ""
	}
	paras := reParaBreak.Split(content, -1)
	var sb strings.Builder
	for _, para := range paras {
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(strings.TrimSpace(para), "\n", "<br>"))
		sb.WriteString("</p>")
	}
	return sb.String()
}

func (ce *contentExtractor) Extract(content string) *Extraction {

	mentions := map[string]bool{}
	hashtags := map[string]bool{}
	emojis := map[string]bool{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return &Extraction{}
	}
	walkText(doc.Selection, func(text string) {
		for _, m := range reMention.FindAllStringSubmatch(text, -1) {
			mentions[strings.TrimRight(m[1], ".-")] = true
		}
		for _, m := range reHashtag.FindAllStringSubmatch(text, -1) {
			hashtags[shared.NormalizeHashtag(m[1])] = true
		}
		for _, m := range reEmoji.FindAllStringSubmatch(text, -1) {
			emojis[m[1]] = true
		}
	})

	return &Extraction{
		Mentions: sortedKeys(mentions),
		Hashtags: sortedKeys(hashtags),
		Emojis:   sortedKeys(emojis),
	}
}

// walkText calls fn for each text node, skipping the insides of links and code.
func walkText(sel *goquery.Selection, fn func(text string)) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			fn(s.Text())
		case "a", "code", "pre", "script", "style":
		default:
			walkText(s, fn)
		}
	})
}

func sortedKeys(set map[string]bool) []string {
	res := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			res = append(res, k)
		}
	}
	sort.Strings(res)
	return res
}
