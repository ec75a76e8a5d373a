package npid

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var replyChainRe = regexp.MustCompile(`(?is)On\s+.+?\s+Prospect\s+ID\s+Video\s+.+?wrote:`)

// Parsers for the legacy backend's HTML views. These are deliberately
// tolerant: the markup is hand-maintained server-side and fields go
// missing without notice, so absent elements yield empty strings rather
// than errors.

// Thread is one video-team inbox entry.
type Thread struct {
	ID            string            `json:"id"`
	ItemCode      string            `json:"item_code"`
	ContactID     string            `json:"contact_id"`
	AthleteMainID string            `json:"athlete_main_id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Subject       string            `json:"subject"`
	Preview       string            `json:"preview"`
	Timestamp     string            `json:"timestamp"`
	CanAssign     bool              `json:"can_assign"`
	Unread        bool              `json:"unread"`
	Attachments   []ThreadAttachment `json:"attachments,omitempty"`
}

// ThreadAttachment is one downloadable attachment on a thread.
type ThreadAttachment struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// ModalData is everything the assignment modal page embeds: the form
// token plus the dropdown choices and hidden identifiers the assignment
// submit needs.
type ModalData struct {
	FormToken     string         `json:"form_token"`
	Owners        []OptionRecord `json:"owners"`
	Stages        []OptionRecord `json:"stages"`
	Statuses      []OptionRecord `json:"statuses"`
	Contact       string         `json:"contact"`
	ContactTask   string         `json:"contact_task"`
	AthleteMainID string         `json:"athlete_main_id"`
	MessageID     string         `json:"message_id"`
	ContactFor    string         `json:"contact_for"`
}

// ParseInboxThreads extracts thread cards from the inbox list fragment.
// Each card is a div.ImageProfile carrying its identifiers as attributes.
func ParseInboxThreads(fragment string) []Thread {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	threads := []Thread{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "div" || !hasClass(n, "ImageProfile") {
			return
		}
		itemID := attr(n, "itemid")
		if itemID == "" {
			return
		}
		id := attr(n, "id")
		if id == "" {
			id = itemID
		}
		itemCode := attr(n, "itemcode")
		if itemCode == "" {
			itemCode = itemID
		}
		t := Thread{
			ID:            id,
			ItemCode:      itemCode,
			ContactID:     attr(n, "contacttask"),
			AthleteMainID: attr(n, "athletemainid"),
			Name:          classText(n, "msg-sendr-name"),
			Email:         classText(n, "hidden"),
			Subject:       classText(n, "tit_line1"),
			Preview:       stripReplyChain(classText(n, "tit_univ")),
			Timestamp:     classText(n, "date_css"),
			Unread:        hasClass(n, "unread"),
		}
		if t.Name == "" {
			t.Name = "Unknown"
		}
		// A plus-circle icon marks threads that still accept assignment.
		walk(n, func(c *html.Node) {
			if c.Type == html.ElementNode && c.Data == "i" && hasClass(c, "fa-plus-circle") {
				t.CanAssign = true
			}
			if c.Type == html.ElementNode && hasClass(c, "attachment-item") {
				t.Attachments = append(t.Attachments, ThreadAttachment{
					FileName: attr(c, "data-filename"),
					URL:      attr(c, "data-url"),
				})
			}
		})
		threads = append(threads, t)
	})
	return threads
}

// ParseContactRows extracts contact-search results. Each result row
// carries a hidden input.contactselected whose attributes hold the
// identifiers, with ranking/grad-year/state/sport in the sibling cells.
func ParseContactRows(fragment string) []SearchResult {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	results := []SearchResult{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return
		}
		var input *html.Node
		walk(n, func(c *html.Node) {
			if input == nil && c.Type == html.ElementNode && c.Data == "input" && hasClass(c, "contactselected") {
				input = c
			}
		})
		if input == nil {
			return
		}
		r := SearchResult{
			PrimaryID: attr(input, "contactid"),
			MainID:    attr(input, "athlete_main_id"),
			Name:      attr(input, "contactname"),
		}
		cells := childElements(n, "td")
		if len(cells) >= 5 {
			r.Ranking = strings.TrimSpace(textContent(cells[1]))
			r.GradYear = strings.TrimSpace(textContent(cells[2]))
			r.State = strings.TrimSpace(textContent(cells[3]))
			r.SportAlias = strings.ToLower(strings.TrimSpace(textContent(cells[4])))
		}
		if r.PrimaryID != "" {
			results = append(results, r)
		}
	})
	return results
}

// ParseAssignmentModal extracts the assignment form embedded in the
// modal page: hidden token and identifiers plus the three dropdowns.
func ParseAssignmentModal(fragment string) ModalData {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ModalData{}
	}
	m := ModalData{ContactFor: "athlete"}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "input":
			switch attr(n, "name") {
			case "_token":
				m.FormToken = attr(n, "value")
			case "contact":
				m.Contact = attr(n, "value")
			case "contact_task":
				m.ContactTask = strings.TrimSpace(attr(n, "value"))
			case "athlete_main_id":
				m.AthleteMainID = strings.TrimSpace(attr(n, "value"))
			case "messageid":
				m.MessageID = strings.TrimSpace(attr(n, "value"))
			}
		case "select":
			switch attr(n, "name") {
			case "videoscoutassignedto":
				m.Owners = selectOptions(n)
			case "video_progress_stage":
				m.Stages = selectOptions(n)
			case "video_progress_status":
				m.Statuses = selectOptions(n)
			case "contactfor":
				walk(n, func(o *html.Node) {
					if o.Type == html.ElementNode && o.Data == "option" && attr(o, "selected") != "" {
						if v := strings.TrimSpace(attr(o, "value")); v != "" {
							m.ContactFor = v
						}
					}
				})
			}
		}
	})
	return m
}

func selectOptions(sel *html.Node) []OptionRecord {
	var buf bytes.Buffer
	html.Render(&buf, sel)
	return ParseOptions(buf.Bytes())
}

// stripReplyChain drops quoted history from a message preview: the
// backend appends "On <date> Prospect ID Video <name> wrote:" blocks.
func stripReplyChain(preview string) string {
	if idx := replyChainRe.FindStringIndex(preview); idx != nil {
		preview = preview[:idx[0]]
	}
	preview = strings.TrimSpace(preview)
	if len(preview) > 300 {
		preview = preview[:300]
	}
	return preview
}

// --------------------------------------------------------------------------
// HTML node helpers
// --------------------------------------------------------------------------

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// classText returns the trimmed text of the first descendant carrying
// the given class.
func classText(n *html.Node, class string) string {
	var out string
	walk(n, func(c *html.Node) {
		if out == "" && c.Type == html.ElementNode && hasClass(c, class) {
			out = strings.TrimSpace(textContent(c))
		}
	})
	return out
}

func childElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}
