package notion

// Block is one content block. Exactly one of the typed payloads is set,
// matching Type. Read-only fields (ID, HasChildren) are dropped on write.
type Block struct {
	Object      string `json:"object,omitempty"`
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children,omitempty"`

	Paragraph        *TextBlock     `json:"paragraph,omitempty"`
	Heading1         *TextBlock     `json:"heading_1,omitempty"`
	Heading2         *TextBlock     `json:"heading_2,omitempty"`
	Heading3         *TextBlock     `json:"heading_3,omitempty"`
	BulletedListItem *TextBlock     `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextBlock     `json:"numbered_list_item,omitempty"`
	Quote            *TextBlock     `json:"quote,omitempty"`
	ToDo             *ToDoBlock     `json:"to_do,omitempty"`
	Code             *CodeBlock     `json:"code,omitempty"`
	Divider          *struct{}      `json:"divider,omitempty"`
	Table            *TableBlock    `json:"table,omitempty"`
	TableRow         *TableRowBlock `json:"table_row,omitempty"`
}

// Block types produced by the markdown translator.
const (
	TypeParagraph        = "paragraph"
	TypeHeading1         = "heading_1"
	TypeHeading2         = "heading_2"
	TypeHeading3         = "heading_3"
	TypeBulletedListItem = "bulleted_list_item"
	TypeNumberedListItem = "numbered_list_item"
	TypeQuote            = "quote"
	TypeToDo             = "to_do"
	TypeCode             = "code"
	TypeDivider          = "divider"
	TypeTable            = "table"
	TypeTableRow         = "table_row"
)

// TextBlock is the payload shared by paragraphs, headings, list items and quotes.
type TextBlock struct {
	RichText []RichText `json:"rich_text"`
	Children []Block    `json:"children,omitempty"`
}

// ToDoBlock is a checkbox item.
type ToDoBlock struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
	Children []Block    `json:"children,omitempty"`
}

// CodeBlock holds preformatted text.
type CodeBlock struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

// TableBlock is a table whose rows are TableRow children.
type TableBlock struct {
	TableWidth      int     `json:"table_width"`
	HasColumnHeader bool    `json:"has_column_header"`
	HasRowHeader    bool    `json:"has_row_header"`
	Children        []Block `json:"children,omitempty"`
}

// TableRowBlock is one row; each cell is a rich text run list.
type TableRowBlock struct {
	Cells [][]RichText `json:"cells"`
}

// RichText is a styled text run.
type RichText struct {
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	PlainText   string       `json:"plain_text,omitempty"`
}

// Text is the content of a text run.
type Text struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink target.
type Link struct {
	URL string `json:"url"`
}

// Annotations style a text run.
type Annotations struct {
	Bold          bool `json:"bold,omitempty"`
	Italic        bool `json:"italic,omitempty"`
	Strikethrough bool `json:"strikethrough,omitempty"`
	Underline     bool `json:"underline,omitempty"`
	Code          bool `json:"code,omitempty"`
}

// IsZero reports whether no style is set.
func (a Annotations) IsZero() bool {
	return a == Annotations{}
}

// PlainText returns the unstyled content of runs.
func PlainText(runs []RichText) string {
	var s string
	for _, r := range runs {
		switch {
		case r.PlainText != "":
			s += r.PlainText
		case r.Text != nil:
			s += r.Text.Content
		}
	}
	return s
}

// Property is a database page property value. Only the kinds the sync
// engine touches are modelled.
type Property struct {
	Type        string     `json:"type,omitempty"`
	Title       []RichText `json:"title,omitempty"`
	Status      *Option    `json:"status,omitempty"`
	MultiSelect []Option   `json:"multi_select,omitempty"`
}

// Option is a status or select option.
type Option struct {
	Name string `json:"name"`
}

// Page is a database entry as returned by the pages endpoints.
type Page struct {
	Object     string              `json:"object"`
	ID         string              `json:"id"`
	URL        string              `json:"url"`
	Archived   bool                `json:"archived"`
	InTrash    bool                `json:"in_trash"`
	Properties map[string]Property `json:"properties"`
}

// Record is the projection of a Page the sync engine works with.
type Record struct {
	ID     string
	URL    string
	Title  string
	Status string
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent              `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

type updatePageRequest struct {
	Properties map[string]Property `json:"properties"`
}

type appendChildrenRequest struct {
	Children []Block `json:"children"`
}

type blockList struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

func textRun(content string) RichText {
	return RichText{Type: "text", Text: &Text{Content: content}}
}
