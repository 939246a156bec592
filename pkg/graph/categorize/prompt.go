package categorize

import (
	"fmt"
	"strings"

	"github.com/athapong/fingraph/pkg/graph/catalog"
)

// Request is what a Classifier receives. Categories always includes the
// catch-all category.
type Request struct {
	Name       string
	Content    string
	Categories []string
	Prompt     string
}

const systemPrompt = `You classify entities found in financial news, research notes and filings.
Answer with JSON of the form {"category": "<name>"} using exactly one name from the list you are given.`

// BuildRequest renders the classification prompt for one entity.
func BuildRequest(c *catalog.Catalog, name, content string) Request {
	fallback := c.Fallback().Name

	var b strings.Builder
	b.WriteString("Categorize the following entity into exactly one category.\n\n")
	fmt.Fprintf(&b, "Entity: %s\n", name)
	if content = strings.TrimSpace(content); content != "" {
		fmt.Fprintf(&b, "Content: %s\n", content)
	}
	b.WriteString("\nCategories:\n")
	b.WriteString(c.Describe())
	fmt.Fprintf(&b, "\nUse %q for anything that is not a financial-domain entity, such as dates, person names and generic words. ", fallback)
	b.WriteString("Do not invent new categories.\n")

	return Request{
		Name:       name,
		Content:    content,
		Categories: c.Names(),
		Prompt:     b.String(),
	}
}
