package markup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultThreshold is the minimum confidence for an entity to be tagged.
const DefaultThreshold = 0.5

// SourceTag is the type of the leading attribution tag.
const SourceTag = "SOURCE"

// ErrMalformedTag is returned when a line cannot be read as a tag.
var ErrMalformedTag = errors.New("malformed markup tag")

// Builder renders documents with inline entity tags. It implements
// graph.DocumentEnhancer and is safe for concurrent use.
type Builder struct {
	threshold float64
	counter   TokenCounter
	logger    *logrus.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithThreshold sets the minimum confidence for tagged entities.
func WithThreshold(t float64) Option {
	return func(b *Builder) {
		b.threshold = t
	}
}

// WithTokenCounter records a token count on every enhanced document.
func WithTokenCounter(c TokenCounter) Option {
	return func(b *Builder) {
		b.counter = c
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a builder with the default threshold and no token counter.
func NewBuilder(opts ...Option) *Builder {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	b := &Builder{threshold: DefaultThreshold, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Threshold returns the minimum confidence for tagged entities.
func (b *Builder) Threshold() float64 {
	return b.threshold
}

// Build renders the source tag, one tag per entity at or above the
// threshold ordered by type then name, a blank line and the original text.
// Neither the document nor the entity set is modified.
func (b *Builder) Build(doc graph.RawDocument, entities graph.EntitySet) graph.EnhancedDocument {
	tagged := make(graph.EntitySet, 0, len(entities))
	for _, e := range entities {
		if e.Confidence >= b.threshold {
			tagged = append(tagged, e)
		}
	}
	sort.SliceStable(tagged, func(i, j int) bool {
		if tagged[i].Type != tagged[j].Type {
			return tagged[i].Type < tagged[j].Type
		}
		return tagged[i].Name < tagged[j].Name
	})

	var out strings.Builder
	out.WriteString(sourceTag(doc))
	out.WriteByte('\n')
	for _, e := range tagged {
		out.WriteString(entityTag(e))
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
	out.WriteString(doc.Text)

	enhanced := graph.EnhancedDocument{
		DocumentID: doc.ID,
		Text:       out.String(),
		Tags:       len(tagged),
	}
	if b.counter != nil {
		enhanced.TokenCount = b.counter.Count(enhanced.Text)
	}

	b.logger.WithFields(logrus.Fields{
		"doc_id":  doc.ID,
		"tags":    enhanced.Tags,
		"dropped": len(entities) - len(tagged),
	}).Debug("Enhanced document built")
	return enhanced
}

func sourceTag(doc graph.RawDocument) string {
	fields := []field{{"sender", doc.Metadata.Sender}}
	if !doc.Metadata.Timestamp.IsZero() {
		fields = append(fields, field{"timestamp", doc.Metadata.Timestamp.UTC().Format(time.RFC3339)})
	}
	fields = append(fields, field{"document", doc.ID})
	if len(doc.Metadata.Attachments) > 0 {
		fields = append(fields, field{"attachments", strings.Join(doc.Metadata.Attachments, ",")})
	}
	return render(SourceTag, doc.Metadata.Origin, fields)
}

func entityTag(e graph.ExtractedEntity) string {
	fields := []field{
		{"category", string(e.Category)},
		{"confidence", fmt.Sprintf("%.2f", e.Confidence)},
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, field{k, e.Attributes[k]})
	}
	return render(string(e.Type), e.Name, fields)
}

type field struct {
	key, value string
}

func render(tagType, value string, fields []field) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(Escape(tagType))
	b.WriteByte(':')
	b.WriteString(Escape(value))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		b.WriteByte('|')
		b.WriteString(Escape(f.key))
		b.WriteByte(':')
		b.WriteString(Escape(f.value))
	}
	b.WriteByte(']')
	return b.String()
}

// Tag is one parsed markup tag.
type Tag struct {
	Type   string
	Value  string
	Fields map[string]string
}

// Document is the parsed form of an enhanced document.
type Document struct {
	Source   Tag
	Entities []Tag
	Body     string
}

// ParseTag reads a single tag line.
func ParseTag(line string) (Tag, error) {
	line = strings.TrimRight(line, "\r")
	if len(line) < 2 || line[0] != '[' || indexUnescaped(line[1:], ']') != len(line)-2 {
		return Tag{}, errors.Wrapf(ErrMalformedTag, "%q", line)
	}

	parts := splitUnescaped(line[1:len(line)-1], '|')
	head := strings.SplitN(parts[0], ":", 2)
	if len(head) != 2 || head[0] == "" {
		return Tag{}, errors.Wrapf(ErrMalformedTag, "missing type in %q", line)
	}

	tag := Tag{
		Type:   Unescape(head[0]),
		Value:  Unescape(head[1]),
		Fields: make(map[string]string, len(parts)-1),
	}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, ":", 2)
		if len(kv) != 2 {
			return Tag{}, errors.Wrapf(ErrMalformedTag, "field %q in %q", p, line)
		}
		tag.Fields[Unescape(kv[0])] = Unescape(kv[1])
	}
	return tag, nil
}

// Parse splits an enhanced document into its tags and the original text.
func Parse(text string) (Document, error) {
	header, body, ok := strings.Cut(text, "\n\n")
	if !ok {
		return Document{}, errors.Wrap(ErrMalformedTag, "no blank line after tags")
	}

	var doc Document
	for i, line := range strings.Split(header, "\n") {
		tag, err := ParseTag(line)
		if err != nil {
			return Document{}, errors.Wrapf(err, "line %d", i+1)
		}
		if i == 0 {
			if tag.Type != SourceTag {
				return Document{}, errors.Wrapf(ErrMalformedTag, "first tag is %s, not %s", tag.Type, SourceTag)
			}
			doc.Source = tag
			continue
		}
		doc.Entities = append(doc.Entities, tag)
	}
	doc.Body = body
	return doc, nil
}
