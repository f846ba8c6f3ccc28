// Package schema defines the document layout of a room message index and
// translates chat events into engine documents.
package schema

import (
	"math"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
)

// Field names of the room message schema.
const (
	FieldEventID = "event_id"
	FieldBody    = "body"
	FieldDate    = "date"
	FieldSender  = "sender"
)

// MessageAnalyzerName is the analyzer used for body and sender. It splits on
// unicode word boundaries and lowercases, without removing stop words.
const MessageAnalyzerName = "room_message"

// maxRepresentableMillis is the largest timestamp whose nanosecond value fits
// in an int64, the engine's date representation.
const maxRepresentableMillis = uint64(math.MaxInt64 / int64(time.Millisecond))

// FieldKind describes how a field is indexed.
type FieldKind string

const (
	// KindKeyword is indexed as a single exact-match term.
	KindKeyword FieldKind = "keyword"
	// KindText is tokenized and indexed with positions.
	KindText FieldKind = "text"
	// KindDate is indexed as a date with second precision.
	KindDate FieldKind = "datetime"
)

// Field describes one schema field.
type Field struct {
	Name   string
	Kind   FieldKind
	Stored bool
	Fast   bool
}

var canonicalFields = []Field{
	{Name: FieldEventID, Kind: KindKeyword, Stored: true},
	{Name: FieldBody, Kind: KindText},
	{Name: FieldDate, Kind: KindDate, Fast: true},
	{Name: FieldSender, Kind: KindText},
}

// RoomMessageSchema is immutable after construction.
type RoomMessageSchema struct {
	fields              []Field
	byName              map[string]Field
	defaultSearchFields []string
}

// MessageDocument is the engine-facing form of an event.
type MessageDocument struct {
	EventID string
	Body    string
	Date    time.Time
	Sender  string
}

// Fields returns the document as a field map for the engine.
func (d *MessageDocument) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldEventID: d.EventID,
		FieldBody:    d.Body,
		FieldDate:    d.Date,
		FieldSender:  d.Sender,
	}
}

// New returns the canonical room message schema.
func New() *RoomMessageSchema {
	return newSchema(canonicalFields)
}

func newSchema(fields []Field) *RoomMessageSchema {
	s := &RoomMessageSchema{
		fields:              append([]Field(nil), fields...),
		byName:              make(map[string]Field, len(fields)),
		defaultSearchFields: []string{FieldBody},
	}
	for _, f := range fields {
		s.byName[f.Name] = f
	}
	return s
}

// PrimaryKey returns the field whose stored value identifies the source event.
func (s *RoomMessageSchema) PrimaryKey() string {
	return FieldEventID
}

// DefaultSearchFields returns the fields searched when a query names none.
func (s *RoomMessageSchema) DefaultSearchFields() []string {
	return append([]string(nil), s.defaultSearchFields...)
}

// Fields returns the schema fields in declaration order.
func (s *RoomMessageSchema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field looks up a field by name.
func (s *RoomMessageSchema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// HasField reports whether name is a schema field.
func (s *RoomMessageSchema) HasField(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// MakeDoc builds the document for one event. It never fails: a timestamp
// outside the engine's date range degrades to the Unix epoch.
func (s *RoomMessageSchema) MakeDoc(eventID, body string, timestamp uint64, sender string) *MessageDocument {
	return &MessageDocument{
		EventID: eventID,
		Body:    body,
		Date:    DateFromMillis(timestamp),
		Sender:  sender,
	}
}

// DateFromMillis converts milliseconds since the epoch to a UTC time truncated
// to whole seconds. Values that overflow clamp to the epoch.
func DateFromMillis(ms uint64) time.Time {
	if ms > maxRepresentableMillis {
		return time.Unix(0, 0).UTC()
	}
	return time.UnixMilli(int64(ms)).UTC().Truncate(time.Second)
}

// IndexMapping builds the Bleve mapping for a new index.
func (s *RoomMessageSchema) IndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(MessageAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeIndexCreate, err, "register message analyzer")
	}

	im.DefaultAnalyzer = MessageAnalyzerName
	im.DefaultField = FieldBody
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range s.fields {
		doc.AddFieldMappingsAt(f.Name, fieldMapping(f))
	}
	im.DefaultMapping = doc

	return im, nil
}

func fieldMapping(f Field) *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch f.Kind {
	case KindKeyword:
		fm = bleve.NewKeywordFieldMapping()
		fm.IncludeTermVectors = false
	case KindDate:
		fm = bleve.NewDateTimeFieldMapping()
	default:
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = MessageAnalyzerName
		fm.IncludeTermVectors = true
	}
	fm.Store = f.Stored
	fm.DocValues = f.Fast
	fm.IncludeInAll = false
	return fm
}

// FromMapping derives the schema from the mapping stored with an existing
// index. Every canonical field must be mapped, otherwise the index was built
// with an incompatible schema and ErrCodeSchemaMismatch is returned.
func FromMapping(m mapping.IndexMapping) (*RoomMessageSchema, error) {
	impl, ok := m.(*mapping.IndexMappingImpl)
	if !ok || impl == nil {
		return nil, rserrors.New(rserrors.ErrCodeSchemaMismatch, "index mapping has an unsupported type", nil)
	}

	fields := make([]Field, 0, len(canonicalFields))
	for _, want := range canonicalFields {
		fm := lookupFieldMapping(impl.DefaultMapping, want.Name)
		if fm == nil {
			return nil, rserrors.SchemaMismatch(want.Name)
		}
		fields = append(fields, Field{
			Name:   want.Name,
			Kind:   kindOf(fm),
			Stored: fm.Store,
			Fast:   fm.DocValues,
		})
	}

	return newSchema(fields), nil
}

func lookupFieldMapping(dm *mapping.DocumentMapping, name string) *mapping.FieldMapping {
	if dm == nil || dm.Properties == nil {
		return nil
	}
	sub, ok := dm.Properties[name]
	if !ok || sub == nil || len(sub.Fields) == 0 {
		return nil
	}
	return sub.Fields[0]
}

func kindOf(fm *mapping.FieldMapping) FieldKind {
	switch fm.Type {
	case "datetime":
		return KindDate
	case "text":
		if fm.Analyzer == keyword.Name {
			return KindKeyword
		}
		return KindText
	default:
		return FieldKind(fm.Type)
	}
}
