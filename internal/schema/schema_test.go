package schema

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
)

func TestNew_CanonicalFields(t *testing.T) {
	s := New()

	names := make([]string, 0, 4)
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}

	assert.Equal(t, []string{FieldEventID, FieldBody, FieldDate, FieldSender}, names)
	assert.Equal(t, FieldEventID, s.PrimaryKey())
	assert.Equal(t, []string{FieldBody}, s.DefaultSearchFields())

	id, ok := s.Field(FieldEventID)
	require.True(t, ok)
	assert.Equal(t, KindKeyword, id.Kind)
	assert.True(t, id.Stored)

	date, ok := s.Field(FieldDate)
	require.True(t, ok)
	assert.Equal(t, KindDate, date.Kind)
	assert.True(t, date.Fast)
	assert.False(t, s.HasField("color"))
}

func TestDefaultSearchFields_ReturnsCopy(t *testing.T) {
	s := New()

	fields := s.DefaultSearchFields()
	fields[0] = "sender"

	assert.Equal(t, []string{FieldBody}, s.DefaultSearchFields())
}

func TestMakeDoc_CarriesEveryField(t *testing.T) {
	s := New()

	doc := s.MakeDoc("$event_id_1", "There is a meeting next week", 123456701, "@user_id_1")

	assert.Equal(t, "$event_id_1", doc.EventID)
	assert.Equal(t, "There is a meeting next week", doc.Body)
	assert.Equal(t, "@user_id_1", doc.Sender)
	assert.Equal(t, time.Unix(123456, 0).UTC(), doc.Date)

	fields := doc.Fields()
	assert.Len(t, fields, 4)
	assert.Equal(t, "$event_id_1", fields[FieldEventID])
}

func TestDateFromMillis(t *testing.T) {
	tests := []struct {
		name string
		ms   uint64
		want time.Time
	}{
		{"epoch", 0, time.Unix(0, 0).UTC()},
		{"truncates to seconds", 1_700_000_000_999, time.Unix(1_700_000_000, 0).UTC()},
		{"largest representable", maxRepresentableMillis, time.UnixMilli(int64(maxRepresentableMillis)).UTC().Truncate(time.Second)},
		{"overflow clamps to epoch", maxRepresentableMillis + 1, time.Unix(0, 0).UTC()},
		{"max uint64 clamps to epoch", math.MaxUint64, time.Unix(0, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(DateFromMillis(tt.ms)), "got %v", DateFromMillis(tt.ms))
		})
	}
}

func TestIndexMapping_ValidatesAndRoundTrips(t *testing.T) {
	// Given: the canonical mapping
	im, err := New().IndexMapping()
	require.NoError(t, err)
	require.NoError(t, im.Validate())

	// When: deriving a schema back from it
	derived, err := FromMapping(im)

	// Then: all fields survive with their kinds
	require.NoError(t, err)
	assert.Equal(t, New().Fields(), derived.Fields())
}

func TestFromMapping_MissingBodyFails(t *testing.T) {
	// Given: a mapping without the body field
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldEventID, bleve.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt(FieldDate, bleve.NewDateTimeFieldMapping())
	doc.AddFieldMappingsAt(FieldSender, bleve.NewTextFieldMapping())
	im.DefaultMapping = doc

	// When: deriving the schema
	_, err := FromMapping(im)

	// Then: a schema error names the field
	require.Error(t, err)
	assert.True(t, errors.Is(err, rserrors.ErrSchema))
	assert.Contains(t, err.Error(), "body")
}

func TestFromMapping_DynamicMappingFails(t *testing.T) {
	_, err := FromMapping(bleve.NewIndexMapping())

	require.Error(t, err)
	assert.Equal(t, rserrors.ErrCodeSchemaMismatch, rserrors.GetCode(err))
}

func TestFromMapping_NilMappingFails(t *testing.T) {
	_, err := FromMapping(nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, rserrors.ErrSchema))
}
