package siafe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordSetDedup(t *testing.T) {
	rs := NewRecordSet([]string{"a", "b"})

	require.True(t, rs.Add(Record{"a": "1", "b": "2"}))
	require.True(t, rs.Add(Record{"a": "1", "b": "3"}))
	require.False(t, rs.Add(Record{"a": "1", "b": "2"}))
	require.Equal(t, 2, rs.Len())

	// insertion order reflects the order records first appeared
	require.Equal(t, []Record{
		{"a": "1", "b": "2"},
		{"a": "1", "b": "3"},
	}, rs.Records())
}

func TestRecordSetEqualityIsFullRow(t *testing.T) {
	// no single column is assumed to identify a record
	rs := NewRecordSet([]string{"id", "value"})
	require.True(t, rs.Add(Record{"id": "1", "value": "x"}))
	require.True(t, rs.Add(Record{"id": "1", "value": "y"}))
	require.Equal(t, 2, rs.Len())
}

func TestRecordSetIgnoresUnknownColumns(t *testing.T) {
	// only the captured header set participates in identity
	rs := NewRecordSet([]string{"a"})
	require.True(t, rs.Add(Record{"a": "1", "stray": "x"}))
	require.False(t, rs.Add(Record{"a": "1", "stray": "y"}))
}
