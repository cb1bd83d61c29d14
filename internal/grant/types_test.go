package grant

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"open":        StatusOpen,
		" Closed ":    StatusClosed,
		"upcoming":    StatusForthcoming,
		"Forthcoming": StatusForthcoming,
		"unknown":     StatusUnknown,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ParseStatus("archived")
	require.False(t, ok)
}

func TestParseScope(t *testing.T) {
	t.Parallel()

	got, err := ParseScope("all")
	require.NoError(t, err)
	require.Equal(t, []StatusFilter{FilterOpen, FilterClosed, FilterUpcoming}, got)

	got, err = ParseScope("")
	require.NoError(t, err)
	require.Equal(t, []StatusFilter{FilterOpen, FilterUpcoming}, got)

	got, err = ParseScope("closed")
	require.NoError(t, err)
	require.Equal(t, []StatusFilter{FilterClosed}, got)

	_, err = ParseScope("everything")
	require.Error(t, err)
}

func TestTextMapKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	var m TextMap
	m.Set("sweden", "Vinnova")
	m.Set("canada", "NRC IRAP")
	m.Set("sweden", "Vinnova updated")

	require.Equal(t, []string{"sweden", "canada"}, m.Keys())
	text, ok := m.Get("sweden")
	require.True(t, ok)
	require.Equal(t, "Vinnova updated", text)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `{"sweden":"Vinnova updated","canada":"NRC IRAP"}`, string(data))

	var back TextMap
	require.NoError(t, json.Unmarshal([]byte(`{"z":"1","a":"2"}`), &back))
	require.Equal(t, []string{"z", "a"}, back.Keys())

	require.Error(t, json.Unmarshal([]byte(`["x"]`), &back))
}

func TestPageSectionsOmitsEmptyBuckets(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(PageSections{Description: "d"})
	require.NoError(t, err)
	require.JSONEq(t, `{"description":"d"}`, string(data))
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	fetchErr := &FetchError{URL: "https://example.com", StatusCode: 503, Err: base}
	require.ErrorIs(t, fetchErr, base)
	require.Contains(t, fetchErr.Error(), "status 503")

	ingestErr := &IngestError{Stage: StageEmbed, GrantID: "eureka_x", Err: base}
	require.ErrorIs(t, ingestErr, base)
	require.Equal(t, "embed eureka_x: boom", ingestErr.Error())
}
