package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringSetDedupesAndSorts(t *testing.T) {
	s := CreateStringSet("b", "a", "b")
	s.Add("c")

	require.True(t, s.Has("a"))
	require.False(t, s.Has("d"))
	require.Equal(t, []string{"a", "b", "c"}, s.Sorted())
}

func TestEmptyStringSetSortsToEmptySlice(t *testing.T) {
	require.Equal(t, []string{}, StringSet{}.Sorted())
}

func TestStringSetIndex(t *testing.T) {
	idx := StringSetIndex{}
	idx.Add("red", "u2")
	idx.Add("red", "u1")
	idx.Add("red", "u2")
	idx.Add("blue", "u3")

	require.Equal(t, map[string][]string{
		"red":  {"u1", "u2"},
		"blue": {"u3"},
	}, idx.Lists())
	require.Equal(t, map[string]int{"red": 2, "blue": 1}, idx.Counts())
}
