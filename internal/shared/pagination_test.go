package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	cases := []struct {
		page, perPage, total int
		want                 Pagination
		offset               int
		next                 bool
	}{
		{0, 0, 0, Pagination{Page: 1, PerPage: 20, Total: 0, TotalPages: 0}, 0, false},
		{2, 2, 5, Pagination{Page: 2, PerPage: 2, Total: 5, TotalPages: 3}, 2, true},
		{3, 2, 5, Pagination{Page: 3, PerPage: 2, Total: 5, TotalPages: 3}, 4, false},
		{1, 500, 150, Pagination{Page: 1, PerPage: 100, Total: 150, TotalPages: 2}, 0, true},
		{-4, 10, 10, Pagination{Page: 1, PerPage: 10, Total: 10, TotalPages: 1}, 0, false},
	}
	for _, tc := range cases {
		got := NewPagination(tc.page, tc.perPage, tc.total)
		require.Equal(t, tc.want, got)
		require.Equal(t, tc.offset, got.Offset())
		require.Equal(t, tc.next, got.HasNext())
	}
}
