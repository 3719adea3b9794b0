// SPDX-License-Identifier: MPL-2.0

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateKeys(t *testing.T) {
	assert.Equal(t, []string{"a.b.c", "a__b__c", "b.c", "b__c", "c"}, CandidateKeys("a.b.c"))
	assert.Equal(t, []string{"orders.revenue", "orders__revenue", "revenue"}, CandidateKeys("orders.revenue"))
	assert.Equal(t, []string{"revenue"}, CandidateKeys("revenue"))
	assert.Empty(t, CandidateKeys(""))
}

func TestResolveField(t *testing.T) {
	tests := []struct {
		name string
		in   ResolveInput
		want string
	}{
		{
			name: "empty row keys",
			in:   ResolveInput{SelectedKey: "orders.revenue"},
			want: "",
		},
		{
			name: "exact match",
			in:   ResolveInput{SelectedKey: "orders.revenue", RowKeys: []string{"orders.count", "orders.revenue"}},
			want: "orders.revenue",
		},
		{
			name: "underscore normalized",
			in:   ResolveInput{SelectedKey: "orders.revenue", RowKeys: []string{"x", "orders__revenue"}},
			want: "orders__revenue",
		},
		{
			name: "last two segments",
			in:   ResolveInput{SelectedKey: "shop.orders.revenue", RowKeys: []string{"x", "orders.revenue"}},
			want: "orders.revenue",
		},
		{
			name: "last segment fallback",
			in:   ResolveInput{SelectedKey: "orders.revenue", RowKeys: []string{"revenue"}},
			want: "revenue",
		},
		{
			name: "metadata source mapping",
			in: ResolveInput{
				SelectedKey: "orders.revenue",
				RowKeys:     []string{"c1"},
				Metadata:    []ResultColumn{{Column: "c1", Source: "orders.revenue"}},
			},
			want: "c1",
		},
		{
			name: "metadata name mapping",
			in: ResolveInput{
				SelectedKey: "orders.revenue",
				RowKeys:     []string{"c0", "c1"},
				Metadata:    []ResultColumn{{Column: "c1", Name: "revenue"}},
			},
			want: "c1",
		},
		{
			name: "metadata column must be present",
			in: ResolveInput{
				SelectedKey: "orders.revenue",
				RowKeys:     []string{"c0"},
				Metadata:    []ResultColumn{{Column: "c1", Source: "orders.revenue"}},
			},
			want: "c0",
		},
		{
			name: "fallback key",
			in:   ResolveInput{SelectedKey: "missing", RowKeys: []string{"a", "orders.count"}, FallbackKey: "orders.count"},
			want: "orders.count",
		},
		{
			name: "exclude key falls through to next tier",
			in:   ResolveInput{SelectedKey: "orders.revenue", RowKeys: []string{"orders.revenue", "other"}, ExcludeKey: "orders.revenue"},
			want: "other",
		},
		{
			name: "exclude key skipped by later candidate",
			in:   ResolveInput{SelectedKey: "orders.revenue", RowKeys: []string{"orders.revenue", "revenue"}, ExcludeKey: "orders.revenue"},
			want: "revenue",
		},
		{
			name: "only excluded key left",
			in:   ResolveInput{SelectedKey: "missing", RowKeys: []string{"a"}, ExcludeKey: "a"},
			want: "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveField(tt.in))
		})
	}
}

func TestResolveFieldDeterministic(t *testing.T) {
	in := ResolveInput{
		SelectedKey: "orders.status",
		RowKeys:     []string{"c2", "c1", "orders__count"},
		Metadata:    []ResultColumn{{Column: "c1", Name: "status"}, {Column: "c2", Source: "orders.status"}},
	}
	first := ResolveField(in)
	assert.Equal(t, "c2", first)
	for range 10 {
		assert.Equal(t, first, ResolveField(in))
	}
}
