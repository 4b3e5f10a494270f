package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{0, 9, "0"},
		{1, 9, "0.000000001"},
		{1_500_000_000, 9, "1.5"},
		{2_000_000_000, 9, "2"},
		{123456, 0, "123456"},
		{123456, 2, "1234.56"},
		{5, 1, "0.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(tt.amount, tt.decimals))
	}
}
