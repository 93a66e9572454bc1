package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProhibitedTerms(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Honda Wave 2019, chinh chu", nil},
		{"selling a gun", []string{"gun"}},
		{"cheap G.U.N here", []string{"gun"}},
		{"g u n", []string{"gun"}},
		{"premium w33d", []string{"weed"}},
		{"weeeeed delivered", []string{"weed"}},
		{"Súng hơi", []string{"sung"}},
		{"bán ma túy", []string{"ma tuy"}},
		{"skunk plushie", nil},
		{"methodology books", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ProhibitedTerms(tt.text))
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "helo world", CleanText("  HeLLo,   wörld. "))
	assert.Equal(t, "g u n", CleanText("g.u.n"))
	assert.Equal(t, "gun", CleanText("guuun"))
	assert.Equal(t, "amo", CleanText("@mm0"))
	assert.Equal(t, []string{"ammo"}, ProhibitedTerms("@mm0 for sale"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "ha noi", Fold("Hà Nội"))
	assert.Equal(t, "ha noi", Fold("  HA   NOI "))
	assert.Equal(t, "da nang", Fold("Đà Nẵng"))
	assert.Equal(t, "xe may", Fold("xe máy"))
}

func TestMatchEntry(t *testing.T) {
	e, ok := matchEntry(locationCatalog, "Sài Gòn")
	assert.True(t, ok)
	assert.Equal(t, "HO CHI MINH", e.Code)

	e, ok = matchEntry(categoryCatalog, "Mother & Baby")
	assert.True(t, ok)
	assert.Equal(t, "baby", e.Code)

	_, ok = matchEntry(locationCatalog, "Paris")
	assert.False(t, ok)
	_, ok = matchEntry(locationCatalog, "")
	assert.False(t, ok)
}

func TestInferFilters(t *testing.T) {
	tests := []struct {
		query                    string
		category, location, rest string
	}{
		{"xe máy hà nội", "motorbikes", "HA NOI", ""},
		{"iphone 13 sài gòn", "phones", "HO CHI MINH", "iphone 13"},
		{"laptops", "laptops", "", ""},
		{"đồng hồ cổ", "", "", "dong ho co"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			category, location, rest := inferFilters(tt.query)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.location, location)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestBuildFilterFallsBackToText(t *testing.T) {
	f := BuildFilter("đồng hồ   cổ", 2)
	assert.Equal(t, "đồng hồ cổ", f.Text)
	assert.Empty(t, f.Category)
	assert.Equal(t, MaxCarouselElements, f.Limit)
	assert.Equal(t, 2*MaxCarouselElements, f.Offset)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.500.000", 1500000},
		{"1,500,000đ", 1500000},
		{"1500k", 1500000},
		{"1.5tr", 1500000},
		{"2 triệu", 2000000},
		{"250000 VND", 250000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"abc", "", "tr"} {
		_, err := ParsePrice(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "0901234567", NormalizePhone("+84 901 234 567"))
	assert.Equal(t, "0901234567", NormalizePhone("090.123.4567"))
	assert.True(t, phonePattern.MatchString(NormalizePhone("(090) 123-4567")))
	assert.False(t, phonePattern.MatchString(NormalizePhone("12345")))
}
