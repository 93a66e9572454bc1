package services

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// CatalogEntry is one selectable option. Code is what gets persisted.
type CatalogEntry struct {
	Code    string
	Title   string
	Aliases []string
}

var categoryCatalog = []CatalogEntry{
	{Code: "motorbikes", Title: "Motorbikes", Aliases: []string{"xe may", "motorbike", "xe tay ga", "honda", "yamaha"}},
	{Code: "cars", Title: "Cars", Aliases: []string{"o to", "xe hoi", "car", "toyota"}},
	{Code: "bicycles", Title: "Bicycles", Aliases: []string{"xe dap", "bicycle", "bike"}},
	{Code: "phones", Title: "Phones", Aliases: []string{"dien thoai", "phone", "iphone", "samsung"}},
	{Code: "laptops", Title: "Laptops", Aliases: []string{"may tinh", "laptop", "macbook"}},
	{Code: "electronics", Title: "Electronics", Aliases: []string{"dien tu", "tivi", "tv", "loa"}},
	{Code: "appliances", Title: "Appliances", Aliases: []string{"dien may", "tu lanh", "may giat", "dieu hoa"}},
	{Code: "furniture", Title: "Furniture", Aliases: []string{"noi that", "ban", "ghe", "sofa", "giuong"}},
	{Code: "fashion", Title: "Fashion", Aliases: []string{"thoi trang", "quan ao", "giay", "tui"}},
	{Code: "baby", Title: "Mother & Baby", Aliases: []string{"me va be", "do so sinh", "xe day"}},
	{Code: "pets", Title: "Pets", Aliases: []string{"thu cung", "cho", "meo"}},
	{Code: "books", Title: "Books", Aliases: []string{"sach", "book", "truyen"}},
	{Code: "sports", Title: "Sports", Aliases: []string{"the thao", "gym", "bong da"}},
	{Code: "real_estate", Title: "Real estate", Aliases: []string{"nha dat", "can ho", "phong tro", "chung cu"}},
	{Code: "jobs", Title: "Jobs", Aliases: []string{"viec lam", "tuyen dung", "job"}},
	{Code: "services", Title: "Services", Aliases: []string{"dich vu", "sua chua", "service"}},
	{Code: "other", Title: "Other", Aliases: []string{"khac"}},
}

var locationCatalog = []CatalogEntry{
	{Code: "HA NOI", Title: "Hà Nội", Aliases: []string{"hanoi", "hn"}},
	{Code: "HO CHI MINH", Title: "Hồ Chí Minh", Aliases: []string{"hcm", "tp hcm", "sai gon", "saigon", "sg"}},
	{Code: "DA NANG", Title: "Đà Nẵng", Aliases: []string{"danang", "dn"}},
	{Code: "HAI PHONG", Title: "Hải Phòng", Aliases: []string{"haiphong", "hp"}},
	{Code: "CAN THO", Title: "Cần Thơ", Aliases: []string{"cantho"}},
	{Code: "HUE", Title: "Huế", Aliases: []string{"thua thien hue"}},
	{Code: "NHA TRANG", Title: "Nha Trang", Aliases: []string{"khanh hoa"}},
	{Code: "DA LAT", Title: "Đà Lạt", Aliases: []string{"dalat", "lam dong"}},
	{Code: "VUNG TAU", Title: "Vũng Tàu", Aliases: []string{"vungtau", "ba ria"}},
	{Code: "BIEN HOA", Title: "Biên Hòa", Aliases: []string{"dong nai"}},
	{Code: "BINH DUONG", Title: "Bình Dương", Aliases: []string{"thu dau mot"}},
	{Code: "QUANG NINH", Title: "Quảng Ninh", Aliases: []string{"ha long"}},
	{Code: "NGHE AN", Title: "Nghệ An", Aliases: []string{"vinh"}},
	{Code: "THANH HOA", Title: "Thanh Hóa"},
	{Code: "BAC NINH", Title: "Bắc Ninh"},
}

// paymentPlans are the membership upgrades offered by the payment flow.
var paymentPlans = []struct {
	CatalogEntry
	Months int
	Amount int64
}{
	{CatalogEntry{Code: "PLAN_1M", Title: "1 month - 99.000đ", Aliases: []string{"1", "1 thang", "1 month"}}, 1, 99000},
	{CatalogEntry{Code: "PLAN_3M", Title: "3 months - 269.000đ", Aliases: []string{"3", "3 thang", "3 months"}}, 3, 269000},
	{CatalogEntry{Code: "PLAN_12M", Title: "12 months - 899.000đ", Aliases: []string{"12", "12 thang", "1 nam", "12 months"}}, 12, 899000},
}

func planEntries() []CatalogEntry {
	out := make([]CatalogEntry, len(paymentPlans))
	for i, p := range paymentPlans {
		out[i] = p.CatalogEntry
	}
	return out
}

// Option set names used in OPTS postbacks.
const (
	OptionCategories = "categories"
	OptionLocations  = "locations"
	OptionPlans      = "plans"
)

var optionSets = map[string][]CatalogEntry{
	OptionCategories: categoryCatalog,
	OptionLocations:  locationCatalog,
	OptionPlans:      planEntries(),
}

func optionsFor(entries []CatalogEntry) []models.QuickReply {
	out := make([]models.QuickReply, len(entries))
	for i, e := range entries {
		out[i] = models.QuickReply{Title: e.Title, Payload: e.Code}
	}
	return out
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s, strips Vietnamese diacritics and collapses whitespace so
// that "Hà Nội", "ha  noi" and "HA NOI" compare equal.
func Fold(s string) string {
	s = strings.NewReplacer("đ", "d", "Đ", "d").Replace(s)
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// matchEntry resolves input against codes, titles and aliases.
func matchEntry(entries []CatalogEntry, input string) (CatalogEntry, bool) {
	in := Fold(input)
	if in == "" {
		return CatalogEntry{}, false
	}
	for _, e := range entries {
		if in == Fold(e.Code) || in == Fold(e.Title) || slices.Contains(e.Aliases, in) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// containsWord reports whether phrase occurs in text on word boundaries.
// Both arguments must already be folded.
func containsWord(text, phrase string) bool {
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// inferFilters scans a folded query for category and location keywords and
// returns what is left as free text.
func inferFilters(query string) (category, location, rest string) {
	text := Fold(query)
	strip := func(phrase string) {
		text = strings.TrimSpace(strings.Replace(" "+text+" ", " "+phrase+" ", " ", 1))
	}

	for _, e := range locationCatalog {
		for _, kw := range append([]string{Fold(e.Code)}, e.Aliases...) {
			if containsWord(text, kw) {
				location = e.Code
				strip(kw)
				break
			}
		}
		if location != "" {
			break
		}
	}
	for _, e := range categoryCatalog {
		for _, kw := range append([]string{Fold(e.Code), Fold(e.Title)}, e.Aliases...) {
			if containsWord(text, kw) {
				category = e.Code
				// Brand names stay in the free text so they still narrow results.
				if kw == Fold(e.Title) || kw == Fold(e.Code) || strings.Contains(kw, " ") {
					strip(kw)
				}
				break
			}
		}
		if category != "" {
			break
		}
	}
	return category, location, strings.Join(strings.Fields(text), " ")
}
