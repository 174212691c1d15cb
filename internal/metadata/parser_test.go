package metadata

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Fields
	}{
		{
			name: "empty text",
			text: "",
			want: Fields{},
		},
		{
			name: "invoice line",
			text: "Invoice Consignee: ABC Trading LLC  HS: 8501 Value 1,250.00 USD",
			want: Fields{
				"hs_code":   "8501",
				"currency":  "USD",
				"value":     "1250.00",
				"consignee": "ABC Trading LLC",
			},
		},
		{
			name: "bare six digit tariff code",
			text: "Tariff 850110 goods",
			want: Fields{"hs_code": "850110", "value": "850110"},
		},
		{
			name: "currency symbol and thousands separator",
			text: "Total $ 3,400.50 due",
			want: Fields{"value": "3400.50"},
		},
		{
			name: "currency is case sensitive",
			text: "paid in usd",
			want: Fields{},
		},
		{
			name: "first container wins",
			text: "Containers MSCU1234567 and TGHU7654321",
			want: Fields{"container_number": "MSCU1234567", "value": "1234567"},
		},
		{
			name: "air waybill digits",
			text: "Air waybill 123 45678901 issued",
			want: Fields{"bol_awb_number": "123 45678901", "value": "123"},
		},
		{
			name: "awb label keeps whole match",
			text: "ref awb-XYZ123",
			want: Fields{"bol_awb_number": "awb-XYZ123", "value": "123"},
		},
		{
			name: "shipper without column gap",
			text: "Shipper: Gulf Traders Co.",
			want: Fields{"shipper": "Gulf Traders Co."},
		},
		{
			name: "consignee uses raw column gaps",
			text: "Consignee:   Emirates Steel   Port: Jebel Ali",
			want: Fields{"consignee": "Emirates Steel"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text))
		})
	}
}

func TestParseHSLabelVariants(t *testing.T) {
	assert.Equal(t, "85044000", Parse("hs:85044000 electric")["hs_code"])
	assert.Equal(t, "850440", Parse("hs code 850440")["hs_code"])
	_, ok := Parse("HS: 123")["hs_code"]
	assert.False(t, ok)
}

func TestParseWhitespaceCollapsedForPatterns(t *testing.T) {
	got := Parse("Invoice\n\nHS:\t\t8471\nAmount\n  £ 12,000")
	assert.Equal(t, "8471", got["hs_code"])
	assert.Equal(t, "12000", got["value"])
}

func TestParserCustomRules(t *testing.T) {
	p := NewParser([]Rule{
		{Field: "port_of_discharge", Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)POD[:\s]*([A-Z ]+?)\s{2,}`)}, Group: 1, Raw: true},
	})
	assert.Equal(t, Fields{"port_of_discharge": "JEBEL ALI"}, p.Parse("POD: JEBEL ALI   ETA 12"))
}

func TestParseIsDeterministic(t *testing.T) {
	text := "Shipper: Alpha  Consignee: Beta  HS 850110 MSCU1234567 EUR 9,999"
	first := Parse(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Parse(text))
	}
}
