package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Metadata is the typed set of document fields. A nil field is absent.
type Metadata struct {
	HSCode           *string `json:"hs_code,omitempty"`
	GoodsDescription *string `json:"goods_description,omitempty"`
	UnitOfMeasure    *string `json:"unit_of_measure,omitempty"`
	Quantity         *string `json:"quantity,omitempty"`
	Weight           *string `json:"weight,omitempty"`
	GrossWeight      *string `json:"gross_weight,omitempty"`
	NetWeight        *string `json:"net_weight,omitempty"`
	NumberOfPackages *string `json:"number_of_packages,omitempty"`
	Value            *string `json:"value,omitempty"`
	Currency         *string `json:"currency,omitempty"`
	ContainerNumber  *string `json:"container_number,omitempty"`
	Consignee        *string `json:"consignee,omitempty"`
	Shipper          *string `json:"shipper,omitempty"`
	BolAwbNumber     *string `json:"bol_awb_number,omitempty"`
	PortOfDischarge  *string `json:"port_of_discharge,omitempty"`
	ValueInAED       *string `json:"value_in_aed,omitempty"`
	Duties           *string `json:"duties,omitempty"`
	DutyPercentage   *string `json:"duty_percentage,omitempty"`
}

var metadataFields = map[string]func(m *Metadata) **string{
	"hs_code":            func(m *Metadata) **string { return &m.HSCode },
	"goods_description":  func(m *Metadata) **string { return &m.GoodsDescription },
	"unit_of_measure":    func(m *Metadata) **string { return &m.UnitOfMeasure },
	"quantity":           func(m *Metadata) **string { return &m.Quantity },
	"weight":             func(m *Metadata) **string { return &m.Weight },
	"gross_weight":       func(m *Metadata) **string { return &m.GrossWeight },
	"net_weight":         func(m *Metadata) **string { return &m.NetWeight },
	"number_of_packages": func(m *Metadata) **string { return &m.NumberOfPackages },
	"value":              func(m *Metadata) **string { return &m.Value },
	"currency":           func(m *Metadata) **string { return &m.Currency },
	"container_number":   func(m *Metadata) **string { return &m.ContainerNumber },
	"consignee":          func(m *Metadata) **string { return &m.Consignee },
	"shipper":            func(m *Metadata) **string { return &m.Shipper },
	"bol_awb_number":     func(m *Metadata) **string { return &m.BolAwbNumber },
	"port_of_discharge":  func(m *Metadata) **string { return &m.PortOfDischarge },
	"value_in_aed":       func(m *Metadata) **string { return &m.ValueInAED },
	"duties":             func(m *Metadata) **string { return &m.Duties },
	"duty_percentage":    func(m *Metadata) **string { return &m.DutyPercentage },
}

// MetadataKeys lists every recognised metadata key, sorted.
func MetadataKeys() []string {
	keys := make([]string, 0, len(metadataFields))
	for k := range metadataFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsMetadataKey reports whether key names a Metadata field.
func IsMetadataKey(key string) bool {
	_, ok := metadataFields[key]
	return ok
}

// Get returns the raw value of key and whether it is set.
func (m *Metadata) Get(key string) (string, bool) {
	field, ok := metadataFields[key]
	if !ok || m == nil {
		return "", false
	}
	p := *field(m)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Trimmed returns the trimmed value of key, "" when absent.
func (m *Metadata) Trimmed(key string) string {
	v, _ := m.Get(key)
	return strings.TrimSpace(v)
}

// IsBlank is true for absent keys and values that trim to "".
func (m *Metadata) IsBlank(key string) bool {
	return m.Trimmed(key) == ""
}

// Set assigns key; it returns false for unrecognised keys.
func (m *Metadata) Set(key, value string) bool {
	field, ok := metadataFields[key]
	if !ok {
		return false
	}
	v := value
	*field(m) = &v
	return true
}

// IsEmpty reports whether no field is set at all.
func (m *Metadata) IsEmpty() bool {
	if m == nil {
		return true
	}
	for _, field := range metadataFields {
		if *field(m) != nil {
			return false
		}
	}
	return true
}

// Map returns the set fields as a plain map.
func (m *Metadata) Map() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for k, field := range metadataFields {
		if p := *field(m); p != nil {
			out[k] = *p
		}
	}
	return out
}

// UnmarshalJSON accepts string, number and null values for known keys.
// Unknown keys are ignored here; the upload boundary rejects them.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	for k, v := range raw {
		if !IsMetadataKey(k) {
			continue
		}
		switch val := v.(type) {
		case nil:
		case string:
			m.Set(k, val)
		case json.Number:
			m.Set(k, val.String())
		default:
			return fmt.Errorf("metadata: field %q must be a string or number", k)
		}
	}
	return nil
}
