package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataUnmarshalAcceptsNumbers(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"value": 1250.50, "currency": "USD", "quantity": 12, "shipper": null, "colour": "red"}`), &m))

	v, ok := m.Get("value")
	require.True(t, ok)
	assert.Equal(t, "1250.50", v)
	assert.Equal(t, "12", m.Trimmed("quantity"))
	assert.Equal(t, "USD", m.Trimmed("currency"))

	_, ok = m.Get("shipper")
	assert.False(t, ok, "null leaves the field absent")
	_, ok = m.Get("colour")
	assert.False(t, ok)
}

func TestMetadataUnmarshalRejectsNested(t *testing.T) {
	var m Metadata
	err := json.Unmarshal([]byte(`{"value": {"amount": 1}}`), &m)
	require.Error(t, err)
}

func TestMetadataEmptyAndBlank(t *testing.T) {
	var m Metadata
	assert.True(t, m.IsEmpty())

	require.True(t, m.Set("consignee", "   "))
	assert.False(t, m.IsEmpty(), "a blank value is still a value")
	assert.True(t, m.IsBlank("consignee"))
	assert.False(t, m.Set("not_a_field", "x"))

	m.Set("hs_code", " 8501 ")
	assert.Equal(t, "8501", m.Trimmed("hs_code"))
	assert.Equal(t, map[string]string{"consignee": "   ", "hs_code": " 8501 "}, m.Map())
}

func TestMetadataMarshalOmitsAbsent(t *testing.T) {
	var m Metadata
	m.Set("currency", "AED")
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"currency":"AED"}`, string(b))
}
