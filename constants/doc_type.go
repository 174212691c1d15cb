package constants

// DocType is the closed set of trade document kinds.
type DocType string

const (
	DocTypeInvoice       DocType = "invoice"
	DocTypePackingList   DocType = "packing_list"
	DocTypeBolAwb        DocType = "bol_awb"
	DocTypeDeliveryOrder DocType = "delivery_order"
)

// AllDocTypes is the fixed order used when reporting found/missing types.
var AllDocTypes = []DocType{
	DocTypeInvoice,
	DocTypePackingList,
	DocTypeBolAwb,
	DocTypeDeliveryOrder,
}

// requiredFiles is the single source of truth for the file fields each
// document type must carry, used at upload time and by validation.
var requiredFiles = map[DocType][]string{
	DocTypeInvoice:       {"hs_code", "goods_description", "unit_of_measure", "quantity", "weight", "value", "currency"},
	DocTypePackingList:   {"hs_code", "goods_description", "unit_of_measure", "quantity", "gross_weight", "net_weight", "number_of_packages"},
	DocTypeBolAwb:        {"shipper", "consignee", "hs_code", "weight", "number_of_packages", "bol_awb_number"},
	DocTypeDeliveryOrder: {"consignee", "container_number", "port_of_discharge", "currency", "value", "hs_code"},
}

// RequiredFiles returns a copy of the ordered required field names for t.
func RequiredFiles(t DocType) []string {
	fields := requiredFiles[t]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

func (t DocType) Valid() bool {
	_, ok := requiredFiles[t]
	return ok
}

func (t DocType) String() string { return string(t) }

// ParseDocType accepts the stored string form of a document type.
func ParseDocType(s string) (DocType, bool) {
	t := DocType(s)
	return t, t.Valid()
}
