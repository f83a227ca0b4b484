package tool

import (
	"sort"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	mcpx "github.com/tanpawarit/chative-customer-assistant/pkg/mcp"
)

const (
	ToolCreateCustomer      = contractx.ActionCreateCustomer
	ToolGetAddressByZipcode = contractx.ActionGetAddressByZipcode
)

type definition struct {
	name   string
	desc   string
	params map[string]*schema.ParameterInfo
}

var definitions = []definition{
	{
		name: ToolCreateCustomer,
		desc: "Create a new customer in the external API. Requires name, email, and phone. Supports optional fields like address, UTM parameters, and more.",
		params: map[string]*schema.ParameterInfo{
			"name":           {Type: schema.String, Desc: "Customer full name (required)", Required: true},
			"email":          {Type: schema.String, Desc: "Customer email address (required)", Required: true},
			"phone":          {Type: schema.String, Desc: "Customer phone number (required)", Required: true},
			"retention":      {Type: schema.Boolean, Desc: "Retention flag"},
			"identification": {Type: schema.String, Desc: "Customer identification document (e.g., CPF)"},
			"zipcode":        {Type: schema.String, Desc: "ZIP/Postal code"},
			"state":          {Type: schema.String, Desc: "State/Province"},
			"street":         {Type: schema.String, Desc: "Street name"},
			"number":         {Type: schema.String, Desc: "Street number"},
			"neighborhood":   {Type: schema.String, Desc: "Neighborhood"},
			"city":           {Type: schema.String, Desc: "City"},
			"list_ids":       {Type: schema.Number, Desc: "List ID for categorization"},
			"create_deal":    {Type: schema.Boolean, Desc: "Whether to create a deal"},
			"tags":           {Type: schema.String, Desc: "Tags for the customer"},
			"url":            {Type: schema.String, Desc: "URL reference"},
			"utm_term":       {Type: schema.String, Desc: "UTM term parameter"},
			"utm_medium":     {Type: schema.String, Desc: "UTM medium parameter"},
			"utm_source":     {Type: schema.String, Desc: "UTM source parameter"},
			"utm_campaign":   {Type: schema.String, Desc: "UTM campaign parameter"},
			"company_id":     {Type: schema.String, Desc: "Company ID"},
			"utm_content":    {Type: schema.String, Desc: "UTM content parameter"},
		},
	},
	{
		name: ToolGetAddressByZipcode,
		desc: "Lookup Brazilian address by CEP (zipcode). Returns street, neighborhood, city, state information from ViaCEP API.",
		params: map[string]*schema.ParameterInfo{
			"zipcode": {Type: schema.String, Desc: "Brazilian CEP (zipcode) in format XXXXX-XXX or XXXXXXXX (8 digits)", Required: true},
		},
	},
}

// Descriptors returns the catalog as advertised by tools/list.
func Descriptors() []mcpx.ToolInfo {
	out := make([]mcpx.ToolInfo, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, mcpx.ToolInfo{
			Name:        d.name,
			Description: d.desc,
			InputSchema: objectSchema(d.params),
		})
	}
	return out
}

func objectSchema(params map[string]*schema.ParameterInfo) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for name, p := range params {
		properties[name] = propertySchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	out := map[string]any{
		"type":       string(schema.Object),
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func propertySchema(p *schema.ParameterInfo) map[string]any {
	if p.Type == schema.Object {
		s := objectSchema(p.SubParams)
		if p.Desc != "" {
			s["description"] = p.Desc
		}
		return s
	}

	s := map[string]any{"type": string(p.Type)}
	if p.Desc != "" {
		s["description"] = p.Desc
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Type == schema.Array && p.ElemInfo != nil {
		s["items"] = propertySchema(p.ElemInfo)
	}
	return s
}
