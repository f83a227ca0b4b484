package tool

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/tidwall/gjson"

	crmx "github.com/tanpawarit/chative-customer-assistant/pkg/crm"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CustomerData is a CRM customer record. Only Name, Email and Phone are
// mandatory.
type CustomerData struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone"`
	Retention      *bool    `json:"retention,omitempty"`
	Identification string   `json:"identification,omitempty"`
	Zipcode        string   `json:"zipcode,omitempty"`
	State          string   `json:"state,omitempty"`
	Street         string   `json:"street,omitempty"`
	Number         string   `json:"number,omitempty"`
	Neighborhood   string   `json:"neighborhood,omitempty"`
	City           string   `json:"city,omitempty"`
	ListIDs        *float64 `json:"list_ids,omitempty"`
	CreateDeal     *bool    `json:"create_deal,omitempty"`
	Tags           string   `json:"tags,omitempty"`
	URL            string   `json:"url,omitempty"`
	UTMTerm        string   `json:"utm_term,omitempty"`
	UTMMedium      string   `json:"utm_medium,omitempty"`
	UTMSource      string   `json:"utm_source,omitempty"`
	UTMCampaign    string   `json:"utm_campaign,omitempty"`
	CompanyID      string   `json:"company_id,omitempty"`
	UTMContent     string   `json:"utm_content,omitempty"`
}

// Validate returns every violated rule, in field order. Values are checked
// as they will be sent to the CRM.
func (c CustomerData) Validate() []string {
	var errs []string
	if c.Name == "" {
		errs = append(errs, "name is required")
	}
	switch {
	case c.Email == "":
		errs = append(errs, "email is required")
	case !emailPattern.MatchString(c.Email):
		errs = append(errs, "email format is invalid")
	}
	if c.Phone == "" {
		errs = append(errs, "phone is required")
	}
	return errs
}

// CustomerCreator is the CRM side of createCustomer.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, payload any) (crmx.Created, error)
}

// customerFromArgs reads the mandatory fields leniently: models sometimes send
// a phone number as a JSON number.
func customerFromArgs(args json.RawMessage) CustomerData {
	var c CustomerData
	if err := json.Unmarshal(args, &c); err == nil {
		return c
	}
	return CustomerData{
		Name:  scalarString(args, "name"),
		Email: scalarString(args, "email"),
		Phone: scalarString(args, "phone"),
	}
}

func scalarString(args json.RawMessage, key string) string {
	v := gjson.GetBytes(args, key)
	switch v.Type {
	case gjson.String, gjson.Number:
		return v.String()
	default:
		return ""
	}
}

func (r *Registry) createCustomer(ctx context.Context, args json.RawMessage) Outcome {
	if len(args) == 0 || !gjson.ValidBytes(args) || !gjson.ParseBytes(args).IsObject() {
		args = json.RawMessage(`{}`)
	}

	customer := customerFromArgs(args)
	if errs := customer.Validate(); len(errs) > 0 {
		r.logger.Debug().Strs("errors", errs).Msg("createCustomer validation failed")
		return Outcome{Status: StatusError, Error: "Validation failed", Errors: errs}
	}

	if r.customers == nil {
		return Outcome{Status: StatusError, Error: "customer API is not configured"}
	}

	// Forward the arguments as received so fields outside CustomerData reach
	// the CRM untouched.
	created, err := r.customers.CreateCustomer(ctx, args)
	if err != nil {
		var apiErr *crmx.APIError
		if errors.As(err, &apiErr) {
			r.logger.Warn().Int("status", apiErr.StatusCode).Str("body", apiErr.Error()).Msg("crm rejected customer")
			return Outcome{Status: StatusError, Error: apiErr.Error(), StatusCode: apiErr.StatusCode}
		}
		r.logger.Error().Err(err).Msg("crm request failed")
		return Outcome{Status: StatusError, Error: err.Error()}
	}

	r.logger.Info().Str("customer_id", created.ID).Msg("customer created")
	return Outcome{Status: StatusSuccess, CustomerID: created.ID, Data: created.Data}
}
