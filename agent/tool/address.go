package tool

import (
	"context"
	"encoding/json"
	"strings"

	viacepx "github.com/tanpawarit/chative-customer-assistant/pkg/viacep"
)

type AddressResolver interface {
	Lookup(ctx context.Context, zipcode string) (viacepx.Address, error)
}

func (r *Registry) getAddressByZipcode(ctx context.Context, args json.RawMessage) Outcome {
	zipcode := strings.TrimSpace(scalarString(args, "zipcode"))
	if zipcode == "" {
		return Outcome{Status: StatusError, Error: "Zipcode is required"}
	}

	if _, ok := viacepx.NormalizeCEP(zipcode); !ok {
		return Outcome{Status: StatusError, Error: viacepx.ErrInvalidCEP.Error()}
	}
	if r.addresses == nil {
		return Outcome{Status: StatusError, Error: "address API is not configured"}
	}

	addr, err := r.addresses.Lookup(ctx, zipcode)
	if err != nil {
		r.logger.Debug().Err(err).Str("zipcode", zipcode).Msg("address lookup failed")
		return Outcome{Status: StatusError, Error: err.Error()}
	}

	fields := addr.ToCustomerAddress()
	return Outcome{Status: StatusSuccess, Address: &addr, CustomerFields: &fields}
}
