package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestResolveShippingAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   domain.AddressInput
		profile string
		want    domain.ShippingAddress
		wantErr error
	}{
		{
			name:    "explicit address wins over profile",
			input:   domain.AddressInput{Address: "5 Canal St", City: "Karachi", PostalCode: "75500", Country: "PK"},
			profile: "1 Mall Rd, Lahore, 54000",
			want:    domain.ShippingAddress{Address: "5 Canal St", City: "Karachi", PostalCode: "75500", Country: "PK"},
		},
		{
			name:  "explicit address gets default country",
			input: domain.AddressInput{Address: "5 Canal St", City: "Karachi", PostalCode: "75500"},
			want:  domain.ShippingAddress{Address: "5 Canal St", City: "Karachi", PostalCode: "75500", Country: domain.DefaultCountry},
		},
		{
			name:    "partial input falls back to profile",
			input:   domain.AddressInput{Address: "5 Canal St"},
			profile: "1 Mall Rd, Lahore, 54000",
			want:    domain.ShippingAddress{Address: "1 Mall Rd", City: "Lahore", PostalCode: "54000", Country: domain.DefaultCountry},
		},
		{
			name:    "profile with country and commas in street",
			profile: "Flat 2, 1 Mall Rd, Lahore, 54000, Pakistan",
			want:    domain.ShippingAddress{Address: "Flat 2, 1 Mall Rd", City: "Lahore", PostalCode: "54000", Country: "Pakistan"},
		},
		{
			name:    "profile placeholder",
			profile: domain.AddressNotProvided,
			wantErr: domain.ErrMissingAddress,
		},
		{
			name:    "no address at all",
			wantErr: domain.ErrMissingAddress,
		},
		{
			name:    "profile without postal code",
			profile: "1 Mall Rd, Lahore",
			wantErr: domain.ErrIncompleteAddress,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.ResolveShippingAddress(tc.input, tc.profile)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
