package domain

import "strings"

// AddressInput: адрес доставки в том виде, в каком его прислал клиент. Все поля опциональны.
type AddressInput struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

func (in AddressInput) complete() bool {
	address := strings.TrimSpace(in.Address)
	return address != "" && address != AddressNotProvided &&
		strings.TrimSpace(in.City) != "" &&
		strings.TrimSpace(in.PostalCode) != ""
}

// ResolveShippingAddress выбирает адрес доставки: полный адрес из запроса,
// иначе адрес из профиля пользователя.
func ResolveShippingAddress(input AddressInput, profileAddress string) (ShippingAddress, error) {
	if input.complete() {
		return withDefaultCountry(ShippingAddress{
			Address:    strings.TrimSpace(input.Address),
			City:       strings.TrimSpace(input.City),
			PostalCode: strings.TrimSpace(input.PostalCode),
			Country:    strings.TrimSpace(input.Country),
		}), nil
	}

	profileAddress = strings.TrimSpace(profileAddress)
	if profileAddress == "" || profileAddress == AddressNotProvided {
		return ShippingAddress{}, ErrMissingAddress
	}

	resolved := withDefaultCountry(ParseProfileAddress(profileAddress))
	if !resolved.Complete() {
		return ShippingAddress{}, ErrIncompleteAddress
	}
	return resolved, nil
}

// ParseProfileAddress разбирает адрес профиля формата "street, city, postal code[, country]".
// Улица сама может содержать запятые: город, индекс и страна берутся с конца.
func ParseProfileAddress(raw string) ShippingAddress {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var addr ShippingAddress
	switch {
	case len(parts) >= 4:
		n := len(parts)
		addr.Country = parts[n-1]
		addr.PostalCode = parts[n-2]
		addr.City = parts[n-3]
		addr.Address = strings.Join(parts[:n-3], ", ")
	case len(parts) == 3:
		addr.Address, addr.City, addr.PostalCode = parts[0], parts[1], parts[2]
	case len(parts) == 2:
		addr.Address, addr.City = parts[0], parts[1]
	default:
		addr.Address = parts[0]
	}
	return addr
}

func withDefaultCountry(addr ShippingAddress) ShippingAddress {
	if strings.TrimSpace(addr.Country) == "" {
		addr.Country = DefaultCountry
	}
	return addr
}
