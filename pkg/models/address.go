package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String renders the address as "Name <local@domain>", or the bare address
// when there is no display name.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

// ParseAddress splits "Name <local@domain>" into its parts. Input without an
// opening bracket is returned as a bare address.
func ParseAddress(s string) Address {
	name, rest, found := strings.Cut(s, "<")
	if !found {
		return Address{Address: strings.TrimSpace(s)}
	}
	return Address{
		Name:    strings.TrimSpace(name),
		Address: strings.TrimSpace(strings.Replace(rest, ">", "", 1)),
	}
}

// AddressValue is an address as supplied by callers: either a plain string or
// an object with name and address.
type AddressValue string

// UnmarshalJSON accepts "a@b.com", "A <a@b.com>" or {"name":"A","address":"a@b.com"}.
func (v *AddressValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = AddressValue(s)
		return nil
	}

	var a Address
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("address must be a string or an object with name and address: %w", err)
	}
	*v = AddressValue(a.String())
	return nil
}
