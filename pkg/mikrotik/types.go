package mikrotik

import "strings"

// BindingType selects hotspot treatment for an IP binding.
type BindingType string

const (
	BindingRegular  BindingType = "regular"
	BindingBypassed BindingType = "bypassed"
	BindingBlocked  BindingType = "blocked"
)

// Valid reports whether t is one of the three device-known types.
func (t BindingType) Valid() bool {
	switch t {
	case BindingRegular, BindingBypassed, BindingBlocked:
		return true
	}
	return false
}

// ActiveHost is one live hotspot session on the device. Owned by the
// device and mirrored only for the duration of a request.
type ActiveHost struct {
	ID         string
	Server     string
	User       string
	Address    string
	MACAddress string
	Uptime     string
	Comment    string
}

// Lease is one DHCP lease, dynamic or static.
type Lease struct {
	ID         string
	Address    string
	MACAddress string
	Server     string
	HostName   string
	Status     string
	Comment    string
	Dynamic    bool
}

// Binding is one persistent hotspot IP binding.
type Binding struct {
	ID         string
	MACAddress string
	Address    string
	ToAddress  string
	Server     string
	Type       BindingType
	Comment    string
}

func activeHostFrom(m map[string]string) ActiveHost {
	return ActiveHost{
		ID:         m[".id"],
		Server:     m["server"],
		User:       m["user"],
		Address:    m["address"],
		MACAddress: m["mac-address"],
		Uptime:     m["uptime"],
		Comment:    DecodeComment(m["comment"]),
	}
}

func leaseFrom(m map[string]string) Lease {
	return Lease{
		ID:         m[".id"],
		Address:    m["address"],
		MACAddress: m["mac-address"],
		Server:     m["server"],
		HostName:   m["host-name"],
		Status:     m["status"],
		Comment:    DecodeComment(m["comment"]),
		Dynamic:    m["dynamic"] == "true",
	}
}

func bindingFrom(m map[string]string) Binding {
	return Binding{
		ID:         m[".id"],
		MACAddress: m["mac-address"],
		Address:    m["address"],
		ToAddress:  m["to-address"],
		Server:     m["server"],
		Type:       BindingType(m["type"]),
		Comment:    DecodeComment(m["comment"]),
	}
}

// matchAny is the client-side search filter: case-insensitive substring
// across every field. An empty term matches everything.
func matchAny(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
