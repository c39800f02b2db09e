package tool

import (
	"fmt"
	"net/mail"
	"strings"
)

// EmailAddress represents an email address with optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String renders the address for a message header. A bare address is
// written as given; a display name is quoted or encoded as needed.
func (a EmailAddress) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// ParseAddressList parses a comma separated recipient list such as
// "Ann <ann@x.com>, bob@y.com".
func ParseAddressList(s string) ([]EmailAddress, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	list, err := mail.ParseAddressList(s)
	if err != nil {
		return nil, fmt.Errorf("mail.ParseAddressList failed: %w", err)
	}

	out := make([]EmailAddress, 0, len(list))
	for _, a := range list {
		out = append(out, EmailAddress{Name: a.Name, Email: a.Address})
	}
	return out, nil
}

func formatEmails(addrs []EmailAddress) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
