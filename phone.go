package phoneauth

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nigerianPhone = regexp.MustCompile(`^\+234[789]\d{9}$`)
	e164Phone     = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	phoneNoise    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizePhone rewrites raw into +<country><number> form and validates it.
//
// Numbers already starting with "+" are kept, numbers starting with the
// country code gain a "+", and numbers with a leading trunk "0" have it
// replaced by the country code. For country code 234 the result must be a
// Nigerian mobile number; other codes are checked against E.164.
func NormalizePhone(raw, countryCode string) (string, error) {
	phone := phoneNoise.Replace(strings.TrimSpace(raw))
	if phone == "" {
		return "", fmt.Errorf("%w: phone number required", ErrValidation)
	}

	switch {
	case strings.HasPrefix(phone, "+"):
	case countryCode != "" && strings.HasPrefix(phone, countryCode):
		phone = "+" + phone
	case countryCode != "" && strings.HasPrefix(phone, "0"):
		phone = "+" + countryCode + phone[1:]
	}

	pattern := e164Phone
	if countryCode == "234" && strings.HasPrefix(phone, "+234") {
		pattern = nigerianPhone
	}
	if !pattern.MatchString(phone) {
		return "", fmt.Errorf("%w: invalid phone number", ErrValidation)
	}
	return phone, nil
}
