package command

import (
	"strings"

	"github.com/asaskevich/govalidator"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/text/language"

	"github.com/identra/identra/pkg/errs"
)

// minPasswordEntropy rejects trivially guessable passwords before the
// configured complexity policy is even consulted.
const minPasswordEntropy = 50

// DomainValidator checks whether a domain name is acceptable for an org.
// The default implementation is syntactic; deployments can plug ownership
// verification behind the same interface.
type DomainValidator interface {
	Validate(domainName string) error
}

// DNSDomainValidator accepts syntactically valid DNS names.
type DNSDomainValidator struct{}

func (DNSDomainValidator) Validate(domainName string) error {
	if domainName == "" {
		return errs.ThrowInvalidArgument(nil, "COMMAND-Dom00a", "domain is empty")
	}
	if !govalidator.IsDNSName(domainName) {
		return errs.ThrowInvalidArgument(nil, "COMMAND-Dom00b", "domain is not a valid DNS name")
	}
	return nil
}

// validateEmail checks syntactic email validity.
func validateEmail(email, code string) error {
	if email == "" || !govalidator.IsEmail(email) {
		return errs.ThrowInvalidArgument(nil, code, "email is invalid")
	}
	return nil
}

// validateLanguage parses a BCP 47 tag and returns its canonical base form
// (e.g. "en"). Custom texts are keyed by base language only.
func validateLanguage(tag, code string) (string, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", errs.ThrowInvalidArgument(err, code, "language tag is invalid")
	}
	base, _ := parsed.Base()
	return base.String(), nil
}

// validatePassword applies the baseline entropy check. Org and instance
// complexity policies are enforced on top at authentication setup time.
func validatePassword(password, code string) error {
	if err := passwordvalidator.Validate(password, minPasswordEntropy); err != nil {
		return errs.ThrowInvalidArgument(err, code, "password is too weak")
	}
	return nil
}

// normalizeName trims whitespace and enforces non-emptiness and a length
// bound shared by human-visible names.
func normalizeName(name, code string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.ThrowInvalidArgument(nil, code, "name is empty")
	}
	if len(name) > maxLen {
		return "", errs.ThrowInvalidArgument(nil, code, "name is too long")
	}
	return name, nil
}
