package enrichment

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const amountPattern = `\$\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`

var (
	spendNoticeRe = regexp.MustCompile(`(?i)\byou (?:spent|paid) ` + amountPattern + ` (?:at|to|with) (.+?)[.!]?$`)
	purchaseRe    = regexp.MustCompile(`(?i)\byou made an? ` + amountPattern + ` (?:purchase|payment) (?:at|with|to) (.+?)[.!]?$`)
	cardChargeRe  = regexp.MustCompile(`(?i)\ba charge of ` + amountPattern + ` (?:at|from) (.+?)(?: (?:was|has been) .*)?[.!]?$`)
	transactionRe = regexp.MustCompile(`(?i)\byour ` + amountPattern + ` transaction with (.+?)[.!]?$`)
)

// DefaultRegistry holds the built-in provider patterns, most specific first.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Enricher{
			Name:    "bank-transaction-alert",
			Match:   All(SenderDomain("chase.com", "alertsp.chase.com"), SubjectMatches(transactionRe)),
			Extract: SubjectExtractor(transactionRe),
		},
		Enricher{
			Name:    "card-charge",
			Match:   SubjectMatches(cardChargeRe),
			Extract: SubjectExtractor(cardChargeRe),
		},
		Enricher{
			Name:    "spend-notice",
			Match:   SubjectMatches(spendNoticeRe),
			Extract: SubjectExtractor(spendNoticeRe),
		},
		Enricher{
			Name:    "purchase-notice",
			Match:   SubjectMatches(purchaseRe),
			Extract: SubjectExtractor(purchaseRe),
		},
	)
}

// SubjectMatches matches when re finds the subject.
func SubjectMatches(re *regexp.Regexp) func(Input) bool {
	return func(in Input) bool {
		return re.MatchString(strings.TrimSpace(in.Subject))
	}
}

// SenderDomain matches senders at any of domains or their subdomains.
func SenderDomain(domains ...string) func(Input) bool {
	return func(in Input) bool {
		d := senderDomain(in.Sender)
		if d == "" {
			return false
		}
		for _, want := range domains {
			want = strings.ToLower(want)
			if d == want || strings.HasSuffix(d, "."+want) {
				return true
			}
		}
		return false
	}
}

// All matches when every matcher does.
func All(matchers ...func(Input) bool) func(Input) bool {
	return func(in Input) bool {
		for _, m := range matchers {
			if !m(in) {
				return false
			}
		}
		return true
	}
}

// SubjectExtractor reads amount from group 1 and place from group 2 of re.
func SubjectExtractor(re *regexp.Regexp) func(Input) (Result, error) {
	return func(in Input) (Result, error) {
		m := re.FindStringSubmatch(strings.TrimSpace(in.Subject))
		if len(m) < 3 {
			return Result{}, fmt.Errorf("%w: subject %q", ErrMalformed, in.Subject)
		}
		amount, err := ParseAmount(m[1])
		if err != nil {
			return Result{}, err
		}
		return Result{Place: CleanPlace(m[2]), Amount: amount}, nil
	}
}

// ParseAmount parses "1,234.50" style amounts.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrMalformed, raw)
	}
	return d, nil
}

// CleanPlace trims whitespace, quotes and trailing punctuation from a merchant name.
func CleanPlace(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), ` "'.,!`)
}

func senderDomain(sender string) string {
	addr := strings.TrimSpace(sender)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(addr[at+1:], ">"))
}
