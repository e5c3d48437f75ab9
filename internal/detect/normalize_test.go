package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"  netflix.com  ", "NETFLIX"},
		{"PAYPAL *NETFLIX.COM", "NETFLIX"},
		{"PAYPAL * Netflix.com", "NETFLIX"},
		{"paypal*   netflix.com", "NETFLIX"},
		{"PAYPAL  *   SPOTIFY P11", "SPOTIFY P11"},
		{"AMAZON MKTPLACE PMTS", "AMAZON MKTPLACE PMTS"},
		{"WALMART SUPERCENTER #123", "WALMART SUPERCENTER 123"},
		{"McDonald's #123", "MCDONALD S 123"},
		{"7-ELEVEN", "7-ELEVEN"},
		{"AT&T WIRELESS", "AT&T WIRELESS"},
		{"  MULTI   SPACE   MERCHANT  ", "MULTI SPACE MERCHANT"},
		{"NETFLIX.COM.", "NETFLIX."},
		{"NETFLIX.COM-HELP", "NETFLIX-HELP"},
		{"STARBUCKS CARD 1234", "STARBUCKS"},
		{"STARBUCKS card1234", "STARBUCKS"},
		{"STARBUCKS CARD    9876", "STARBUCKS"},
		{"Bäckerei Straße 12", "B CKEREI STRASSE 12"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.raw))
		})
	}
}

func TestNormalizeKeepsStarDigitSuffix(t *testing.T) {
	// '*' is blanked before the suffix pass, so these digits survive.
	require.Equal(t, "NETFLIX 1234", Normalize("Netflix*1234"))
	require.Equal(t, "UBER 12345", Normalize("UBER*12345"))
}

func TestNormalizeOutputAlphabet(t *testing.T) {
	inputs := []string{"Café Olé!!", "tab\there", "x@y#z$", "ÆØÅ 42", "a b"}
	for _, in := range inputs {
		out := Normalize(in)
		require.Equal(t, strings.TrimSpace(out), out)
		require.NotContains(t, out, "  ")
		for _, r := range out {
			ok := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || strings.ContainsRune(" &.-", r)
			require.Truef(t, ok, "unexpected rune %q in %q", r, out)
		}
	}
}

func TestCanonicalHint(t *testing.T) {
	require.Equal(t, "NETFLIX", CanonicalHint("NETFLIX 1234"))
	require.Equal(t, "SPOTIFY", CanonicalHint("SPOTIFY P11"))
	require.Equal(t, "AMAZON", CanonicalHint("AMAZON MKTPLACE PMTS"))
	require.Equal(t, "ACME GYM", CanonicalHint("ACME GYM"))

	out := CanonicalHint(strings.Repeat("X", 400))
	require.Len(t, out, 255)
	require.Equal(t, strings.Repeat("X", 255), out)
}

func TestNormalizeThenHint(t *testing.T) {
	cleaned := Normalize("PAYPAL * Netflix.com")
	require.Equal(t, "NETFLIX", cleaned)
	require.Equal(t, "NETFLIX", CanonicalHint(cleaned))
}
