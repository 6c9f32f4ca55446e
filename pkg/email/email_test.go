package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"bob@library.test":         "Bob",
		"jane.doe+lib@example.com": "Jane Doe",
		"first_middle-last@x.org":  "First Middle Last",
		"@example.com":             "Reader",
		"":                         "Reader",
		"éva@example.com":          "Éva",
		"plainname":                "Plainname",
	}
	for in, want := range cases {
		assert.Equal(t, want, DisplayName(in), in)
	}
}
