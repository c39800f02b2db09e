package tool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottgrossworks/invoicer-sub001/internal/tool"
)

func TestParseAddressList(t *testing.T) {
	cases := []struct {
		in       string
		expected []string
	}{
		{in: "a@b.com", expected: []string{"a@b.com"}},
		{in: "a@b.com, c@d.com", expected: []string{"a@b.com", "c@d.com"}},
		{in: "Ann Lee <ann@x.com>", expected: []string{`"Ann Lee" <ann@x.com>`}},
		{in: "Zoë <zoe@x.com>", expected: []string{"=?utf-8?q?Zo=C3=AB?= <zoe@x.com>"}},
		{in: "  ", expected: []string{}},
	}

	for _, tc := range cases {
		addrs, err := tool.ParseAddressList(tc.in)
		require.NoError(t, err, tc.in)

		got := make([]string, 0, len(addrs))
		for _, a := range addrs {
			got = append(got, a.String())
		}
		assert.Equal(t, tc.expected, got, tc.in)
	}

	_, err := tool.ParseAddressList("not an address")
	assert.Error(t, err)
}
