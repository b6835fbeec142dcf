package swift

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMT103 = "{1:F01BANKBEBBAXXX0000000000}" +
	"{2:I103BANKDEFFXXXXN}" +
	"{3:{113:SEPA}{121:180f1e65-90e0-44d5-a49a-92b55eb3025f}}" +
	"{4:\n" +
	":20:FT123\n" +
	":32A:251013USD100000,00\n" +
	":50K:/1234567890\nACME CORP\n" +
	":59:/DE89370400440532013000\nGLOBAL TRADING\n" +
	":71A:OUR\n" +
	"-}"

func TestParseBlocksAndFields(t *testing.T) {
	msg, err := Parse(sampleMT103)
	require.NoError(t, err)

	require.Equal(t, "103", msg.Type())

	b1, ok := msg.Block(1)
	require.True(t, ok)
	require.Equal(t, "F01BANKBEBBAXXX0000000000", b1)

	b3, ok := msg.Block(3)
	require.True(t, ok)
	require.Contains(t, b3, "{121:180f1e65-90e0-44d5-a49a-92b55eb3025f}")

	ref, ok := msg.Field("20")
	require.True(t, ok)
	require.Equal(t, "FT123", ref)

	// Multiline value preserved verbatim.
	ordering, ok := msg.Field("50K")
	require.True(t, ok)
	require.Equal(t, "/1234567890\nACME CORP", ordering)

	require.Len(t, msg.Fields, 5)
	require.Equal(t, "20", msg.Fields[0].Tag)
	require.Equal(t, "71A", msg.Fields[4].Tag)
}

func TestParseRepeatedTags(t *testing.T) {
	msg, err := Parse("{2:I940BANKDEFFXXXXN}{4:\n:20:REF\n:61:LINE1\n:86:INFO1\n:61:LINE2\n:86:INFO2\n-}")
	require.NoError(t, err)

	var tags []string
	for _, f := range msg.Fields {
		tags = append(tags, f.Tag)
	}
	require.Equal(t, []string{"20", "61", "86", "61", "86"}, tags)
}

func TestRenderRoundTrips(t *testing.T) {
	msg, err := Parse(sampleMT103)
	require.NoError(t, err)
	require.Equal(t, sampleMT103, msg.Render())
}

func TestTypeDirectionIndicator(t *testing.T) {
	for raw, want := range map[string]string{
		"{2:I103BANKDEFFXXXXN}{4:\n:20:A\n-}": "103",
		"{2:O2021200250101BANK}{4:\n:20:A\n-}": "202",
		"{2:940}{4:\n:20:A\n-}":                "940",
	} {
		msg, err := Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, msg.Type(), raw)
	}
}

func TestSetTypePreservesHeader(t *testing.T) {
	msg, err := Parse("{2:I103BANKDEFFXXXXN}{4:\n:20:A\n-}")
	require.NoError(t, err)
	msg.SetType("202")
	b2, _ := msg.Block(2)
	require.Equal(t, "I202BANKDEFFXXXXN", b2)
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"no braces here",
		"{9:bad block number}",
		"{1:unterminated",
		"{4:\ngarbage before first field\n-}",
	} {
		_, err := Parse(raw)
		require.Error(t, err, raw)
	}
}
