package adif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `Generated by a logger
<ADIF_VER:5>3.1.4
<PROGRAMID:6>Logger
<EOH>
<CALL:5>K1ABC <GRIDSQUARE:4>FN31 <BAND:3>20m <FREQ:8>14.07400 <MODE:3>FT8 <QSO_DATE:8>20240102 <TIME_ON:6>120300 <EOR>
<call:6>EA8XYZ <lat:11>N28 07.800 <lon:11>W015 25.800 <band:3>40M <eor>
<CALL:4>NOGR <BAND:3>17M <EOR>
`

func TestParseString(t *testing.T) {
	log := ParseString(sampleLog)

	assert.Equal(t, "3.1.4", log.Header.Get("ADIF_VER"))
	assert.Equal(t, "Logger", log.Header.Get("programid"))
	require.Len(t, log.Records, 3)

	first := log.Records[0]
	assert.Equal(t, "K1ABC", first.Call())
	assert.Equal(t, "FN31", first.Grid())
	assert.Equal(t, "20M", first.Band())
	assert.Equal(t, "14.07400", first.Freq())
	assert.Equal(t, "FT8", first.Mode())
	assert.Equal(t, "20240102", first.QSODate())
	assert.Equal(t, "120300", first.TimeOn())

	second := log.Records[1]
	assert.Equal(t, "EA8XYZ", second.Call())
	assert.Equal(t, "N28 07.800", second.Get("LAT"))
	assert.Equal(t, "W015 25.800", second.Get("lon"))
	assert.Equal(t, "", second.Grid())

	assert.Equal(t, "", log.Records[2].Get("GRIDSQUARE"))
}

func TestParseString_NoHeader(t *testing.T) {
	log := ParseString("<CALL:5>K1ABC<EOR><CALL:5>W1XYZ<EOR>")
	assert.Empty(t, log.Header)
	require.Len(t, log.Records, 2)
	assert.Equal(t, "W1XYZ", log.Records[1].Call())
}

func TestParseString_HeaderTagVariants(t *testing.T) {
	log := ParseString("header <eoh > <CALL:5>K1ABC<EOR>")
	require.Len(t, log.Records, 1)
	assert.Equal(t, "K1ABC", log.Records[0].Call())
}

func TestParseString_HeaderWithNonASCIIText(t *testing.T) {
	// upper-casing ı shrinks and ɐ grows the UTF-8 encoding
	for _, preamble := range []string{"ıııı exported", "ɐɐɐɐ exported", "Ⱥȿɐı mixed"} {
		t.Run(preamble, func(t *testing.T) {
			log := ParseString(preamble + " <PROGRAMID:4>Test<eoh>\n<CALL:5>K1ABC<BAND:3>20M<EOR>")

			assert.Equal(t, "Test", log.Header.Get("PROGRAMID"))
			require.Len(t, log.Records, 1)
			assert.Equal(t, "K1ABC", log.Records[0].Call())
			assert.Equal(t, "20M", log.Records[0].Band())
		})
	}
}

func TestIndexTag(t *testing.T) {
	assert.Equal(t, 3, indexTag("abc<EoH>", "EOH"))
	assert.Equal(t, 3, indexTag("ıx<eoh \t>", "EOH"))
	assert.Equal(t, -1, indexTag("<EOHX>", "EOH"))
	assert.Equal(t, -1, indexTag("<EO", "EOH"))
	assert.Equal(t, 7, indexTag("<EOHX> <EOH>", "EOH"))
}

func TestParseString_TypedAndMalformedTags(t *testing.T) {
	text := "<CALL:5:S>K1ABC <BAD> <FREQ:x>14 <:3>abc <NOTES:20>short<EOR"
	log := ParseString(text)
	require.Len(t, log.Records, 1)

	rec := log.Records[0]
	assert.Equal(t, "K1ABC", rec.Call())
	assert.NotContains(t, rec, "FREQ")
	// the truncated final value is clipped at the end of input
	assert.Equal(t, "short<EOR", rec.Get("NOTES"))
}

func TestParseString_FinalRecordWithoutEOR(t *testing.T) {
	log := ParseString("<CALL:5>K1ABC<EOR><CALL:5>W1XYZ")
	require.Len(t, log.Records, 2)
	assert.Equal(t, "W1XYZ", log.Records[1].Call())
}

func TestParseString_EmptyRecordsDropped(t *testing.T) {
	log := ParseString("<EOH><EOR><EOR>   <EOR>")
	assert.Empty(t, log.Records)
}

func TestParseString_LengthCountsCharacters(t *testing.T) {
	log := ParseString("<NAME:4>José<CALL:5>EA1AA<EOR>")
	require.Len(t, log.Records, 1)
	assert.Equal(t, "José", log.Records[0].Get("NAME"))
	assert.Equal(t, "EA1AA", log.Records[0].Call())
}

func TestParse_Latin9(t *testing.T) {
	// "José" in ISO-8859-15 and the euro sign at 0xA4
	data := []byte("<NAME:4>Jos\xe9<QTH:1>\xa4<EOR>")

	log, err := Parse(data, ISO885915)
	require.NoError(t, err)
	require.Len(t, log.Records, 1)
	assert.Equal(t, "José", log.Records[0].Get("NAME"))
	assert.Equal(t, "€", log.Records[0].Get("QTH"))
}

func TestParse_UTF8(t *testing.T) {
	log, err := Parse([]byte("<NAME:4>José<EOR>"), UTF8)
	require.NoError(t, err)
	assert.Equal(t, "José", log.Records[0].Get("NAME"))

	text, err := Decode([]byte("ok\xff"), UTF8)
	require.NoError(t, err)
	assert.Equal(t, "ok�", text)
}

func TestParse_UnsupportedCharset(t *testing.T) {
	_, err := Parse([]byte("<EOR>"), Charset("ebcdic"))
	assert.ErrorIs(t, err, ErrUnsupportedCharset)
}

func TestParseCharset(t *testing.T) {
	tests := map[string]Charset{
		"":            ISO885915,
		"ISO-8859-15": ISO885915,
		"iso_8859-15": ISO885915,
		"latin9":      ISO885915,
		"UTF-8":       UTF8,
		"utf8":        UTF8,
	}
	for in, want := range tests {
		got, err := ParseCharset(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCharset("cp1252")
	assert.ErrorIs(t, err, ErrUnsupportedCharset)
}

func TestRecord_GetMissing(t *testing.T) {
	var rec Record
	assert.Equal(t, "", rec.Get("CALL"))
	assert.Equal(t, "", rec.Call())
}
