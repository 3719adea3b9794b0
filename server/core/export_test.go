package core

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func resultFromJSON(t *testing.T, data string) *QueryResult {
	t.Helper()
	result, err := ParseQueryResult(json.RawMessage(`{"id": "r1", "organizationId": "o1", "semanticModelId": "sm1", "data": ` + data + `}`))
	require.NoError(t, err)
	return result
}

func TestExportCSV(t *testing.T) {
	assert.Equal(t, "a,b\n\"x,y\",1", ExportCSV(resultFromJSON(t, `[{"a": "x,y", "b": 1}]`)))
}

func TestExportCSVEscaping(t *testing.T) {
	result := resultFromJSON(t, `[
		{"name": "say \"hi\"", "n": 1.5, "ok": true},
		{"name": "two\nlines", "extra": null, "n": 1e21},
		{"name": " padded ", "ok": false, "list": [1, "a"]}
	]`)
	want := "name,n,ok,extra,list\n" +
		"\"say \"\"hi\"\"\",1.5,true,,\n" +
		"\"two\nlines\",1e21,,,\n" +
		" padded ,,false,,\"[1,\"\"a\"\"]\""
	assert.Equal(t, want, ExportCSV(result))
}

func TestExportCSVEmpty(t *testing.T) {
	assert.Equal(t, "", ExportCSV(resultFromJSON(t, `[]`)))
	assert.Equal(t, "", ExportCSV(nil))
}

func TestExportXLSX(t *testing.T) {
	result := resultFromJSON(t, `[{"status": "paid", "revenue": 10.5}, {"status": "open", "revenue": 3}]`)

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(result, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"status", "revenue"}, {"paid", "10.5"}, {"open", "3"}}, rows)
}
