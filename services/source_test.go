package services

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"

	"realestate-ingest/layout"
	"realestate-ingest/models"
)

func testLayout(skip, headerScan int, encoding string) layout.Source {
	return layout.Source{
		File: "test.csv",
		Layout: &layout.Layout{
			Name:            "test",
			Kind:            layout.KindBuilding,
			Encoding:        encoding,
			Delimiter:       ",",
			SkipLines:       skip,
			HeaderScanLines: headerScan,
			MinFields:       1,
		},
	}
}

func collect(t *testing.T, input string, src layout.Source) []models.RawRecord {
	t.Helper()
	var out []models.RawRecord
	_, err := NewSourceReader(newTestLogger()).ReadFrom(strings.NewReader(input), src, func(rec models.RawRecord) {
		out = append(out, rec)
	})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	return out
}

func TestSourceReaderSkipsHeaderAndBlankLines(t *testing.T) {
	input := strings.Join([]string{
		"□ 국토교통부 실거래가 공개시스템",
		"□ 검색조건",
		`"시군구","번지","단지명"`,
		"",
		"   ",
		`경기도 수원시 영통구 영통동,996-3,하이빌`,
		`"경기도 수원시 팔달구 인계동",1000,"인계빌"`,
	}, "\n")

	recs := collect(t, input, testLayout(2, 3, layout.EncodingUTF8))
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(recs), recs)
	}
	if recs[0].Line != 6 || recs[0].Fields[2] != "하이빌" {
		t.Errorf("first record = %+v", recs[0])
	}
	// Past the header scan window a leading quote is data.
	if recs[1].Fields[0] != "경기도 수원시 팔달구 인계동" {
		t.Errorf("second record = %+v", recs[1])
	}
}

func TestSourceReaderStripsBOMAndCR(t *testing.T) {
	input := "\ufeff하이빌,23000\r\n인계빌,1000\r\n"
	recs := collect(t, input, testLayout(0, 0, layout.EncodingUTF8))
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Fields[0] != "하이빌" {
		t.Errorf("BOM not stripped: %q", recs[0].Fields[0])
	}
	if recs[1].Fields[1] != "1000" {
		t.Errorf("CR not stripped: %q", recs[1].Fields[1])
	}
}

func TestSourceReaderDecodesCP949(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().String("경기도 수원시 영통구,하이빌\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	recs := collect(t, encoded, testLayout(0, 0, layout.EncodingCP949))
	if len(recs) != 1 || recs[0].Fields[1] != "하이빌" {
		t.Errorf("cp949 decode failed: %+v", recs)
	}
}

func TestSourceReaderMissingFile(t *testing.T) {
	src := testLayout(0, 0, layout.EncodingUTF8)
	src.File = "/nonexistent/source.csv"
	if _, err := NewSourceReader(newTestLogger()).Read(src, func(models.RawRecord) {}); err == nil {
		t.Error("expected an error for a missing file")
	}
}
