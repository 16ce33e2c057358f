package components

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/relloyd/stagesync/stream"
	"github.com/sirupsen/logrus"
)

func recFromJson(t *testing.T, s string) stream.Record {
	t.Helper()
	m := make(map[string]interface{})
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	rec := stream.NewRecord()
	for k, v := range m {
		rec.SetData(k, v)
	}
	return rec
}

func TestStaffActivity(t *testing.T) {
	log := logrus.New()
	cases := []struct {
		in             string
		wantActive     string
		wantDeactivate interface{}
	}{
		{`{"StaffKey": "a"}`, "T", nil},
		{`{"StaffKey": "b", "DeactivationDateUtc": null}`, "T", nil},
		{`{"StaffKey": "c", "DeactivationDateUtc": ""}`, "T", nil},
		{`{"StaffKey": "d", "DeactivationDateUtc": "2020-05-06T13:00:00Z"}`, "F", "2020-05-06T13:00:00Z"},
	}
	for _, tc := range cases {
		rec := recFromJson(t, tc.in)
		out, err := StaffActivity{}.Apply(log, []stream.Record{rec})
		if err != nil {
			t.Fatal(err)
		}
		if got := out[0].GetData("IsActive"); got != tc.wantActive {
			t.Fatalf("%v: expected IsActive %v; got %v", tc.in, tc.wantActive, got)
		}
		if got := out[0].GetData("DeactivationDate"); got != tc.wantDeactivate {
			t.Fatalf("%v: expected DeactivationDate %v; got %v", tc.in, tc.wantDeactivate, got)
		}
	}
}

func TestTagColumnName(t *testing.T) {
	if got := TagColumnName("Employee Type", "Faculty (Full-Time)"); got != "EmployeeType_FacultyFullTime" {
		t.Fatal("unexpected tag column name: ", got)
	}
}

func TestTagPivot(t *testing.T) {
	log := logrus.New()
	p := TagPivot{Columns: []string{"CALevel_CA1", "ND_DAY", "ProviderType_CRNA"}}
	recs := []stream.Record{
		recFromJson(t, `{"StaffKey": "1", "Tags": [
			{"CategoryName": "CA Level", "Tags": [{"Name": "CA1"}]},
			{"CategoryName": "N/D", "Tags": [{"Name": "Day"}]}
		]}`),
		recFromJson(t, `{"StaffKey": "2", "Tags": [{"CategoryName": "Provider Type", "Tags": [{"Name": "Surgeon"}]}]}`),
		recFromJson(t, `{"StaffKey": "3"}`),
	}
	out, err := p.Apply(log, recs)
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]string{
		{"CALevel_CA1": "T", "ND_DAY": "T", "ProviderType_CRNA": "F", "InvalidRecordFlag": "F"},
		{"CALevel_CA1": "F", "ND_DAY": "F", "ProviderType_CRNA": "F", "InvalidRecordFlag": "T"},
		{"CALevel_CA1": "F", "ND_DAY": "F", "ProviderType_CRNA": "F", "InvalidRecordFlag": "F"},
	}
	for idx, w := range want {
		for col, v := range w {
			if got := out[idx].GetData(col); got != v {
				t.Fatalf("row %v column %v: expected %v; got %v", idx, col, v, got)
			}
		}
	}
	// Malformed tags are a data error.
	if _, err = p.Apply(log, []stream.Record{recFromJson(t, `{"Tags": "CA1"}`)}); err == nil {
		t.Fatal("expected an error for malformed tags")
	}
}

func TestLineNumbers(t *testing.T) {
	log := logrus.New()
	at := func(h int) time.Time { return time.Date(2021, 3, 1, h, 0, 0, 0, time.UTC) }
	mk := func(caseID int64, start time.Time, ptype, epic string) stream.Record {
		r := stream.NewRecord()
		r.SetData("CaseID", caseID)
		r.SetData("ProviderAnesthesiaStart", start)
		r.SetData("ProviderType", ptype)
		r.SetData("ProviderEpicID", epic)
		return r
	}
	recs := []stream.Record{
		mk(10, at(9), "CRNA", "B"),
		mk(20, at(7), "MD", "A"),
		mk(10, at(8), "MD", "A"),
		mk(10, at(9), "CRNA", "A"),
	}
	l := LineNumbers{Partition: "CaseID", OrderBy: []string{"ProviderAnesthesiaStart", "ProviderType", "ProviderEpicID"}, Field: "LineNumber"}
	out, err := l.Apply(log, recs)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{3, 1, 1, 2}
	for idx, w := range want {
		if got := out[idx].GetData("LineNumber"); got != w {
			t.Fatalf("row %v: expected line %v; got %v", idx, w, got)
		}
	}
	bad := stream.NewRecord()
	bad.SetData("CaseID", int64(1))
	if _, err = l.Apply(log, []stream.Record{bad}); err == nil {
		t.Fatal("expected an error when an order field is missing")
	}
}
