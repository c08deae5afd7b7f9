package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusEncodeDefault(t *testing.T) {
	text, err := EncodeStatus(StatusNotAvailable())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if text != DefaultStatusText {
		t.Errorf("expected %s, got %s", DefaultStatusText, text)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.UTC)
	statuses := []Status{
		StatusNotAvailable(),
		StatusRunning(now),
		StatusAvailable(now, 1284772),
		StatusError("osm-ingestion-tool exited with code 2", now),
	}
	for _, want := range statuses {
		text, err := EncodeStatus(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Kind, err)
		}
		got, err := DecodeStatus(text)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Kind, err)
		}
		if !got.Equal(want) {
			t.Errorf("%s: round trip changed value: %+v != %+v", want.Kind, got, want)
		}
		again, err := EncodeStatus(got)
		if err != nil {
			t.Fatalf("re-encode %s: %v", want.Kind, err)
		}
		if again != text {
			t.Errorf("%s: re-encode not canonical: %s != %s", want.Kind, again, text)
		}
	}
}

func TestStatusRunningKeepsNanoseconds(t *testing.T) {
	started := time.Date(2025, 3, 14, 9, 26, 53, 589793238, time.FixedZone("CET", 3600))
	s := StatusRunning(started)

	text, err := EncodeStatus(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(text, "08:26:53.589793238Z") {
		t.Errorf("expected UTC nanosecond timestamp in %s", text)
	}

	got, err := DecodeStatus(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at changed: %v != %v", got.StartedAt, started)
	}
}

func TestStatusDecodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"unknown tag", `{"type":"Pending"}`},
		{"missing tag", `{"started_at":"2025-03-14T09:26:53Z"}`},
		{"running without started_at", `{"type":"Running"}`},
		{"available without count", `{"type":"Available","built_at":"2025-03-14T09:26:53Z"}`},
		{"error without reason", `{"type":"Error","failed_at":"2025-03-14T09:26:53Z"}`},
		{"not json", `Running`},
	}
	for _, tc := range cases {
		if _, err := DecodeStatus(tc.text); err == nil {
			t.Errorf("%s: expected decode error for %s", tc.name, tc.text)
		}
	}
}

func TestStatusEqualDistinguishesAttempts(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	a := StatusRunning(base)
	b := StatusRunning(base.Add(time.Nanosecond))

	if a.Equal(b) {
		t.Error("attempts one nanosecond apart must not compare equal")
	}
	if !a.Equal(StatusRunning(base)) {
		t.Error("identical attempts must compare equal")
	}
}

func TestIndexMarshalEmbedsStatusEnvelope(t *testing.T) {
	idx := Index{
		ID:         7,
		IndexType:  IndexTypeOSM,
		DataSource: "osm",
		Region:     "fr",
		Status:     StatusNotAvailable(),
	}
	b, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"status":{"type":"NotAvailable"}`) {
		t.Errorf("expected tagged status envelope, got %s", b)
	}

	var back Index
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Status.Kind != StatusKindNotAvailable {
		t.Errorf("expected NotAvailable, got %s", back.Status.Kind)
	}
}

func TestIndexTypeValid(t *testing.T) {
	for _, valid := range []IndexType{IndexTypeOSM, IndexTypeCosmogony, IndexTypeBANO, IndexTypeOpenAddresses} {
		if !valid.Valid() {
			t.Errorf("%s should be valid", valid)
		}
	}
	for _, invalid := range []IndexType{"", "OSM", "geonames"} {
		if invalid.Valid() {
			t.Errorf("%s should be invalid", invalid)
		}
	}
}
