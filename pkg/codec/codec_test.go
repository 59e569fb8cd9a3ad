package codec

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		GetRequest("k1"),
		SetRequest("k1", "v1"),
		RemoveRequest("k1"),
	}
	for _, want := range cases {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Request
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !requestEqual(want, got) {
			t.Fatalf("round trip mismatch: want %+v, got %+v (wire %s)", want, got, data)
		}
	}
}

func requestEqual(a, b Request) bool {
	if (a.Get == nil) != (b.Get == nil) || (a.Get != nil && *a.Get != *b.Get) {
		return false
	}
	if (a.Set == nil) != (b.Set == nil) {
		return false
	}
	if a.Set != nil && *a.Set != *b.Set {
		return false
	}
	if (a.Remove == nil) != (b.Remove == nil) || (a.Remove != nil && *a.Remove != *b.Remove) {
		return false
	}
	return true
}

func TestRequestWireShape(t *testing.T) {
	data, _ := json.Marshal(SetRequest("k", "v"))
	if string(data) != `{"Set":["k","v"]}` {
		t.Fatalf("unexpected wire shape: %s", data)
	}

	data, _ = json.Marshal(GetRequest("k"))
	if string(data) != `{"Get":"k"}` {
		t.Fatalf("unexpected wire shape: %s", data)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []Response{
		OkNull(),
		OkValue("v1"),
		Err("key not found"),
	}
	for _, want := range cases {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Response
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.IsOk() != want.IsOk() || got.ErrMessage() != want.ErrMessage() {
			t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
		}
		wv, wok := want.Value()
		gv, gok := got.Value()
		if wok != gok || wv != gv {
			t.Fatalf("value mismatch: want (%q,%v) got (%q,%v)", wv, wok, gv, gok)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, SetRequest("k1", "v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteRequest(&buf, GetRequest("k1")); err != nil {
		t.Fatalf("write: %v", err)
	}

	req1, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if req1.Set == nil || req1.Set.Key != "k1" || req1.Set.Value != "v1" {
		t.Fatalf("unexpected first request: %+v", req1)
	}

	req2, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}
	if req2.Get == nil || *req2.Get != "k1" {
		t.Fatalf("unexpected second request: %+v", req2)
	}
}

func TestReadRequestCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	if _, err := ReadRequest(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF on empty reader, got %v", err)
	}
}

func TestReadFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, SetRequest("k", "v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var req Request
	if err := ReadFrame(&buf, &req, 4); err == nil {
		t.Fatalf("expected oversized frame to be rejected")
	}
}
