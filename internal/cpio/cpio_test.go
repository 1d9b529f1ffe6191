package cpio

import (
	"bytes"
	"fmt"
	"io"
	"testing"
)

func writeEntry(buf *bytes.Buffer, name string, body []byte) {
	fmt.Fprintf(buf, "070701")
	fields := []uint32{0, 0, 0, 0, 1, 0, uint32(len(body)), 0, 0, 0, 0, uint32(len(name) + 1), 0}
	for _, f := range fields {
		fmt.Fprintf(buf, "%08X", f)
	}
	buf.WriteString(name)
	buf.WriteByte(0)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(body)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeTrailer(buf *bytes.Buffer) {
	writeEntry(buf, TrailerName, nil)
}

func TestReadEntryFullCycle(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "f.txt", []byte("hello"))
	writeTrailer(&buf)

	r := NewReader(&buf)
	e, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "f.txt" {
		t.Fatalf("name = %q", e.Name)
	}
	data, err := r.ReadData(e)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if err := r.End(e); err != nil {
		t.Fatal(err)
	}

	_, err = r.Start()
	if err != io.EOF {
		t.Fatalf("expected io.EOF at trailer, got %v", err)
	}
}

func TestSkipData(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "big.bin", bytes.Repeat([]byte{0xAB}, PeekSize+100))
	writeEntry(&buf, "next.txt", []byte("ok"))
	writeTrailer(&buf)

	r := NewReader(&buf)
	e, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Peek) != PeekSize {
		t.Fatalf("peek len = %d", len(e.Peek))
	}
	if err := r.SkipData(e); err != nil {
		t.Fatal(err)
	}
	if err := r.End(e); err != nil {
		t.Fatal(err)
	}

	e2, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	if e2.Name != "next.txt" {
		t.Fatalf("name = %q", e2.Name)
	}
}

func TestImmediateTrailer(t *testing.T) {
	var buf bytes.Buffer
	writeTrailer(&buf)
	r := NewReader(&buf)
	_, err := r.Start()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestZeroByteFile(t *testing.T) {
	var buf bytes.Buffer
	writeEntry(&buf, "empty", nil)
	writeTrailer(&buf)

	r := NewReader(&buf)
	e, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Peek) != 0 {
		t.Fatalf("peek len = %d", len(e.Peek))
	}
	if err := r.End(e); err != nil {
		t.Fatal(err)
	}
}

func TestBadMagic(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, HeaderSize)))
	_, err := r.Start()
	if err == nil {
		t.Fatal("expected error")
	}
}
