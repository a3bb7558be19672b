package events

import (
	"reflect"
	"testing"
)

func TestLineFramer_SplitAcrossChunks(t *testing.T) {
	f := NewLineFramer()
	var got []string
	got = append(got, f.Push([]byte("hello wor"))...)
	got = append(got, f.Push([]byte("ld\nsecond line\n"))...)
	want := []string{"hello world", "second line"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLineFramer_SingleByteNewlineSplit(t *testing.T) {
	f := NewLineFramer()
	var got []string
	got = append(got, f.Push([]byte("line one"))...)
	got = append(got, f.Push([]byte("\n"))...)
	want := []string{"line one"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLineFramer_CRLF(t *testing.T) {
	f := NewLineFramer()
	got := f.Push([]byte("a\r\nb\r\n"))
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLineFramer_FlushPending(t *testing.T) {
	f := NewLineFramer()
	f.Push([]byte("no newline yet"))
	got := f.Flush()
	want := []string{"no newline yet"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := f.Flush(); got != nil {
		t.Fatalf("second flush should be empty, got %v", got)
	}
}

func TestLineFramer_RoundTripIndependentOfSplit(t *testing.T) {
	data := "alpha\nbeta\r\ngamma"
	for split := 0; split <= len(data); split++ {
		a, b := data[:split], data[split:]

		f1 := NewLineFramer()
		var lines1 []string
		lines1 = append(lines1, f1.Push([]byte(a))...)
		lines1 = append(lines1, f1.Push([]byte(b))...)
		lines1 = append(lines1, f1.Flush()...)

		f2 := NewLineFramer()
		var lines2 []string
		lines2 = append(lines2, f2.Push([]byte(data))...)
		lines2 = append(lines2, f2.Flush()...)

		if !reflect.DeepEqual(lines1, lines2) {
			t.Fatalf("split at %d: %v != %v", split, lines1, lines2)
		}
	}
}
