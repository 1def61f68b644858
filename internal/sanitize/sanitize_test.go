package sanitize

import "testing"

func TestTextStripsNulAndControl(t *testing.T) {
	in := "hello\x00world\x01\twith\ttabs\nand\nnewlines\r\n"
	out := Text(in)
	if !IsClean(out) {
		t.Fatalf("Text() output not clean: %q", out)
	}
	want := "helloworld\twith\ttabs\nand\nnewlines\r\n"
	if out != want {
		t.Fatalf("Text() = %q, want %q", out, want)
	}
}

func TestIsCleanAcceptsTabsNewlinesReturns(t *testing.T) {
	if !IsClean("a\tb\nc\rd") {
		t.Fatal("IsClean rejected a string with only \\t \\n \\r control chars")
	}
}

func TestIsCleanRejectsControlChars(t *testing.T) {
	if IsClean("a\x07b") {
		t.Fatal("IsClean accepted a bell character")
	}
	if IsClean("a\x00b") {
		t.Fatal("IsClean accepted a NUL byte")
	}
}
