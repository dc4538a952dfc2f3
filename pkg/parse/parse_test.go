package parse

import (
	"errors"
	"testing"
)

var interactiveTests = []struct {
	src       string
	wantNil   bool
	wantErr   bool
	wantStmts int
}{
	{src: "echo foo\n", wantStmts: 1},
	{src: "a=1; a+=1; echo $a\n", wantStmts: 3},
	{src: "echo 'foo\n", wantNil: true},
	{src: "foo() {\n", wantNil: true},
	{src: "echo foo |\n", wantNil: true},
	{src: "echo )\n", wantErr: true},
}

func TestParse_Interactive(t *testing.T) {
	for _, test := range interactiveTests {
		f, err := Parse(test.src, Options{Interactive: true})
		switch {
		case test.wantErr:
			var perr *Error
			if !errors.As(err, &perr) {
				t.Errorf("Parse(%q) -> err %v, want *Error", test.src, err)
			}
		case test.wantNil:
			if f != nil || err != nil {
				t.Errorf("Parse(%q) -> (%v, %v), want (nil, nil)", test.src, f, err)
			}
		default:
			if err != nil {
				t.Fatalf("Parse(%q) -> err %v", test.src, err)
			}
			if len(f.Stmts) != test.wantStmts {
				t.Errorf("Parse(%q) has %d statements, want %d", test.src, len(f.Stmts), test.wantStmts)
			}
		}
	}
}

func TestParse_NonInteractiveIncompleteFails(t *testing.T) {
	_, err := Parse("echo 'foo", Options{})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *Error", err)
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("echo a\necho )", Options{})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *Error", err)
	}
	if perr.Line != 2 || perr.Col == 0 || perr.Offset != 7+perr.Col-1 {
		t.Errorf("position %d:%d offset %d, want on line 2 with a matching offset", perr.Line, perr.Col, perr.Offset)
	}
}

var sourceTests = []struct {
	src  string
	want string
}{
	{"echo  foo   bar", "echo foo bar"},
	{"foo() {\n  echo a\n  echo b\n}", "foo() { echo a; echo b; }"},
	{"a | b &", "a | b &"},
}

func TestSource(t *testing.T) {
	for _, test := range sourceTests {
		f, err := Parse(test.src, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if got := Source(f.Stmts[0]); got != test.want {
			t.Errorf("Source(%q) -> %q, want %q", test.src, got, test.want)
		}
	}
}

func TestService_Cache(t *testing.T) {
	s := NewService()
	f1, err := s.Parse("echo hi")
	if err != nil {
		t.Fatal(err)
	}
	f2, _ := s.Parse("echo hi")
	if f1 != f2 {
		t.Errorf("second parse did not hit the cache")
	}
}

func TestService_TryParseBuffer(t *testing.T) {
	s := NewService()
	if r := s.TryParseBuffer([]string{"echo 'a"}); r.Status != Incomplete {
		t.Errorf("status %v, want Incomplete", r.Status)
	}
	r := s.TryParseBuffer([]string{"echo 'a", "b'"})
	if r.Status != Complete || r.Src != "echo 'a\nb'\n" {
		t.Errorf("got %+v, want Complete with joined source", r)
	}
	if r := s.TryParseBuffer([]string{"echo )"}); r.Status != Failed || r.Err == nil {
		t.Errorf("got %+v, want Failed", r)
	}
}
