package getopt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	specL    = &OptionSpec{Short: 'l'}
	specA    = &OptionSpec{Short: 'a'}
	specStop = &OptionSpec{Long: "STOP"}
	specAll  = &OptionSpec{Short: 'g', Long: "all"}
	specs    = []*OptionSpec{specL, specA, specStop, specAll}
)

func TestParse(t *testing.T) {
	tests := []struct {
		args         []string
		wantHas      []string
		wantOperands []string
		wantUnknown  []string
	}{
		{[]string{"-la", "x"}, []string{"l", "a"}, []string{"x"}, nil},
		{[]string{"x", "--STOP", "y"}, []string{"STOP"}, []string{"x", "y"}, nil},
		{[]string{"-g"}, []string{"all", "g"}, nil, nil},
		{[]string{"--", "-l"}, nil, []string{"-l"}, nil},
		{[]string{"-", "-1", "-2.5"}, nil, []string{"-", "-1", "-2.5"}, nil},
		{[]string{"-z", "--nope"}, []string{"z", "nope"}, nil, []string{"-z", "--nope"}},
	}
	for _, test := range tests {
		opts, operands := Parse(test.args, specs)
		for _, name := range test.wantHas {
			if !opts.Has(name) {
				t.Errorf("Parse(%q) lacks option %q", test.args, name)
			}
		}
		if diff := cmp.Diff(test.wantOperands, operands); diff != "" {
			t.Errorf("Parse(%q) operands (-want +got):\n%s", test.args, diff)
		}
		var unknown []string
		for _, opt := range opts.Unknown() {
			unknown = append(unknown, opt.String())
		}
		if diff := cmp.Diff(test.wantUnknown, unknown); diff != "" {
			t.Errorf("Parse(%q) unknown (-want +got):\n%s", test.args, diff)
		}
	}
}

func TestParse_DigitOption(t *testing.T) {
	one := []*OptionSpec{{Short: '1'}, specL}
	opts, operands := Parse([]string{"-1", "-2", "-l1"}, one)
	if !opts.Has("1") || !opts.Has("l") {
		t.Errorf("Parse lacks -1 or -l, got %v", opts.Options)
	}
	if diff := cmp.Diff([]string{"-2"}, operands); diff != "" {
		t.Errorf("Parse operands (-want +got):\n%s", diff)
	}
	if unknown := opts.Unknown(); len(unknown) != 0 {
		t.Errorf("Parse unknown = %v, want none", unknown)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		arg  string
		want []string
	}{
		{"--S", []string{"--STOP"}},
		{"--", []string{"--STOP", "--all"}},
		{"-l", []string{"-la", "-lg"}},
		{"x", nil},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, Complete(test.arg, specs)); diff != "" {
			t.Errorf("Complete(%q) (-want +got):\n%s", test.arg, diff)
		}
	}
}
