package sniff

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Kind
	}{
		{"42", KindInteger},
		{"-17", KindInteger},
		{" (7) ", KindInteger},
		{"0x1F", KindInteger},
		{"0b101", KindInteger},
		{"3.14", KindFloat},
		{"1e5", KindFloat},
		{"-2.5E-3", KindFloat},
		{".5", KindFloat},
		{"True", KindBool},
		{"False", KindBool},
		{"'abc'", KindString},
		{`"x y"`, KindString},
		{"abc", KindNone},
		{"", KindNone},
		{"true", KindNone},
		{"inf", KindNone},
		{"NaN", KindNone},
		{"1_000", KindNone},
		{"1.2.3", KindNone},
		{`"a"b"`, KindNone},
		{"99999999999999999999", KindNone},
		{"1e999", KindNone},
	}

	for _, tt := range tests {
		if got := classify(tt.in); got != tt.want {
			t.Fatalf("classify(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConstructible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		text string
		want bool
	}{
		{KindInteger, "12", true},
		{KindInteger, "1.5", true},
		{KindInteger, "True", true},
		{KindInteger, "'12'", true},
		{KindInteger, "age", false},
		{KindInteger, "'age'", false},
		{KindInteger, "", true},
		{KindFloat, "'2.5'", true},
		{KindFloat, "'x'", false},
		{KindFloat, "price", false},
		{KindBool, "7", true},
		{KindBool, "yes", false},
		{KindString, "'abc'", true},
		{KindString, "abc", false},
		{KindString, "  ", true},
	}

	for _, tt := range tests {
		if got := constructible(tt.kind, tt.text); got != tt.want {
			t.Fatalf("constructible(%v, %q) = %v, want %v", tt.kind, tt.text, got, tt.want)
		}
	}
}

func TestShapeOf(t *testing.T) {
	t.Parallel()

	if s := shapeOf("123"); s.isLength() || s.kind != KindInteger {
		t.Fatalf("shapeOf(%q) = %+v, want integer kind", "123", s)
	}
	if s := shapeOf("héllo"); !s.isLength() || s.length != 5 {
		t.Fatalf("shapeOf(%q) = %+v, want length 5", "héllo", s)
	}
}
