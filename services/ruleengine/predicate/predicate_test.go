package predicate

import (
	"regexp"
	"testing"
)

func TestParseOperatorRoundTrip(t *testing.T) {
	for _, name := range []string{
		"EQUAL_TO", "NOT_EQUAL_TO", "IS_ANY_OF", "IS_NONE_OF",
		"GREATER_THAN", "GREATER_THAN_OR_EQUAL", "LESS_THAN",
		"LESS_THAN_OR_EQUAL", "BETWEEN", "CONTAINS", "STARTS_WITH",
		"ENDS_WITH", "REGEX", "IS_NULL", "IS_NOT_NULL",
	} {
		op, ok := ParseOperator(name)
		if !ok {
			t.Fatalf("ParseOperator(%q) failed", name)
		}
		if op.String() != name {
			t.Fatalf("round trip mismatch: %q -> %v -> %q", name, op, op.String())
		}
	}
}

func TestParseOperatorUnknown(t *testing.T) {
	if _, ok := ParseOperator("NOT_AN_OPERATOR"); ok {
		t.Fatal("expected ParseOperator to fail on unknown operator")
	}
}

func TestIsStaticVsDynamic(t *testing.T) {
	static := []Operator{EqualTo, NotEqualTo, IsAnyOf, IsNoneOf, IsNull, IsNotNull,
		GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Between}
	dynamic := []Operator{Contains, StartsWith, EndsWith, Regex}

	for _, op := range static {
		if !op.IsStatic() {
			t.Errorf("%v should be static", op)
		}
	}
	for _, op := range dynamic {
		if op.IsStatic() {
			t.Errorf("%v should be dynamic", op)
		}
	}
}

func TestValueIntListCanonicalizesSortAndDedup(t *testing.T) {
	a := ValueIntList([]int64{3, 1, 2, 1})
	b := ValueIntList([]int64{1, 2, 3})
	if !a.Equal(b) {
		t.Fatalf("expected canonicalized int lists to be equal: %v vs %v", a.IDs, b.IDs)
	}
}

func TestEqualToStringCaseSensitiveAtThisLayer(t *testing.T) {
	// Case-insensitivity is applied by the event encoder before values
	// reach predicate.Eval; at this layer string equality is a byte
	// comparison on whatever was passed in.
	p := &Predicate{Op: EqualTo, Value: ValueString("ACTIVE")}
	if r := p.Eval(ValueString("ACTIVE"), true, false); r != True {
		t.Fatalf("expected True, got %v", r)
	}
	if r := p.Eval(ValueString("active"), true, false); r != False {
		t.Fatalf("expected False on case mismatch at this layer, got %v", r)
	}
}

func TestIsAnyOfEmptyEventValueIsFalse(t *testing.T) {
	p := &Predicate{Op: IsAnyOf, PreCompiled: PreCompiled{SortedInts: []int64{1, 2}}}
	if r := p.Eval(Value{}, false, false); r != False {
		t.Fatalf("IS_ANY_OF with absent field should be False, got %v", r)
	}
}

func TestIsNoneOfEmptyEventValueIsTrue(t *testing.T) {
	p := &Predicate{Op: IsNoneOf, PreCompiled: PreCompiled{SortedInts: []int64{1, 2}}}
	if r := p.Eval(Value{}, false, false); r != True {
		t.Fatalf("IS_NONE_OF with absent field should be True, got %v", r)
	}
}

func TestBetweenInclusiveBounds(t *testing.T) {
	p := &Predicate{Op: Between, Value: ValueFloatRange(18, 65), PreCompiled: PreCompiled{Lo: 18, Hi: 65}}
	cases := []struct {
		age  float64
		want EvalResult
	}{
		{17, False}, {18, True}, {30, True}, {65, True}, {66, False},
	}
	for _, c := range cases {
		if r := p.Eval(ValueFloat(c.age), true, false); r != c.want {
			t.Errorf("age=%v: got %v want %v", c.age, r, c.want)
		}
	}
}

func TestNumericNonNumericEventValueIsFalse(t *testing.T) {
	p := &Predicate{Op: GreaterThan, Value: ValueFloat(10)}
	if r := p.Eval(ValueString("not a number"), true, false); r != False {
		t.Fatalf("expected False for non-numeric event value, got %v", r)
	}
}

func TestIsNullIsNotNull(t *testing.T) {
	isNull := &Predicate{Op: IsNull}
	isNotNull := &Predicate{Op: IsNotNull}

	if r := isNull.Eval(Value{}, false, false); r != True {
		t.Fatalf("IS_NULL on absent field should be True, got %v", r)
	}
	if r := isNull.Eval(ValueString("x"), true, true); r != True {
		t.Fatalf("IS_NULL on explicit null should be True, got %v", r)
	}
	if r := isNull.Eval(ValueString("x"), true, false); r != False {
		t.Fatalf("IS_NULL on present non-null should be False, got %v", r)
	}
	if r := isNotNull.Eval(ValueString("x"), true, false); r != True {
		t.Fatalf("IS_NOT_NULL on present non-null should be True, got %v", r)
	}
}

func TestRegexFullMatchOriginalCase(t *testing.T) {
	re := regexp.MustCompile(`^.*@company\.com$`)
	p := &Predicate{Op: Regex, PreCompiled: PreCompiled{Regex: re}}
	if r := p.Eval(ValueString("u@company.com"), true, false); r != True {
		t.Fatalf("expected match, got %v", r)
	}
	if r := p.Eval(ValueString("u@other.com"), true, false); r != False {
		t.Fatalf("expected no match, got %v", r)
	}
}

func TestContainsStartsWithEndsWith(t *testing.T) {
	contains := &Predicate{Op: Contains, Value: ValueString("oo")}
	if r := contains.Eval(ValueString("foobar"), true, false); r != True {
		t.Fatalf("CONTAINS should match, got %v", r)
	}
	starts := &Predicate{Op: StartsWith, Value: ValueString("foo")}
	if r := starts.Eval(ValueString("foobar"), true, false); r != True {
		t.Fatalf("STARTS_WITH should match, got %v", r)
	}
	ends := &Predicate{Op: EndsWith, Value: ValueString("bar")}
	if r := ends.Eval(ValueString("foobar"), true, false); r != True {
		t.Fatalf("ENDS_WITH should match, got %v", r)
	}
}

func TestFieldAbsentForNonNullityStaticOperators(t *testing.T) {
	p := &Predicate{Op: EqualTo, Value: ValueString("X")}
	if r := p.Eval(Value{}, false, false); r != FieldAbsent {
		t.Fatalf("EQUAL_TO on absent field should report FieldAbsent, got %v", r)
	}
}

func TestIdentityKeyIgnoresWeightAndSelectivity(t *testing.T) {
	a := &Predicate{FieldID: 1, Op: EqualTo, Value: ValueString("X"), Weight: 0.1, Selectivity: 0.2}
	b := &Predicate{FieldID: 1, Op: EqualTo, Value: ValueString("X"), Weight: 99, Selectivity: 99}
	if a.IdentityKey() != b.IdentityKey() {
		t.Fatal("identity key must not depend on weight/selectivity")
	}
}
