package dynamo

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestCondExpression(t *testing.T) {
	tests := []struct {
		name string
		cond Cond
		want string
	}{
		{
			"zero value is unconditional",
			Cond{},
			"",
		},
		{
			"key absent",
			Cond{KeyAttr: "slug", KeyAbsent: true},
			"attribute_not_exists(#pk)",
		},
		{
			"key absent with field equals renders the conjunction",
			Cond{KeyAttr: "slug", KeyAbsent: true, FieldEquals: map[string]string{"projectId": "prj_1"}},
			"attribute_not_exists(#pk) AND #c0 = :c0",
		},
		{
			"key present",
			Cond{KeyAttr: "slug", KeyPresent: true},
			"attribute_exists(#pk)",
		},
		{
			"key present with owner check",
			Cond{KeyAttr: "slug", KeyPresent: true, FieldEquals: map[string]string{"projectId": "prj_1"}},
			"attribute_exists(#pk) AND #c0 = :c0",
		},
		{
			"claim disjunct",
			Cond{KeyAttr: "slug", OrKeyAbsent: true, FieldEquals: map[string]string{"projectId": "prj_1"}},
			"attribute_not_exists(#pk) OR (attribute_exists(#pk) AND #c0 = :c0)",
		},
		{
			"field equals only",
			Cond{FieldEquals: map[string]string{"version": "v1"}},
			"#c0 = :c0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, _, _ := tt.cond.expression()
			if tt.want == "" {
				if expr != nil {
					t.Fatalf("expression = %q, want nil", aws.ToString(expr))
				}
				return
			}
			if got := aws.ToString(expr); got != tt.want {
				t.Fatalf("expression = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateExpressionSingleActionKeyword(t *testing.T) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	upd := Update{
		Set:           Item{"version": S("v2"), "configJson": S("{}")},
		AddToSet:      map[string][]string{"webhookListeners": {"l1"}, "tags": {"t1"}},
		DeleteFromSet: map[string][]string{"webhookListeners": {"l2"}, "tags": {"t2"}},
	}

	expr := upd.expression(names, values)

	// Each action keyword may appear once; multiple actions are comma-joined.
	for _, keyword := range []string{"SET", "ADD", "DELETE"} {
		if got := strings.Count(expr, keyword); got != 1 {
			t.Errorf("%s appears %d times in %q, want 1", keyword, got, expr)
		}
	}
	want := "SET #s0 = :s0, #s1 = :s1 ADD #a0 :a0, #a1 :a1 DELETE #d0 :d0, #d1 :d1"
	if expr != want {
		t.Fatalf("expression = %q, want %q", expr, want)
	}
	if len(names) != 6 || len(values) != 6 {
		t.Fatalf("names/values = %d/%d entries, want 6/6", len(names), len(values))
	}
}
