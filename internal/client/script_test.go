package client

import (
	"errors"
	"strings"
	"testing"
)

func TestParseScript(t *testing.T) {
	input := `
"trans=create&name=ibm&trade=100" "Stock ibm created with balance = 100"
trans=status&name=ibm "Balance for stock ibm = 100"
run 2 3

"trans=buy&name=ibm&trade=5"   "Stock ibm's balance updated"
nowait 1 1
"trans=status&name=x" "Stock not found"
`
	script, err := ParseScript(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(script.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(script.Blocks))
	}

	b0 := script.Blocks[0]
	if b0.Threads != 2 || b0.Reps != 3 || b0.Nowait {
		t.Errorf("block 0 = %+v", b0)
	}
	want := []Check{
		{Request: "trans=create&name=ibm&trade=100", Expected: "Stock ibm created with balance = 100"},
		{Request: "trans=status&name=ibm", Expected: "Balance for stock ibm = 100"},
	}
	if len(b0.Checks) != len(want) {
		t.Fatalf("block 0 checks = %+v", b0.Checks)
	}
	for i := range want {
		if b0.Checks[i] != want[i] {
			t.Errorf("check %d = %+v, want %+v", i, b0.Checks[i], want[i])
		}
	}

	b1 := script.Blocks[1]
	if !b1.Nowait || b1.Threads != 1 || b1.Reps != 1 || len(b1.Checks) != 1 {
		t.Errorf("block 1 = %+v", b1)
	}
	if b1.Checks[0].Expected != "Stock ibm's balance updated" {
		t.Errorf("expected = %q", b1.Checks[0].Expected)
	}

	if len(script.Trailing) != 1 || script.Trailing[0].Expected != "Stock not found" {
		t.Errorf("trailing = %+v", script.Trailing)
	}
}

func TestParseScript_Escapes(t *testing.T) {
	script, err := ParseScript(strings.NewReader(`"a\"b" "back\\slash" run 1 1`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := script.Blocks[0].Checks[0]
	if c.Request != `a"b` || c.Expected != `back\slash` {
		t.Errorf("check = %+v", c)
	}
}

func TestParseScript_Empty(t *testing.T) {
	script, err := ParseScript(strings.NewReader("  \n\t"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(script.Blocks) != 0 || len(script.Trailing) != 0 {
		t.Errorf("expected empty script, got %+v", script)
	}
}

func TestParseScript_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated quote", `"trans=status`},
		{"missing expected", `"trans=status&name=ibm"`},
		{"run without args", `"a" "b" run`},
		{"run missing reps", `"a" "b" run 2`},
		{"non-numeric threads", `"a" "b" run many 1`},
		{"zero reps", `"a" "b" nowait 1 0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript(strings.NewReader(tt.input))
			if !errors.Is(err, ErrScriptSyntax) {
				t.Fatalf("expected ErrScriptSyntax, got %v", err)
			}
		})
	}
}
