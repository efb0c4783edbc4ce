package table

import (
	"strings"
	"testing"
)

func TestTable_Render(t *testing.T) {
	tbl := New("Nickname", "iOS")
	tbl.Append("xr", "17.0")
	tbl.Append("iphone-se-2020", "15.7")

	out := tbl.Render()
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("Render() = %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Nickname") || !strings.Contains(lines[3], "iphone-se-2020") {
		t.Errorf("Render() =\n%s", out)
	}
	if !strings.HasPrefix(lines[1], strings.Repeat("-", len("iphone-se-2020")+2)+"+") {
		t.Errorf("separator = %q", lines[1])
	}
	if tbl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tbl.Len())
	}
}

func TestTable_ShortRow(t *testing.T) {
	tbl := New("a", "b", "c")
	tbl.Append("1")
	if out := tbl.Render(); !strings.Contains(out, "1") {
		t.Errorf("Render() = %q", out)
	}
}

func TestTable_Empty(t *testing.T) {
	if out := New().Render(); out != "" {
		t.Errorf("Render() = %q, want empty", out)
	}
}
