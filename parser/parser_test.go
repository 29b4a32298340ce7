package parser

import (
	"testing"

	"github.com/ashenford/rvm32/ast"
	"github.com/ashenford/rvm32/ident"
	"github.com/ashenford/rvm32/lexer"
)

func parse(t *testing.T, src string) ([]ast.Node, *ident.Table) {
	t.Helper()
	table := ident.NewTable()
	nodes, err := Parse(lexer.New(src), table)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", src, err)
	}
	return nodes, table
}

func TestParseLabelThenInstruction(t *testing.T) {
	nodes, table := parse(t, "loop: addi %x1, %x2, 5\n")

	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2: %+v", len(nodes), nodes)
	}
	if nodes[0].Kind != ast.KindLabel || table.Name(nodes[0].Sym) != "loop" {
		t.Errorf("node 0 = %+v, want label \"loop\"", nodes[0])
	}
	if nodes[1].Kind != ast.KindInst || table.Name(nodes[1].Sym) != "addi" {
		t.Errorf("node 1 = %+v, want inst \"addi\"", nodes[1])
	}
	if len(nodes[1].Args) != 3 {
		t.Fatalf("got %d args, want 3: %+v", len(nodes[1].Args), nodes[1].Args)
	}
	if nodes[1].Args[0].Kind != ast.ArgReg || nodes[1].Args[0].Reg != 1 {
		t.Errorf("arg 0 = %+v, want reg 1", nodes[1].Args[0])
	}
	if nodes[1].Args[1].Kind != ast.ArgReg || nodes[1].Args[1].Reg != 2 {
		t.Errorf("arg 1 = %+v, want reg 2", nodes[1].Args[1])
	}
}

func TestParseAssignment(t *testing.T) {
	nodes, table := parse(t, "count = 5\n")
	if len(nodes) != 1 || nodes[0].Kind != ast.KindAssign {
		t.Fatalf("got %+v, want a single KindAssign node", nodes)
	}
	if table.Name(nodes[0].Sym) != "count" {
		t.Errorf("assign target = %q, want \"count\"", table.Name(nodes[0].Sym))
	}
}

func TestExpressionPrecedence(t *testing.T) {
	nodes, _ := parse(t, "li %x1, 1 + 2 * 3\n")
	expr := nodes[0].Args[1].Expr

	want := []ast.ExprOpKind{ast.OpInt, ast.OpInt, ast.OpInt, ast.OpMul, ast.OpAdd}
	if len(expr) != len(want) {
		t.Fatalf("got %d RPN ops, want %d: %+v", len(expr), len(want), expr)
	}
	for i, k := range want {
		if expr[i].Kind != k {
			t.Errorf("op %d: got %v, want %v", i, expr[i].Kind, k)
		}
	}
	if expr[0].Int != 1 || expr[1].Int != 2 || expr[2].Int != 3 {
		t.Errorf("operand values = %d,%d,%d, want 1,2,3", expr[0].Int, expr[1].Int, expr[2].Int)
	}
}

func TestParenthesizedExpression(t *testing.T) {
	nodes, _ := parse(t, "li %x1, (1 + 2) * 3\n")
	expr := nodes[0].Args[1].Expr

	want := []ast.ExprOpKind{ast.OpInt, ast.OpInt, ast.OpAdd, ast.OpInt, ast.OpMul}
	if len(expr) != len(want) {
		t.Fatalf("got %d RPN ops, want %d: %+v", len(expr), len(want), expr)
	}
	for i, k := range want {
		if expr[i].Kind != k {
			t.Errorf("op %d: got %v, want %v", i, expr[i].Kind, k)
		}
	}
}

func TestUnaryMinus(t *testing.T) {
	nodes, _ := parse(t, "li %x1, -5\n")
	expr := nodes[0].Args[1].Expr

	want := []ast.ExprOpKind{ast.OpInt, ast.OpInt, ast.OpSub}
	if len(expr) != len(want) {
		t.Fatalf("got %d RPN ops, want %d: %+v", len(expr), len(want), expr)
	}
	if expr[0].Int != 0 || expr[1].Int != 5 {
		t.Errorf("operands = %d,%d, want 0,5", expr[0].Int, expr[1].Int)
	}
}

func TestMissingClosingParenIsError(t *testing.T) {
	table := ident.NewTable()
	_, err := Parse(lexer.New("li %x1, (1 + 2\n"), table)
	perr, ok := err.(*Error)
	if !ok || perr.Kind != MissingClosingParen {
		t.Fatalf("got %v, want *Error{Kind: MissingClosingParen}", err)
	}
}

func TestInvalidRegisterNameIsError(t *testing.T) {
	table := ident.NewTable()
	_, err := Parse(lexer.New("addi %bogus, %x1, 1\n"), table)
	perr, ok := err.(*Error)
	if !ok || perr.Kind != InvalidRegName {
		t.Fatalf("got %v, want *Error{Kind: InvalidRegName}", err)
	}
}

func TestRegisterAliases(t *testing.T) {
	nodes, _ := parse(t, "addi %sp, %zero, 0\n")
	if nodes[0].Args[0].Reg != 2 {
		t.Errorf("sp alias = %d, want register 2", nodes[0].Args[0].Reg)
	}
	if nodes[0].Args[1].Reg != 0 {
		t.Errorf("zero alias = %d, want register 0", nodes[0].Args[1].Reg)
	}
}
