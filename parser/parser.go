// Package parser builds an AST from a token stream, one line at a time.
// The expression grammar is operator-precedence, producing Reverse Polish
// output directly rather than building an intermediate expression tree.
package parser

import (
	"strconv"

	"github.com/ashenford/rvm32/ast"
	"github.com/ashenford/rvm32/ident"
	"github.com/ashenford/rvm32/lexer"
)

// Parse consumes every token from lx, interning identifiers into table and
// appending one ast.Node per label/assignment/instruction line. It
// returns the first error encountered, tagged with its source line.
func Parse(lx *lexer.Lexer, table *ident.Table) ([]ast.Node, error) {
	var nodes []ast.Node
	line := 1

	for {
		if tok := lx.Peek(); tok.Type == lexer.Label {
			lx.Next()
			nodes = append(nodes, ast.Node{Kind: ast.KindLabel, Sym: table.Insert(tok.Text), Line: line})
		}

		if tok := lx.Peek(); tok.Type == lexer.Ident {
			lx.Next()
			sym := table.Insert(tok.Text)

			kind := ast.KindInst
			if lx.Peek().Type == lexer.Equal {
				lx.Next()
				kind = ast.KindAssign
			}

			args, err := parseArgs(lx, table)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, ast.Node{Kind: kind, Sym: sym, Args: args, Line: line})
		}

		tok := lx.Next()
		switch tok.Type {
		case lexer.Eol:
			// next line
		case lexer.Eof:
			return nodes, nil
		case lexer.Err:
			return nil, fromLexErr(tok.Kind, line)
		default:
			return nil, &Error{Kind: JunkInLine, Line: line}
		}
		line++
	}
}

func parseArgs(lx *lexer.Lexer, table *ident.Table) ([]ast.Arg, error) {
	var args []ast.Arg

	if tok := lx.Peek(); tok.Type == lexer.Eof || tok.Type == lexer.Eol {
		return args, nil
	}

	for {
		var arg ast.Arg
		switch tok := lx.Peek(); tok.Type {
		case lexer.Reg:
			lx.Next()
			reg, err := parseReg(tok.Text)
			if err != nil {
				if perr, ok := err.(*Error); ok {
					perr.Line = tok.Line
				}
				return nil, err
			}
			arg = ast.Arg{Kind: ast.ArgReg, Reg: reg}
		case lexer.Str:
			lx.Next()
			arg = ast.Arg{Kind: ast.ArgStr, Str: []byte(tok.Text)}
		default:
			expr, err := parseExpr(lx, table)
			if err != nil {
				return nil, err
			}
			arg = ast.Arg{Kind: ast.ArgExpr, Expr: expr}
		}
		args = append(args, arg)

		if lx.Peek().Type != lexer.Comma {
			return args, nil
		}
		lx.Next()
	}
}

func parseExpr(lx *lexer.Lexer, table *ident.Table) ([]ast.ExprOp, error) {
	var expr []ast.ExprOp
	if err := parsePrimaryExpr(lx, table, &expr); err != nil {
		return nil, err
	}
	if precedence(lx.Peek().Type) > 0 {
		if err := parseExprHelper(lx, table, &expr, 0); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func parseExprHelper(lx *lexer.Lexer, table *ident.Table, expr *[]ast.ExprOp, minPrec int) error {
	lookahead := lx.Peek().Type
	for {
		op := lookahead
		maxPrec := precedence(op)

		lx.Next()
		if err := parsePrimaryExpr(lx, table, expr); err != nil {
			return err
		}
		lookahead = lx.Peek().Type

		for precedence(lookahead) > maxPrec {
			if err := parseExprHelper(lx, table, expr, maxPrec); err != nil {
				return err
			}
			lookahead = lx.Peek().Type
		}

		*expr = append(*expr, tokenToBinop(op))

		if precedence(lookahead) <= minPrec {
			return nil
		}
	}
}

func parsePrimaryExpr(lx *lexer.Lexer, table *ident.Table, expr *[]ast.ExprOp) error {
	tok := lx.Peek()
	switch tok.Type {
	case lexer.Lparen:
		lx.Next()
		sub, err := parseExpr(lx, table)
		if err != nil {
			return err
		}
		*expr = append(*expr, sub...)
		if lx.Next().Type != lexer.Rparen {
			return &Error{Kind: MissingClosingParen, Line: tok.Line}
		}
		return nil

	case lexer.Add, lexer.Sub, lexer.Xor:
		lx.Next()
		switch tok.Type {
		case lexer.Sub:
			*expr = append(*expr, ast.ExprOp{Kind: ast.OpInt, Int: 0})
		case lexer.Xor:
			*expr = append(*expr, ast.ExprOp{Kind: ast.OpInt, Int: ^uint32(0)})
		}
		if err := parsePrimaryExpr(lx, table, expr); err != nil {
			return err
		}
		switch tok.Type {
		case lexer.Sub:
			*expr = append(*expr, ast.ExprOp{Kind: ast.OpSub})
		case lexer.Xor:
			*expr = append(*expr, ast.ExprOp{Kind: ast.OpXor})
		}
		return nil

	case lexer.Char:
		lx.Next()
		*expr = append(*expr, ast.ExprOp{Kind: ast.OpInt, Int: uint32(tok.Ch)})
		return nil

	case lexer.Int:
		lx.Next()
		value, err := parseInt(tok.Text)
		if err != nil {
			return &Error{Kind: InvalidIntLiteral, Line: tok.Line}
		}
		*expr = append(*expr, ast.ExprOp{Kind: ast.OpInt, Int: value})
		return nil

	case lexer.Ident:
		lx.Next()
		*expr = append(*expr, ast.ExprOp{Kind: ast.OpLabel, Label: table.Insert(tok.Text)})
		return nil

	case lexer.Err:
		return fromLexErr(tok.Kind, tok.Line)

	default:
		return &Error{Kind: ExpectedExpr, Line: tok.Line}
	}
}

func precedence(t lexer.TokenType) int {
	switch t {
	case lexer.Shl, lexer.Lshr, lexer.Ashr:
		return 3
	case lexer.And, lexer.Mul:
		return 2
	case lexer.Add, lexer.Sub, lexer.Or, lexer.Xor:
		return 1
	default:
		return 0
	}
}

func tokenToBinop(t lexer.TokenType) ast.ExprOp {
	switch t {
	case lexer.Add:
		return ast.ExprOp{Kind: ast.OpAdd}
	case lexer.Sub:
		return ast.ExprOp{Kind: ast.OpSub}
	case lexer.And:
		return ast.ExprOp{Kind: ast.OpAnd}
	case lexer.Mul:
		return ast.ExprOp{Kind: ast.OpMul}
	case lexer.Or:
		return ast.ExprOp{Kind: ast.OpOr}
	case lexer.Xor:
		return ast.ExprOp{Kind: ast.OpXor}
	case lexer.Shl:
		return ast.ExprOp{Kind: ast.OpShl}
	case lexer.Lshr:
		return ast.ExprOp{Kind: ast.OpLshr}
	case lexer.Ashr:
		return ast.ExprOp{Kind: ast.OpAshr}
	default:
		panic("tokenToBinop: not an operator token")
	}
}

// registerNames maps every accepted register mnemonic to its index.
var registerNames = map[string]uint32{
	"x0": 0, "zero": 0,
	"x1": 1, "lr": 1,
	"x2": 2, "sp": 2,
	"x3": 3, "a0": 3,
	"x4": 4, "a1": 4,
	"x5": 5, "a2": 5,
	"x6": 6, "a3": 6,
	"x7": 7, "a4": 7,
	"x8": 8, "a5": 8,
	"x9": 9, "s0": 9,
	"x10": 10, "s1": 10,
	"x11": 11, "s2": 11,
	"x12": 12, "s3": 12,
	"x13": 13, "s4": 13,
	"x14": 14, "s5": 14,
	"x15": 15, "s6": 15,
}

func parseReg(s string) (uint32, error) {
	if reg, ok := registerNames[s]; ok {
		return reg, nil
	}
	if s == "" {
		return 0, &Error{Kind: MissingRegName}
	}
	return 0, &Error{Kind: InvalidRegName}
}

// parseInt mirrors the reference assembler's fast-path integer grammar:
// one or two decimal digits parse directly; three or more characters
// require either a "0x"/"0X" hex prefix or a plain decimal literal.
func parseInt(s string) (uint32, error) {
	switch {
	case len(s) == 1:
		if s[0] < '0' || s[0] > '9' {
			return 0, strconv.ErrSyntax
		}
		return uint32(s[0] - '0'), nil
	case len(s) == 2:
		if s[1] < '0' || s[1] > '9' {
			return 0, strconv.ErrSyntax
		}
		return uint32(s[0]-'0')*10 + uint32(s[1]-'0'), nil
	default:
		if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			v, err := strconv.ParseUint(s[2:], 16, 32)
			return uint32(v), err
		}
		v, err := strconv.ParseUint(s, 10, 32)
		return uint32(v), err
	}
}
