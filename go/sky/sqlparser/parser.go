/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlparser

import (
	"skyserv.io/skyserv/go/sky/skyerrors"
)

// Parse parses the SQL in full and returns a Statement, which is the AST
// representation of the query. Only SELECT is accepted: the czar is a
// read-only coordinator.
func Parse(sql string) (Statement, error) {
	return ParseSelect(sql)
}

// ParseSelect parses a SELECT statement.
func ParseSelect(sql string) (*Select, error) {
	p := &parser{tkn: NewStringTokenizer(sql)}
	p.advance()
	sel, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.tok != 0 {
		return nil, p.unexpected("end of statement")
	}
	return sel, nil
}

type parser struct {
	tkn *Tokenizer
	tok int
	val []byte
}

func (p *parser) advance() {
	p.tok, p.val = p.tkn.Scan()
}

func (p *parser) expect(tok int, what string) error {
	if p.tok != tok {
		return p.unexpected(what)
	}
	p.advance()
	return nil
}

func (p *parser) unexpected(what string) error {
	got := string(p.val)
	if got == "" {
		got = "end of statement"
	}
	return p.tkn.errorAt("expected %s, got %q", what, got)
}

func (p *parser) parseSelect() (*Select, error) {
	if err := p.expect(SELECT, "select"); err != nil {
		return nil, err
	}
	sel := &Select{}
	if p.tok == DISTINCT {
		sel.Distinct = true
		p.advance()
	}

	var err error
	if sel.SelectExprs, err = p.parseSelectExprs(); err != nil {
		return nil, err
	}
	if p.tok != FROM {
		return nil, p.unexpected("from")
	}
	p.advance()
	if sel.From, err = p.parseTableExprs(); err != nil {
		return nil, err
	}
	if p.tok == WHERE {
		p.advance()
		if sel.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.tok == GROUP {
		p.advance()
		if err = p.expect(BY, "by"); err != nil {
			return nil, err
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, expr)
			if p.tok != ',' {
				break
			}
			p.advance()
		}
	}
	if p.tok == HAVING {
		p.advance()
		if sel.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.tok == ORDER {
		p.advance()
		if err = p.expect(BY, "by"); err != nil {
			return nil, err
		}
		for {
			order := &Order{Direction: AscScr}
			if order.Expr, err = p.parseExpr(); err != nil {
				return nil, err
			}
			switch p.tok {
			case ASC:
				p.advance()
			case DESC:
				order.Direction = DescScr
				p.advance()
			}
			sel.OrderBy = append(sel.OrderBy, order)
			if p.tok != ',' {
				break
			}
			p.advance()
		}
	}
	if p.tok == LIMIT {
		p.advance()
		if sel.Limit, err = p.parseLimit(); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

func (p *parser) parseLimit() (*Limit, error) {
	first, err := p.parseValExpr()
	if err != nil {
		return nil, err
	}
	switch p.tok {
	case ',':
		p.advance()
		rowcount, err := p.parseValExpr()
		if err != nil {
			return nil, err
		}
		return &Limit{Offset: first, Rowcount: rowcount}, nil
	case OFFSET:
		p.advance()
		offset, err := p.parseValExpr()
		if err != nil {
			return nil, err
		}
		return &Limit{Offset: offset, Rowcount: first}, nil
	}
	return &Limit{Rowcount: first}, nil
}

func (p *parser) parseSelectExprs() (SelectExprs, error) {
	var exprs SelectExprs
	for {
		expr, err := p.parseSelectExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if p.tok != ',' {
			return exprs, nil
		}
		p.advance()
	}
}

func (p *parser) parseSelectExpr() (SelectExpr, error) {
	if p.tok == '*' {
		p.advance()
		return &StarExpr{}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	// ID '.' '*' parses as a ColName followed by '. *'? No: the primary
	// parser consumes the qualified form, so a trailing '.*' only occurs
	// right after a bare identifier.
	if col, ok := expr.(*ColName); ok && col.Qualifier == "" && p.tok == '.' {
		p.advance()
		if err := p.expect('*', "*"); err != nil {
			return nil, err
		}
		return &StarExpr{TableName: TableName{Name: col.Name}}, nil
	}
	aliased := &AliasedExpr{Expr: expr}
	if p.tok == AS {
		p.advance()
		if p.tok != ID {
			return nil, p.unexpected("alias")
		}
		aliased.As = string(p.val)
		p.advance()
	} else if p.tok == ID {
		aliased.As = string(p.val)
		p.advance()
	}
	return aliased, nil
}

func (p *parser) parseTableExprs() (TableExprs, error) {
	var exprs TableExprs
	for {
		expr, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if p.tok != ',' {
			return exprs, nil
		}
		p.advance()
	}
}

func (p *parser) parseTableExpr() (TableExpr, error) {
	left, err := p.parseTableFactor()
	if err != nil {
		return nil, err
	}
	for {
		natural := false
		join := JoinStr
		switch p.tok {
		case NATURAL:
			natural = true
			p.advance()
			switch p.tok {
			case LEFT:
				join = LeftJoinStr
				p.advance()
				if p.tok == OUTER {
					p.advance()
				}
			case RIGHT:
				join = RightJoinStr
				p.advance()
				if p.tok == OUTER {
					p.advance()
				}
			case INNER:
				p.advance()
			}
		case JOIN:
		case INNER:
			p.advance()
		case CROSS:
			join = CrossJoinStr
			p.advance()
		case LEFT:
			join = LeftJoinStr
			p.advance()
			if p.tok == OUTER {
				p.advance()
			}
		case RIGHT:
			join = RightJoinStr
			p.advance()
			if p.tok == OUTER {
				p.advance()
			}
		default:
			return left, nil
		}
		if err := p.expect(JOIN, "join"); err != nil {
			return nil, err
		}
		right, err := p.parseTableFactor()
		if err != nil {
			return nil, err
		}
		node := &JoinTableExpr{LeftExpr: left, Join: join, RightExpr: right}
		node.Condition.Natural = natural
		if !natural {
			switch p.tok {
			case ON:
				p.advance()
				if node.Condition.On, err = p.parseExpr(); err != nil {
					return nil, err
				}
			case USING:
				p.advance()
				if err := p.expect('(', "("); err != nil {
					return nil, err
				}
				for {
					if p.tok != ID {
						return nil, p.unexpected("column name")
					}
					node.Condition.Using = append(node.Condition.Using, string(p.val))
					p.advance()
					if p.tok != ',' {
						break
					}
					p.advance()
				}
				if err := p.expect(')', ")"); err != nil {
					return nil, err
				}
			}
		}
		left = node
	}
}

func (p *parser) parseTableFactor() (TableExpr, error) {
	if p.tok != ID {
		return nil, p.unexpected("table name")
	}
	name := TableName{Name: string(p.val)}
	p.advance()
	if p.tok == '.' {
		p.advance()
		if p.tok != ID {
			return nil, p.unexpected("table name")
		}
		name = TableName{Qualifier: name.Name, Name: string(p.val)}
		p.advance()
	}
	expr := &AliasedTableExpr{Expr: name}
	if p.tok == AS {
		p.advance()
		if p.tok != ID {
			return nil, p.unexpected("alias")
		}
		expr.As = string(p.val)
		p.advance()
	} else if p.tok == ID {
		expr.As = string(p.val)
		p.advance()
	}
	return expr, nil
}

// parseExpr parses a boolean expression with standard precedence:
// OR < AND < NOT < predicates.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok == OR {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok == AND {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.tok == NOT {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Expr, error) {
	left, err := p.parseValExpr()
	if err != nil {
		return nil, err
	}
	switch p.tok {
	case '=':
		p.advance()
		return p.finishComparison(EqualStr, left)
	case '<':
		p.advance()
		return p.finishComparison(LessThanStr, left)
	case '>':
		p.advance()
		return p.finishComparison(GreaterThanStr, left)
	case LE:
		p.advance()
		return p.finishComparison(LessEqualStr, left)
	case GE:
		p.advance()
		return p.finishComparison(GreaterEqualStr, left)
	case NE:
		p.advance()
		return p.finishComparison(NotEqualStr, left)
	case LIKE:
		p.advance()
		return p.finishComparison(LikeStr, left)
	case BETWEEN:
		p.advance()
		return p.finishBetween(BetweenStr, left)
	case IN:
		p.advance()
		return p.finishIn(InStr, left)
	case IS:
		p.advance()
		operator := IsNullStr
		if p.tok == NOT {
			operator = IsNotNullStr
			p.advance()
		}
		if err := p.expect(NULL, "null"); err != nil {
			return nil, err
		}
		return &IsExpr{Operator: operator, Expr: left}, nil
	case NOT:
		p.advance()
		switch p.tok {
		case LIKE:
			p.advance()
			return p.finishComparison(NotLikeStr, left)
		case BETWEEN:
			p.advance()
			return p.finishBetween(NotBetweenStr, left)
		case IN:
			p.advance()
			return p.finishIn(NotInStr, left)
		}
		return nil, p.unexpected("like, between or in")
	}
	return left, nil
}

func (p *parser) finishComparison(operator string, left Expr) (Expr, error) {
	right, err := p.parseValExpr()
	if err != nil {
		return nil, err
	}
	return &ComparisonExpr{Operator: operator, Left: left, Right: right}, nil
}

func (p *parser) finishBetween(operator string, left Expr) (Expr, error) {
	from, err := p.parseValExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(AND, "and"); err != nil {
		return nil, err
	}
	to, err := p.parseValExpr()
	if err != nil {
		return nil, err
	}
	return &RangeCond{Operator: operator, Left: left, From: from, To: to}, nil
}

func (p *parser) finishIn(operator string, left Expr) (Expr, error) {
	if err := p.expect('(', "("); err != nil {
		return nil, err
	}
	var tuple ValTuple
	for {
		expr, err := p.parseValExpr()
		if err != nil {
			return nil, err
		}
		tuple = append(tuple, expr)
		if p.tok != ',' {
			break
		}
		p.advance()
	}
	if err := p.expect(')', ")"); err != nil {
		return nil, err
	}
	return &ComparisonExpr{Operator: operator, Left: left, Right: tuple}, nil
}

func (p *parser) parseValExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok == '+' || p.tok == '-' {
		operator := string(rune(p.tok))
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Operator: operator, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok == '*' || p.tok == '/' || p.tok == '%' {
		operator := string(rune(p.tok))
		p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Operator: operator, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (Expr, error) {
	switch p.tok {
	case '-', '+':
		operator := string(rune(p.tok))
		p.advance()
		expr, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		// Fold the sign into numeric literals.
		if val, ok := expr.(*SQLVal); ok && operator == "-" && (val.Type == IntVal || val.Type == FloatVal) {
			val.Val = append([]byte("-"), val.Val...)
			return val, nil
		}
		if operator == "+" {
			return expr, nil
		}
		return &UnaryExpr{Operator: operator, Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.tok {
	case NUMBER:
		val := p.val
		p.advance()
		if bytesContainsAny(val, ".eE") {
			return NewFloatVal(val), nil
		}
		return NewIntVal(val), nil
	case STRING:
		val := p.val
		p.advance()
		return NewStrVal(val), nil
	case NULL:
		p.advance()
		return &NullVal{}, nil
	case '(':
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')', ")"); err != nil {
			return nil, err
		}
		return &ParenExpr{Expr: expr}, nil
	case ID:
		name := string(p.val)
		p.advance()
		switch p.tok {
		case '(':
			return p.parseFuncCall(name)
		case '.':
			// Qualified column. A trailing '.*' is handled by the
			// select-expression parser.
			save := *p.tkn
			saveTok, saveVal := p.tok, p.val
			p.advance()
			if p.tok == ID {
				qualifier, column := name, string(p.val)
				p.advance()
				// db.table.column form.
				if p.tok == '.' {
					save = *p.tkn
					saveTok, saveVal = p.tok, p.val
					p.advance()
					if p.tok == ID {
						qualifier = qualifier + "." + column
						column = string(p.val)
						p.advance()
					} else {
						*p.tkn = save
						p.tok, p.val = saveTok, saveVal
					}
				}
				return &ColName{Qualifier: qualifier, Name: column}, nil
			}
			*p.tkn = save
			p.tok, p.val = saveTok, saveVal
			return &ColName{Name: name}, nil
		}
		return &ColName{Name: name}, nil
	}
	return nil, p.unexpected("expression")
}

func (p *parser) parseFuncCall(name string) (Expr, error) {
	p.advance() // '('
	fn := &FuncExpr{Name: name}
	if p.tok == DISTINCT {
		fn.Distinct = true
		p.advance()
	}
	if p.tok == ')' {
		p.advance()
		return fn, nil
	}
	for {
		if p.tok == '*' {
			p.advance()
			fn.Exprs = append(fn.Exprs, &StarExpr{})
		} else {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fn.Exprs = append(fn.Exprs, &AliasedExpr{Expr: expr})
		}
		if p.tok != ',' {
			break
		}
		p.advance()
	}
	if err := p.expect(')', ")"); err != nil {
		return nil, err
	}
	return fn, nil
}

func bytesContainsAny(b []byte, chars string) bool {
	for _, c := range b {
		for i := 0; i < len(chars); i++ {
			if c == chars[i] {
				return true
			}
		}
	}
	return false
}

// ParseError reports whether err came from the parser.
func ParseError(err error) bool {
	return skyerrors.CodeOf(err) == skyerrors.InvalidArgument
}
