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

// Deep copies are structural: the rewrite passes mutate their own copy of
// the statement while the caller keeps the original.

// CloneSelect returns a deep copy of the statement.
func CloneSelect(node *Select) *Select {
	if node == nil {
		return nil
	}
	return &Select{
		Distinct:    node.Distinct,
		SelectExprs: CloneSelectExprs(node.SelectExprs),
		From:        CloneTableExprs(node.From),
		Where:       CloneExpr(node.Where),
		GroupBy:     CloneGroupBy(node.GroupBy),
		Having:      CloneExpr(node.Having),
		OrderBy:     CloneOrderBy(node.OrderBy),
		Limit:       CloneLimit(node.Limit),
	}
}

// CloneSelectExprs returns a deep copy of the select list.
func CloneSelectExprs(node SelectExprs) SelectExprs {
	if node == nil {
		return nil
	}
	out := make(SelectExprs, len(node))
	for i, expr := range node {
		out[i] = CloneSelectExpr(expr)
	}
	return out
}

// CloneSelectExpr returns a deep copy of one select expression.
func CloneSelectExpr(node SelectExpr) SelectExpr {
	switch node := node.(type) {
	case *StarExpr:
		return &StarExpr{TableName: node.TableName}
	case *AliasedExpr:
		return &AliasedExpr{Expr: CloneExpr(node.Expr), As: node.As}
	}
	return nil
}

// CloneTableExprs returns a deep copy of the FROM list.
func CloneTableExprs(node TableExprs) TableExprs {
	if node == nil {
		return nil
	}
	out := make(TableExprs, len(node))
	for i, expr := range node {
		out[i] = CloneTableExpr(expr)
	}
	return out
}

// CloneTableExpr returns a deep copy of one table expression.
func CloneTableExpr(node TableExpr) TableExpr {
	switch node := node.(type) {
	case *AliasedTableExpr:
		return &AliasedTableExpr{Expr: cloneSimpleTableExpr(node.Expr), As: node.As}
	case *JoinTableExpr:
		return &JoinTableExpr{
			LeftExpr:  CloneTableExpr(node.LeftExpr),
			Join:      node.Join,
			RightExpr: CloneTableExpr(node.RightExpr),
			Condition: JoinCondition{
				On:      CloneExpr(node.Condition.On),
				Using:   append([]string(nil), node.Condition.Using...),
				Natural: node.Condition.Natural,
			},
		}
	}
	return nil
}

func cloneSimpleTableExpr(node SimpleTableExpr) SimpleTableExpr {
	switch node := node.(type) {
	case TableName:
		return node
	case *ChunkTable:
		out := *node
		return &out
	}
	return nil
}

// CloneExpr returns a deep copy of an expression.
func CloneExpr(node Expr) Expr {
	switch node := node.(type) {
	case nil:
		return nil
	case *AndExpr:
		return &AndExpr{Left: CloneExpr(node.Left), Right: CloneExpr(node.Right)}
	case *OrExpr:
		return &OrExpr{Left: CloneExpr(node.Left), Right: CloneExpr(node.Right)}
	case *NotExpr:
		return &NotExpr{Expr: CloneExpr(node.Expr)}
	case *ParenExpr:
		return &ParenExpr{Expr: CloneExpr(node.Expr)}
	case *ComparisonExpr:
		return &ComparisonExpr{Operator: node.Operator, Left: CloneExpr(node.Left), Right: CloneExpr(node.Right)}
	case *RangeCond:
		return &RangeCond{Operator: node.Operator, Left: CloneExpr(node.Left), From: CloneExpr(node.From), To: CloneExpr(node.To)}
	case *IsExpr:
		return &IsExpr{Operator: node.Operator, Expr: CloneExpr(node.Expr)}
	case *BinaryExpr:
		return &BinaryExpr{Operator: node.Operator, Left: CloneExpr(node.Left), Right: CloneExpr(node.Right)}
	case *UnaryExpr:
		return &UnaryExpr{Operator: node.Operator, Expr: CloneExpr(node.Expr)}
	case *FuncExpr:
		return &FuncExpr{Name: node.Name, Distinct: node.Distinct, Exprs: CloneSelectExprs(node.Exprs)}
	case *ColName:
		out := *node
		return &out
	case *SQLVal:
		return &SQLVal{Type: node.Type, Val: append([]byte(nil), node.Val...)}
	case *NullVal:
		return &NullVal{}
	case ValTuple:
		out := make(ValTuple, len(node))
		for i, expr := range node {
			out[i] = CloneExpr(expr)
		}
		return out
	}
	return nil
}

// CloneGroupBy returns a deep copy of the GROUP BY list.
func CloneGroupBy(node GroupBy) GroupBy {
	if node == nil {
		return nil
	}
	out := make(GroupBy, len(node))
	for i, expr := range node {
		out[i] = CloneExpr(expr)
	}
	return out
}

// CloneOrderBy returns a deep copy of the ORDER BY list.
func CloneOrderBy(node OrderBy) OrderBy {
	if node == nil {
		return nil
	}
	out := make(OrderBy, len(node))
	for i, order := range node {
		out[i] = &Order{Expr: CloneExpr(order.Expr), Direction: order.Direction}
	}
	return out
}

// CloneLimit returns a deep copy of the LIMIT clause.
func CloneLimit(node *Limit) *Limit {
	if node == nil {
		return nil
	}
	return &Limit{Offset: CloneExpr(node.Offset), Rowcount: CloneExpr(node.Rowcount)}
}
