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

package planbuilder

import (
	"fmt"
	"strings"

	"skyserv.io/skyserv/go/sky/sqlparser"
)

// decomposable aggregates and the merge function applied to their
// per-chunk partials. AVG is handled separately: it splits into a COUNT
// and a SUM partial, re-divided at merge.
var decomposable = map[string]string{
	"count": "sum",
	"sum":   "sum",
	"min":   "min",
	"max":   "max",
}

// aggInfo is the result of the aggregation split.
type aggInfo struct {
	needsFixup     bool
	needsMergeOnly bool
	fixup          *FixupPlan
	orderBy        string
	schemaHint     []string
}

// aggSplitter accumulates the parallel and merge select lists while
// scanning the original one.
type aggSplitter struct {
	sc       *scope
	parallel sqlparser.SelectExprs
	merge    sqlparser.SelectExprs
	// byAggText maps a rendered aggregate expression to its merge-side
	// replacement, for HAVING rewriting.
	byAggText map[string]sqlparser.Expr
	nextAlias int
}

// splitAggregates rewrites the select list for two-phase execution and
// derives the fix-up plan. ORDER BY and LIMIT are always post-applied; the
// parallel statement keeps LIMIT as a per-chunk cap only when no
// aggregation or grouping is involved.
func splitAggregates(sc *scope) (*aggInfo, error) {
	stmt := sc.stmt
	info := &aggInfo{}
	if stmt.OrderBy != nil {
		info.orderBy = strings.TrimSpace(sqlparser.String(stripped(stmt.OrderBy)))
	}

	mergeOnly, err := scanAggregates(stmt)
	if err != nil {
		return nil, err
	}
	if mergeOnly {
		return splitMergeOnly(sc, info)
	}

	sp := &aggSplitter{sc: sc, byAggText: make(map[string]sqlparser.Expr), nextAlias: 1}
	hasAggregate := false
	for _, se := range stmt.SelectExprs {
		switch se := se.(type) {
		case *sqlparser.StarExpr:
			sp.parallel = append(sp.parallel, se)
			sp.merge = append(sp.merge, &sqlparser.StarExpr{})
		case *sqlparser.AliasedExpr:
			agg, err := sp.split(se)
			if err != nil {
				return nil, err
			}
			hasAggregate = hasAggregate || agg
		}
	}

	info.needsFixup = hasAggregate || stmt.GroupBy != nil || stmt.Having != nil ||
		stmt.OrderBy != nil || stmt.Limit != nil || stmt.Distinct
	info.schemaHint = schemaHint(sp.parallel)
	if !info.needsFixup {
		return info, nil
	}

	fixup := &FixupPlan{Select: renderSelectExprs(sp.merge, stmt.Distinct)}
	if stmt.GroupBy != nil {
		fixup.Post = strings.TrimSpace(sqlparser.String(stripped(stmt.GroupBy)))
	}
	if stmt.Having != nil {
		having, err := sp.rewriteHaving(stmt.Having)
		if err != nil {
			return nil, err
		}
		if fixup.Post != "" {
			fixup.Post += " "
		}
		fixup.Post += "having " + sqlparser.String(having)
	}
	fixup.OrderBy = info.orderBy
	if stmt.Limit != nil {
		fixup.Limit = strings.TrimSpace(sqlparser.String(stmt.Limit))
	}
	info.fixup = fixup

	// Rewrite the parallel statement in place. LIMIT survives per chunk
	// only as a plain row cap: aggregation, grouping and offsets all make
	// a per-chunk cut incorrect.
	stmt.SelectExprs = sp.parallel
	stmt.Having = nil
	stmt.OrderBy = nil
	if hasAggregate || stmt.GroupBy != nil || (stmt.Limit != nil && stmt.Limit.Offset != nil) {
		stmt.Limit = nil
	}
	return info, nil
}

// scanAggregates validates aggregate usage and reports whether a
// non-decomposable aggregate forces merge-only execution.
func scanAggregates(stmt *sqlparser.Select) (bool, error) {
	mergeOnly := false
	for _, se := range stmt.SelectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		fn, isTopAgg := topAggregate(ae.Expr)
		if !isTopAgg && containsAggregate(ae.Expr) {
			return false, unsupportedf("aggregate nested inside an expression")
		}
		if !isTopAgg {
			continue
		}
		if fn.Distinct {
			return false, unsupportedf("DISTINCT inside aggregate %s", fn.Name)
		}
		if _, ok := decomposable[loweredName(fn.Name)]; !ok && loweredName(fn.Name) != "avg" {
			mergeOnly = true
		}
	}
	if mergeOnly && stmt.Distinct {
		return false, unsupportedf("SELECT DISTINCT with a non-decomposable aggregate")
	}
	return mergeOnly, nil
}

// split handles one select expression. Returns whether it was an aggregate.
func (sp *aggSplitter) split(ae *sqlparser.AliasedExpr) (bool, error) {
	fn, isAgg := topAggregate(ae.Expr)
	if !isAgg {
		name := passthroughName(ae)
		var parallel *sqlparser.AliasedExpr
		if ae.As == "" && !isPlainColumn(ae.Expr) {
			// Computed expressions need a stable merge-table column name.
			name = sp.genAlias("PASS")
			parallel = &sqlparser.AliasedExpr{Expr: ae.Expr, As: name}
		} else {
			parallel = ae
		}
		sp.parallel = append(sp.parallel, parallel)
		sp.merge = append(sp.merge, &sqlparser.AliasedExpr{
			Expr: &sqlparser.ColName{Name: name},
			As:   ae.As,
		})
		return false, nil
	}

	switch loweredName(fn.Name) {
	case "avg":
		countAlias := sp.genAlias("COUNT")
		sumAlias := sp.genAlias("SUM")
		sp.parallel = append(sp.parallel,
			&sqlparser.AliasedExpr{
				Expr: &sqlparser.FuncExpr{Name: "count", Exprs: sqlparser.CloneSelectExprs(fn.Exprs)},
				As:   countAlias,
			},
			&sqlparser.AliasedExpr{
				Expr: &sqlparser.FuncExpr{Name: "sum", Exprs: sqlparser.CloneSelectExprs(fn.Exprs)},
				As:   sumAlias,
			})
		mergeExpr := &sqlparser.ParenExpr{Expr: &sqlparser.BinaryExpr{
			Operator: "/",
			Left:     sumOf(sumAlias),
			Right:    sumOf(countAlias),
		}}
		sp.record(fn, mergeExpr)
		sp.merge = append(sp.merge, &sqlparser.AliasedExpr{Expr: mergeExpr, As: ae.As})
	default:
		aggName := loweredName(fn.Name)
		alias := sp.genAlias(strings.ToUpper(aggName))
		sp.parallel = append(sp.parallel, &sqlparser.AliasedExpr{
			Expr: &sqlparser.FuncExpr{Name: aggName, Exprs: fn.Exprs},
			As:   alias,
		})
		mergeExpr := &sqlparser.FuncExpr{
			Name:  decomposable[aggName],
			Exprs: sqlparser.SelectExprs{aliased(&sqlparser.ColName{Name: alias})},
		}
		sp.record(fn, mergeExpr)
		sp.merge = append(sp.merge, &sqlparser.AliasedExpr{Expr: mergeExpr, As: ae.As})
	}
	return true, nil
}

func (sp *aggSplitter) genAlias(suffix string) string {
	alias := fmt.Sprintf("QS%d_%s", sp.nextAlias, suffix)
	sp.nextAlias++
	return alias
}

func (sp *aggSplitter) record(fn *sqlparser.FuncExpr, mergeExpr sqlparser.Expr) {
	sp.byAggText[sqlparser.String(fn)] = mergeExpr
}

// rewriteHaving maps aggregates in HAVING onto their merge-side partials.
// Only aggregates that also appear in the select list are supported.
func (sp *aggSplitter) rewriteHaving(having sqlparser.Expr) (sqlparser.Expr, error) {
	var rewrite func(expr sqlparser.Expr) (sqlparser.Expr, error)
	rewrite = func(expr sqlparser.Expr) (sqlparser.Expr, error) {
		switch expr := expr.(type) {
		case *sqlparser.FuncExpr:
			if !expr.IsAggregate() {
				return expr, nil
			}
			if mergeExpr, ok := sp.byAggText[sqlparser.String(expr)]; ok {
				return sqlparser.CloneExpr(mergeExpr), nil
			}
			return nil, unsupportedf("HAVING aggregate %s not present in the select list",
				sqlparser.String(expr))
		case *sqlparser.AndExpr:
			return rewritePair(expr, &expr.Left, &expr.Right, rewrite)
		case *sqlparser.OrExpr:
			return rewritePair(expr, &expr.Left, &expr.Right, rewrite)
		case *sqlparser.NotExpr:
			inner, err := rewrite(expr.Expr)
			if err != nil {
				return nil, err
			}
			expr.Expr = inner
			return expr, nil
		case *sqlparser.ParenExpr:
			inner, err := rewrite(expr.Expr)
			if err != nil {
				return nil, err
			}
			expr.Expr = inner
			return expr, nil
		case *sqlparser.ComparisonExpr:
			return rewritePair(expr, &expr.Left, &expr.Right, rewrite)
		case *sqlparser.BinaryExpr:
			return rewritePair(expr, &expr.Left, &expr.Right, rewrite)
		case *sqlparser.ColName:
			expr.Qualifier = ""
			return expr, nil
		}
		return expr, nil
	}
	return rewrite(sqlparser.CloneExpr(having))
}

func rewritePair(node sqlparser.Expr, left, right *sqlparser.Expr,
	rewrite func(sqlparser.Expr) (sqlparser.Expr, error)) (sqlparser.Expr, error) {
	l, err := rewrite(*left)
	if err != nil {
		return nil, err
	}
	r, err := rewrite(*right)
	if err != nil {
		return nil, err
	}
	*left, *right = l, r
	return node, nil
}

// splitMergeOnly handles non-decomposable aggregates: chunks return raw
// input columns and the original select re-runs over the merge table.
func splitMergeOnly(sc *scope, info *aggInfo) (*aggInfo, error) {
	stmt := sc.stmt
	info.needsFixup = true
	info.needsMergeOnly = true

	seen := make(map[string]bool)
	var parallel sqlparser.SelectExprs
	addColumn := func(col *sqlparser.ColName) {
		if seen[col.Name] {
			return
		}
		seen[col.Name] = true
		parallel = append(parallel, aliased(&sqlparser.ColName{
			Qualifier: col.Qualifier,
			Name:      col.Name,
		}))
	}
	collect := func(expr sqlparser.Expr) error {
		return sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
			if col, ok := node.(*sqlparser.ColName); ok {
				addColumn(col)
			}
			return true, nil
		}, expr)
	}
	for _, se := range stmt.SelectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, unsupportedf("star expansion with a non-decomposable aggregate")
		}
		if err := collect(ae.Expr); err != nil {
			return nil, err
		}
	}
	for _, expr := range stmt.GroupBy {
		if err := collect(expr); err != nil {
			return nil, err
		}
	}
	if stmt.Having != nil {
		if err := collect(stmt.Having); err != nil {
			return nil, err
		}
	}
	if len(parallel) == 0 {
		return nil, unsupportedf("non-decomposable aggregate over no columns")
	}

	fixup := &FixupPlan{
		Select: renderSelectExprs(stripped(stmt.SelectExprs).(sqlparser.SelectExprs), false),
	}
	if stmt.GroupBy != nil {
		fixup.Post = strings.TrimSpace(sqlparser.String(stripped(stmt.GroupBy)))
	}
	if stmt.Having != nil {
		havingStr := sqlparser.String(stripped(stmt.Having))
		if fixup.Post != "" {
			fixup.Post += " "
		}
		fixup.Post += "having " + havingStr
	}
	fixup.OrderBy = info.orderBy
	if stmt.Limit != nil {
		fixup.Limit = strings.TrimSpace(sqlparser.String(stmt.Limit))
	}
	info.fixup = fixup

	stmt.SelectExprs = parallel
	stmt.GroupBy = nil
	stmt.Having = nil
	stmt.OrderBy = nil
	stmt.Limit = nil
	info.schemaHint = schemaHint(parallel)
	return info, nil
}

// topAggregate returns the aggregate call if expr is exactly one.
func topAggregate(expr sqlparser.Expr) (*sqlparser.FuncExpr, bool) {
	fn, ok := expr.(*sqlparser.FuncExpr)
	if !ok || !fn.IsAggregate() {
		return nil, false
	}
	return fn, true
}

func containsAggregate(expr sqlparser.Expr) bool {
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if fn, ok := node.(*sqlparser.FuncExpr); ok && fn.IsAggregate() {
			found = true
		}
		return !found, nil
	}, expr)
	return found
}

func isPlainColumn(expr sqlparser.Expr) bool {
	_, ok := expr.(*sqlparser.ColName)
	return ok
}

// passthroughName is the merge-table column name of a non-aggregate select
// expression.
func passthroughName(ae *sqlparser.AliasedExpr) string {
	if ae.As != "" {
		return ae.As
	}
	if col, ok := ae.Expr.(*sqlparser.ColName); ok {
		return col.Name
	}
	return ""
}

func sumOf(alias string) sqlparser.Expr {
	return &sqlparser.FuncExpr{
		Name:  "sum",
		Exprs: sqlparser.SelectExprs{aliased(&sqlparser.ColName{Name: alias})},
	}
}

// stripped clones a node and clears every column qualifier: merge-table
// columns carry base names only.
func stripped(node sqlparser.SQLNode) sqlparser.SQLNode {
	var clone sqlparser.SQLNode
	switch node := node.(type) {
	case sqlparser.OrderBy:
		clone = sqlparser.CloneOrderBy(node)
	case sqlparser.GroupBy:
		clone = sqlparser.CloneGroupBy(node)
	case sqlparser.SelectExprs:
		clone = sqlparser.CloneSelectExprs(node)
	case sqlparser.Expr:
		clone = sqlparser.CloneExpr(node)
	default:
		return node
	}
	_ = sqlparser.Walk(func(n sqlparser.SQLNode) (bool, error) {
		switch n := n.(type) {
		case *sqlparser.ColName:
			n.Qualifier = ""
		case *sqlparser.StarExpr:
			n.TableName = sqlparser.TableName{}
		}
		return true, nil
	}, clone)
	return clone
}

func renderSelectExprs(exprs sqlparser.SelectExprs, distinct bool) string {
	buf := sqlparser.NewTrackedBuffer()
	if distinct {
		buf.WriteString("distinct ")
	}
	exprs.Format(buf)
	return buf.Buffer.String()
}

func schemaHint(exprs sqlparser.SelectExprs) []string {
	out := make([]string, 0, len(exprs))
	for _, se := range exprs {
		switch se := se.(type) {
		case *sqlparser.StarExpr:
			out = append(out, "*")
		case *sqlparser.AliasedExpr:
			if name := passthroughName(se); name != "" {
				out = append(out, name)
			} else {
				out = append(out, sqlparser.String(se.Expr))
			}
		}
	}
	return out
}
