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
	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/sqlparser"
)

// rewriteMatchTables prepares match-table queries for chunked execution.
// A bare match-table reference expands into the three-way join
// director1 ⨝ match ⨝ director2 on the match foreign keys; natural joins
// and USING clauses against a match table are converted to explicit ON
// conditions so the chunk templates never rely on implicit column lookup.
func rewriteMatchTables(sc *scope) error {
	for _, ref := range sc.tables {
		match, ok := ref.info.(*catalog.MatchTableInfo)
		if !ok {
			continue
		}
		sc.matchExpanded = true
		if match.Dir1.Overlap() != match.Dir2.Overlap() {
			return unsupportedf("match table %s joins directors with different overlaps (%g vs %g)",
				match.TableName, match.Dir1.Overlap(), match.Dir2.Overlap())
		}
	}
	if !sc.matchExpanded {
		return nil
	}

	byNode := make(map[*sqlparser.AliasedTableExpr]*tableRef, len(sc.tables))
	for _, ref := range sc.tables {
		byNode[ref.node] = ref
	}

	// Convert natural/USING joins touching a match table.
	var convert func(node sqlparser.TableExpr) error
	convert = func(node sqlparser.TableExpr) error {
		join, ok := node.(*sqlparser.JoinTableExpr)
		if !ok {
			return nil
		}
		if err := convert(join.LeftExpr); err != nil {
			return err
		}
		if err := convert(join.RightExpr); err != nil {
			return err
		}
		left := rightmostRef(byNode, join.LeftExpr)
		right := rightmostRef(byNode, join.RightExpr)
		if left == nil || right == nil {
			return nil
		}
		switch {
		case join.Condition.Natural:
			on := matchJoinOn(left, right)
			if on == nil {
				return nil
			}
			join.Condition = sqlparser.JoinCondition{On: on}
		case len(join.Condition.Using) != 0 && (isMatch(left) || isMatch(right)):
			var on sqlparser.Expr
			for _, col := range join.Condition.Using {
				cond := &sqlparser.ComparisonExpr{
					Operator: sqlparser.EqualStr,
					Left:     &sqlparser.ColName{Qualifier: left.alias, Name: col},
					Right:    &sqlparser.ColName{Qualifier: right.alias, Name: col},
				}
				if on == nil {
					on = cond
				} else {
					on = &sqlparser.AndExpr{Left: on, Right: cond}
				}
			}
			join.Condition = sqlparser.JoinCondition{On: on}
		}
		return nil
	}
	for _, node := range sc.stmt.From {
		if err := convert(node); err != nil {
			return err
		}
	}

	// Expand a match table standing alone in FROM into the three-way join.
	for i, node := range sc.stmt.From {
		aliasedNode, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			continue
		}
		ref := byNode[aliasedNode]
		if ref == nil || !isMatch(ref) {
			continue
		}
		match := ref.info.(*catalog.MatchTableInfo)
		if sc.hasDirector(match.Dir1) || sc.hasDirector(match.Dir2) {
			continue
		}
		d1 := sc.addDirector(match.Dir1, ref.alias+"_1")
		d2 := sc.addDirector(match.Dir2, ref.alias+"_2")
		inner := &sqlparser.JoinTableExpr{
			LeftExpr:  d1.node,
			Join:      sqlparser.JoinStr,
			RightExpr: aliasedNode,
			Condition: sqlparser.JoinCondition{On: keyEquals(ref.alias, match.FK1, d1.alias, match.Dir1.KeyCol)},
		}
		sc.stmt.From[i] = &sqlparser.JoinTableExpr{
			LeftExpr:  inner,
			Join:      sqlparser.JoinStr,
			RightExpr: d2.node,
			Condition: sqlparser.JoinCondition{On: keyEquals(ref.alias, match.FK2, d2.alias, match.Dir2.KeyCol)},
		}
	}
	return nil
}

func isMatch(ref *tableRef) bool {
	_, ok := ref.info.(*catalog.MatchTableInfo)
	return ok
}

// matchJoinOn builds the ON condition for a natural join where one side is
// a match table and the other one of its directors. Returns nil when the
// pair is not of that shape.
func matchJoinOn(left, right *tableRef) sqlparser.Expr {
	matchRef, dirRef := left, right
	if !isMatch(matchRef) {
		matchRef, dirRef = right, left
	}
	match, ok := matchRef.info.(*catalog.MatchTableInfo)
	if !ok {
		return nil
	}
	dir, ok := dirRef.info.(*catalog.DirTableInfo)
	if !ok {
		return nil
	}
	switch dir {
	case match.Dir1:
		return keyEquals(matchRef.alias, match.FK1, dirRef.alias, dir.KeyCol)
	case match.Dir2:
		return keyEquals(matchRef.alias, match.FK2, dirRef.alias, dir.KeyCol)
	}
	return nil
}

func keyEquals(matchAlias, fk, dirAlias, key string) sqlparser.Expr {
	return &sqlparser.ComparisonExpr{
		Operator: sqlparser.EqualStr,
		Left:     &sqlparser.ColName{Qualifier: matchAlias, Name: fk},
		Right:    &sqlparser.ColName{Qualifier: dirAlias, Name: key},
	}
}

// rightmostRef resolves the table reference the next join condition binds
// to: the rightmost leaf of the expression.
func rightmostRef(byNode map[*sqlparser.AliasedTableExpr]*tableRef, node sqlparser.TableExpr) *tableRef {
	switch node := node.(type) {
	case *sqlparser.AliasedTableExpr:
		return byNode[node]
	case *sqlparser.JoinTableExpr:
		return rightmostRef(byNode, node.RightExpr)
	}
	return nil
}

func (sc *scope) hasDirector(dir *catalog.DirTableInfo) bool {
	for _, ref := range sc.tables {
		if d, ok := ref.info.(*catalog.DirTableInfo); ok && d == dir {
			return true
		}
	}
	return false
}

// addDirector registers a director pulled in by match expansion.
func (sc *scope) addDirector(dir *catalog.DirTableInfo, alias string) *tableRef {
	node := &sqlparser.AliasedTableExpr{
		Expr: sqlparser.TableName{Qualifier: dir.DbName, Name: dir.TableName},
		As:   alias,
	}
	ref := &tableRef{alias: alias, info: dir, node: node}
	sc.tables = append(sc.tables, ref)
	sc.byAlias[alias] = ref
	return ref
}
